package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

const defaultSyncLogLimit = 50

// ListAccounts returns the mirrored chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, companyID uuid.UUID) ([]AccountView, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEntities(ctx, conn.ID, EntityAccount)
	if err != nil {
		return nil, err
	}
	return accountViews(rows), nil
}

// ListTransactions returns mirrored transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, companyID uuid.UUID) ([]TransactionView, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEntities(ctx, conn.ID, EntityTransaction)
	if err != nil {
		return nil, err
	}
	return transactionViews(rows), nil
}

// ListAll returns every mirrored entity type in one payload.
func (s *Service) ListAll(ctx context.Context, companyID uuid.UUID) (AllData, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return AllData{}, err
	}

	byType := make(map[EntityType][]LedgerEntity, len(registry))
	for t := range registry {
		rows, err := s.repo.ListEntities(ctx, conn.ID, t)
		if err != nil {
			return AllData{}, err
		}
		byType[t] = rows
	}

	return AllData{
		Accounts:     accountViews(byType[EntityAccount]),
		Customers:    partyViews(byType[EntityCustomer]),
		Vendors:      partyViews(byType[EntityVendor]),
		Invoices:     invoiceViews(byType[EntityInvoice]),
		Bills:        billViews(byType[EntityBill]),
		Payments:     paymentViews(byType[EntityPayment]),
		Transactions: transactionViews(byType[EntityTransaction]),
	}, nil
}

// ListSyncLogs returns the newest sync log entries for the company's connection.
func (s *Service) ListSyncLogs(ctx context.Context, companyID uuid.UUID, limit int) ([]SyncLog, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultSyncLogLimit
	}
	return s.repo.ListSyncLogs(ctx, conn.ID, limit)
}

func accountViews(rows []LedgerEntity) []AccountView {
	out := make([]AccountView, 0, len(rows))
	for _, r := range rows {
		out = append(out, AccountView{
			QBID:    r.RemoteID,
			Name:    deref(r.Name),
			Type:    deref(r.AccountType),
			SubType: deref(r.AccountSubType),
			Balance: Money(r.Amount),
		})
	}
	return out
}

func partyViews(rows []LedgerEntity) []PartyView {
	out := make([]PartyView, 0, len(rows))
	for _, r := range rows {
		out = append(out, PartyView{QBID: r.RemoteID, Name: deref(r.Name), Email: deref(r.Email), Balance: Money(r.Amount)})
	}
	return out
}

func invoiceViews(rows []LedgerEntity) []InvoiceView {
	out := make([]InvoiceView, 0, len(rows))
	for _, r := range rows {
		out = append(out, InvoiceView{QBID: r.RemoteID, Customer: deref(r.CustomerName), Total: Money(r.Amount), Status: deref(r.Status)})
	}
	return out
}

func billViews(rows []LedgerEntity) []BillView {
	out := make([]BillView, 0, len(rows))
	for _, r := range rows {
		out = append(out, BillView{QBID: r.RemoteID, Vendor: deref(r.VendorName), Total: Money(r.Amount), Status: deref(r.Status)})
	}
	return out
}

func paymentViews(rows []LedgerEntity) []PaymentView {
	out := make([]PaymentView, 0, len(rows))
	for _, r := range rows {
		out = append(out, PaymentView{
			QBID:     r.RemoteID,
			Customer: deref(r.CustomerName),
			Vendor:   deref(r.VendorName),
			Amount:   Money(r.Amount),
			Date:     formatDate(r),
		})
	}
	return out
}

func transactionViews(rows []LedgerEntity) []TransactionView {
	sorted := append([]LedgerEntity(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].TxnDate, sorted[j].TxnDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	out := make([]TransactionView, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, TransactionView{
			QBID:         r.RemoteID,
			Date:         formatDate(r),
			Type:         r.SubType,
			Amount:       Money(r.Amount),
			CustomerName: deref(r.CustomerName),
			VendorName:   deref(r.VendorName),
			Description:  deref(r.Description),
		})
	}
	return out
}

func formatDate(r LedgerEntity) string {
	if r.TxnDate == nil {
		return ""
	}
	return r.TxnDate.Format(dateLayout)
}
