package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType names a QuickBooks object kind. The value doubles as the query entity name.
type EntityType string

const (
	EntityAccount     EntityType = "Account"
	EntityCustomer    EntityType = "Customer"
	EntityVendor      EntityType = "Vendor"
	EntityInvoice     EntityType = "Invoice"
	EntityBill        EntityType = "Bill"
	EntityPayment     EntityType = "Payment"
	EntityTransaction EntityType = "Transaction"
)

// SyncAllOrder is the fixed order SyncAll walks. Transactions are windowed and synced separately.
var SyncAllOrder = []EntityType{
	EntityAccount,
	EntityCustomer,
	EntityVendor,
	EntityInvoice,
	EntityBill,
	EntityPayment,
}

const unknownTxnType = "unknown"

type normalizer func(rec remoteRecord, e *LedgerEntity) error

type entitySpec struct {
	slug      string
	normalize normalizer
}

var registry = map[EntityType]entitySpec{
	EntityAccount:     {slug: "accounts", normalize: normalizeAccount},
	EntityCustomer:    {slug: "customers", normalize: normalizeParty},
	EntityVendor:      {slug: "vendors", normalize: normalizeParty},
	EntityInvoice:     {slug: "invoices", normalize: normalizeInvoice},
	EntityBill:        {slug: "bills", normalize: normalizeBill},
	EntityPayment:     {slug: "payments", normalize: normalizePayment},
	EntityTransaction: {slug: "transactions", normalize: normalizeTransaction},
}

// ParseEntity accepts either the QuickBooks name ("Invoice") or the plural slug ("invoices").
func ParseEntity(s string) (EntityType, error) {
	s = strings.TrimSpace(s)
	for t, spec := range registry {
		if strings.EqualFold(s, string(t)) || strings.EqualFold(s, spec.slug) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// Slug returns the plural URL segment for the entity.
func (t EntityType) Slug() string {
	return registry[t].slug
}

type remoteRef struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

type remoteRecord struct {
	ID               string           `json:"Id"`
	Name             string           `json:"Name"`
	DisplayName      string           `json:"DisplayName"`
	AccountType      string           `json:"AccountType"`
	AccountSubType   string           `json:"AccountSubType"`
	CurrentBalance   *decimal.Decimal `json:"CurrentBalance"`
	Balance          *decimal.Decimal `json:"Balance"`
	TotalAmt         *decimal.Decimal `json:"TotalAmt"`
	Amount           *decimal.Decimal `json:"Amount"`
	PrimaryEmailAddr *struct {
		Address string `json:"Address"`
	} `json:"PrimaryEmailAddr"`
	CustomerRef *remoteRef `json:"CustomerRef"`
	VendorRef   *remoteRef `json:"VendorRef"`
	TxnDate     string     `json:"TxnDate"`
	TxnType     string     `json:"TxnType"`
	PrivateNote string     `json:"PrivateNote"`
}

// normalize turns one raw remote record into a ledger row for the given connection.
func normalize(t EntityType, raw json.RawMessage, base LedgerEntity) (LedgerEntity, error) {
	spec, ok := registry[t]
	if !ok {
		return LedgerEntity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, t)
	}

	var rec remoteRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return LedgerEntity{}, fmt.Errorf("decode %s: %w", t, err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return LedgerEntity{}, errors.New("record has no Id")
	}

	e := base
	e.Type = t
	e.RemoteID = rec.ID
	e.RawData = append(json.RawMessage(nil), raw...)
	if err := spec.normalize(rec, &e); err != nil {
		return LedgerEntity{}, fmt.Errorf("normalize %s %s: %w", t, rec.ID, err)
	}
	return e, nil
}

func normalizeAccount(rec remoteRecord, e *LedgerEntity) error {
	e.Name = optional(rec.Name)
	e.AccountType = optional(rec.AccountType)
	e.AccountSubType = optional(rec.AccountSubType)
	e.Amount = orZero(rec.CurrentBalance)
	return nil
}

func normalizeParty(rec remoteRecord, e *LedgerEntity) error {
	e.Name = optional(rec.DisplayName)
	if rec.PrimaryEmailAddr != nil {
		e.Email = optional(rec.PrimaryEmailAddr.Address)
	}
	e.Amount = orZero(rec.Balance)
	return nil
}

func normalizeInvoice(rec remoteRecord, e *LedgerEntity) error {
	e.CustomerName = refName(rec.CustomerRef)
	e.Amount = orZero(rec.TotalAmt)
	e.Status = openOrPaid(rec.Balance)
	return setTxnDate(rec.TxnDate, e)
}

func normalizeBill(rec remoteRecord, e *LedgerEntity) error {
	e.VendorName = refName(rec.VendorRef)
	e.Amount = orZero(rec.TotalAmt)
	e.Status = openOrPaid(rec.Balance)
	return setTxnDate(rec.TxnDate, e)
}

func normalizePayment(rec remoteRecord, e *LedgerEntity) error {
	e.CustomerName = refName(rec.CustomerRef)
	e.VendorName = refName(rec.VendorRef)
	e.Amount = orZero(rec.TotalAmt)
	return setTxnDate(rec.TxnDate, e)
}

func normalizeTransaction(rec remoteRecord, e *LedgerEntity) error {
	e.SubType = strings.ToLower(strings.TrimSpace(rec.TxnType))
	if e.SubType == "" {
		e.SubType = unknownTxnType
	}

	// TotalAmt of zero falls through to Amount.
	switch {
	case rec.TotalAmt != nil && !rec.TotalAmt.IsZero():
		e.Amount = *rec.TotalAmt
	default:
		e.Amount = orZero(rec.Amount)
	}

	e.CustomerName = refName(rec.CustomerRef)
	e.VendorName = refName(rec.VendorRef)
	e.Description = optional(rec.PrivateNote)
	return setTxnDate(rec.TxnDate, e)
}

func openOrPaid(balance *decimal.Decimal) *string {
	status := "Paid"
	if balance != nil && balance.IsPositive() {
		status = "Open"
	}
	return &status
}

func setTxnDate(raw string, e *LedgerEntity) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return fmt.Errorf("TxnDate %q: %w", raw, err)
	}
	e.TxnDate = &d
	return nil
}

func refName(r *remoteRef) *string {
	if r == nil {
		return nil
	}
	return optional(r.Name)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

const dateLayout = "2006-01-02"
