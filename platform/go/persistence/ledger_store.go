package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerRecord is one mirrored QuickBooks object. The natural key is
// (ConnectionID, EntityType, RemoteID, SubType); SubType is empty for every
// entity type except transactions, where it carries the lower-cased TxnType.
type LedgerRecord struct {
	ConnectionID   uuid.UUID
	EntityType     string
	RemoteID       string
	SubType        string
	Name           *string
	Email          *string
	AccountType    *string
	AccountSubType *string
	Amount         decimal.Decimal
	Status         *string
	CustomerName   *string
	VendorName     *string
	TxnDate        *time.Time
	Description    *string
	RawData        []byte
	SyncedAt       time.Time
}

// LedgerStore provides access to the quickbooks_ledger_entities table.
type LedgerStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewLedgerStore creates a store; assumes BootstrapSchema already created the table.
func NewLedgerStore(ctx context.Context, pool *pgxpool.Pool, schema string) (*LedgerStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &LedgerStore{pool: pool, table: qualifiedTable(schema, ledgerEntitiesTable)}, nil
}

// UpsertMany writes every record in one transaction. Rows matching an existing
// natural key are overwritten field by field; created_at is left untouched.
func (s *LedgerStore) UpsertMany(ctx context.Context, recs []LedgerRecord) error {
	if len(recs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            connection_id, entity_type, remote_id, sub_type, name, email, account_type,
            account_sub_type, amount, status, customer_name, vendor_name, txn_date,
            description, raw_data, synced_at, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10,$11,$12,$13,$14,$15,$16,$16,$16)
        ON CONFLICT (connection_id, entity_type, remote_id, sub_type) DO UPDATE SET
            name = EXCLUDED.name,
            email = EXCLUDED.email,
            account_type = EXCLUDED.account_type,
            account_sub_type = EXCLUDED.account_sub_type,
            amount = EXCLUDED.amount,
            status = EXCLUDED.status,
            customer_name = EXCLUDED.customer_name,
            vendor_name = EXCLUDED.vendor_name,
            txn_date = EXCLUDED.txn_date,
            description = EXCLUDED.description,
            raw_data = EXCLUDED.raw_data,
            synced_at = EXCLUDED.synced_at,
            updated_at = EXCLUDED.updated_at
    `, s.table)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range recs {
		if rec.ConnectionID == uuid.Nil || rec.EntityType == "" || rec.RemoteID == "" {
			return errors.New("ledger record key is incomplete")
		}
		batch.Queue(query,
			rec.ConnectionID, rec.EntityType, rec.RemoteID, rec.SubType, rec.Name, rec.Email,
			rec.AccountType, rec.AccountSubType, rec.Amount.StringFixed(2), rec.Status,
			rec.CustomerName, rec.VendorName, rec.TxnDate, rec.Description, rawJSON(rec.RawData),
			rec.SyncedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert ledger entities: %w", err)
	}

	return tx.Commit(ctx)
}

// List returns the rows of one entity type for a connection, newest transaction date first.
func (s *LedgerStore) List(ctx context.Context, connectionID uuid.UUID, entityType string) ([]LedgerRecord, error) {
	query := fmt.Sprintf(`SELECT connection_id, entity_type, remote_id, sub_type, name, email,
        account_type, account_sub_type, amount::text, status, customer_name, vendor_name,
        txn_date, description, raw_data, synced_at
        FROM %s
        WHERE connection_id = $1 AND entity_type = $2
        ORDER BY txn_date DESC NULLS LAST, remote_id ASC, sub_type ASC`, s.table)

	rows, err := s.pool.Query(ctx, query, connectionID, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Purge deletes every row mirrored under the connection and reports how many were removed.
func (s *LedgerStore) Purge(ctx context.Context, connectionID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE connection_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, connectionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanLedgerRecord(row pgx.Row) (LedgerRecord, error) {
	var (
		rec    LedgerRecord
		amount string
	)
	if err := row.Scan(
		&rec.ConnectionID, &rec.EntityType, &rec.RemoteID, &rec.SubType, &rec.Name, &rec.Email,
		&rec.AccountType, &rec.AccountSubType, &amount, &rec.Status, &rec.CustomerName, &rec.VendorName,
		&rec.TxnDate, &rec.Description, &rec.RawData, &rec.SyncedAt,
	); err != nil {
		return LedgerRecord{}, mapNoRows(err)
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return LedgerRecord{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Amount = dec
	return rec, nil
}

// rawJSON keeps empty payloads as SQL NULL instead of an invalid empty jsonb literal.
func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
