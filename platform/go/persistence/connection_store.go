package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectionRecord is the persisted OAuth binding between a company and a QuickBooks realm.
type ConnectionRecord struct {
	ConnectionID   uuid.UUID  `db:"connection_id"`
	CompanyID      uuid.UUID  `db:"company_id"`
	RealmID        string     `db:"realm_id"`
	AccessToken    string     `db:"access_token"`
	RefreshToken   string     `db:"refresh_token"`
	TokenExpiresAt time.Time  `db:"token_expires_at"`
	IsActive       bool       `db:"is_active"`
	LastSyncedAt   *time.Time `db:"last_synced_at"`
	LastError      *string    `db:"last_error"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

const connectionColumns = `connection_id, company_id, realm_id, access_token, refresh_token,
        token_expires_at, is_active, last_synced_at, last_error, created_at, updated_at`

// ConnectionStore provides access to the quickbooks_connections table.
type ConnectionStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewConnectionStore creates a store; assumes BootstrapSchema already created the table.
func NewConnectionStore(ctx context.Context, pool *pgxpool.Pool, schema string) (*ConnectionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ConnectionStore{pool: pool, table: qualifiedTable(schema, connectionsTable)}, nil
}

// Upsert inserts the connection or, when the company already has one, replaces its realm and tokens
// and reactivates it. The existing connection id is preserved so ledger rows stay attached.
// Switching to a different realm clears last_synced_at so the next transaction sync starts
// from the lookback window.
func (s *ConnectionStore) Upsert(ctx context.Context, rec ConnectionRecord) (ConnectionRecord, error) {
	if rec.ConnectionID == uuid.Nil {
		return ConnectionRecord{}, errors.New("connection id is required")
	}
	if rec.CompanyID == uuid.Nil {
		return ConnectionRecord{}, errors.New("company id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s AS c (
            connection_id, company_id, realm_id, access_token, refresh_token,
            token_expires_at, is_active, last_synced_at, last_error, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,TRUE,NULL,NULL,$7,$7)
        ON CONFLICT (company_id) DO UPDATE SET
            realm_id = EXCLUDED.realm_id,
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            token_expires_at = EXCLUDED.token_expires_at,
            is_active = TRUE,
            last_synced_at = CASE WHEN c.realm_id = EXCLUDED.realm_id THEN c.last_synced_at ELSE NULL END,
            last_error = NULL,
            updated_at = EXCLUDED.updated_at
        RETURNING %s
    `, s.table, connectionColumns)

	row := s.pool.QueryRow(ctx, query,
		rec.ConnectionID, rec.CompanyID, rec.RealmID, rec.AccessToken, rec.RefreshToken,
		rec.TokenExpiresAt, rec.UpdatedAt,
	)
	return scanConnectionRecord(row)
}

// GetByCompany returns the company's connection regardless of its active flag.
func (s *ConnectionStore) GetByCompany(ctx context.Context, companyID uuid.UUID) (ConnectionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE company_id = $1`, connectionColumns, s.table)
	return scanConnectionRecord(s.pool.QueryRow(ctx, query, companyID))
}

// UpdateTokens persists a refreshed token pair and expiry.
func (s *ConnectionStore) UpdateTokens(ctx context.Context, connectionID uuid.UUID, accessToken, refreshToken string, expiresAt, updatedAt time.Time) (ConnectionRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = $5
        WHERE connection_id = $1
        RETURNING %s
    `, s.table, connectionColumns)
	return scanConnectionRecord(s.pool.QueryRow(ctx, query, connectionID, accessToken, refreshToken, expiresAt, updatedAt))
}

// TouchLastSynced advances last_synced_at.
func (s *ConnectionStore) TouchLastSynced(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_synced_at = $2, updated_at = $2 WHERE connection_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, connectionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate flags the connection as requiring re-authorization.
func (s *ConnectionStore) Deactivate(ctx context.Context, connectionID uuid.UUID, reason string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET is_active = FALSE, last_error = $2, updated_at = $3 WHERE connection_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, connectionID, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the connection row.
func (s *ConnectionStore) Delete(ctx context.Context, connectionID uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE connection_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, connectionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConnectionRecord(row pgx.Row) (ConnectionRecord, error) {
	var rec ConnectionRecord
	if err := row.Scan(
		&rec.ConnectionID, &rec.CompanyID, &rec.RealmID, &rec.AccessToken, &rec.RefreshToken,
		&rec.TokenExpiresAt, &rec.IsActive, &rec.LastSyncedAt, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return ConnectionRecord{}, mapNoRows(err)
	}
	return rec, nil
}
