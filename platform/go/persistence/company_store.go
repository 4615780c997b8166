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

// CompanyRecord is a tenant row. Every QuickBooks connection belongs to exactly one company.
type CompanyRecord struct {
	CompanyID   uuid.UUID `db:"company_id"`
	Name        string    `db:"name"`
	OwnerUserID string    `db:"owner_user_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// CompanyStore provides access to the companies table.
type CompanyStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewCompanyStore creates a store; assumes BootstrapSchema already created the table.
func NewCompanyStore(ctx context.Context, pool *pgxpool.Pool, schema string) (*CompanyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CompanyStore{pool: pool, table: qualifiedTable(schema, companiesTable)}, nil
}

// Create inserts a company.
func (s *CompanyStore) Create(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	if rec.CompanyID == uuid.Nil {
		return CompanyRecord{}, errors.New("company id is required")
	}
	if rec.OwnerUserID == "" {
		return CompanyRecord{}, errors.New("owner user id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (company_id, name, owner_user_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        RETURNING company_id, name, owner_user_id, created_at, updated_at
    `, s.table)

	return scanCompanyRecord(s.pool.QueryRow(ctx, query, rec.CompanyID, rec.Name, rec.OwnerUserID, rec.CreatedAt))
}

// Get fetches a company by id.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT company_id, name, owner_user_id, created_at, updated_at
        FROM %s WHERE company_id = $1`, s.table)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, id))
}

// GetByOwner fetches the company owned by the given user.
func (s *CompanyStore) GetByOwner(ctx context.Context, ownerUserID string) (CompanyRecord, error) {
	query := fmt.Sprintf(`SELECT company_id, name, owner_user_id, created_at, updated_at
        FROM %s WHERE owner_user_id = $1`, s.table)
	return scanCompanyRecord(s.pool.QueryRow(ctx, query, ownerUserID))
}

func scanCompanyRecord(row pgx.Row) (CompanyRecord, error) {
	var rec CompanyRecord
	if err := row.Scan(&rec.CompanyID, &rec.Name, &rec.OwnerUserID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return CompanyRecord{}, mapNoRows(err)
	}
	return rec, nil
}
