package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/persistence"
)

// PostgresRepository implements the company repository on top of CompanyStore.
type PostgresRepository struct {
	store *persistence.CompanyStore
}

// NewPostgresRepository constructs a repository backed by CompanyStore.
func NewPostgresRepository(store *persistence.CompanyStore) *PostgresRepository {
	if store == nil {
		panic("company store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	out, err := r.store.Create(ctx, toRecord(c))
	if err != nil {
		return service.Company{}, mapConflict(err)
	}
	return toServiceCompany(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerUserID string) (service.Company, error) {
	rec, err := r.store.GetByOwner(ctx, ownerUserID)
	if err != nil {
		return service.Company{}, mapNotFound(err)
	}
	return toServiceCompany(rec), nil
}

func toRecord(c service.Company) persistence.CompanyRecord {
	return persistence.CompanyRecord{
		CompanyID:   c.ID,
		Name:        c.Name,
		OwnerUserID: c.OwnerUserID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toServiceCompany(rec persistence.CompanyRecord) service.Company {
	return service.Company{
		ID:          rec.CompanyID,
		Name:        rec.Name,
		OwnerUserID: rec.OwnerUserID,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && strings.EqualFold(pgErr.ConstraintName, "companies_owner_unique") {
			return service.ErrConflictOwner
		}
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
