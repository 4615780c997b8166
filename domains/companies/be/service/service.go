package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = tenant.ErrCompanyNotFound
	ErrConflictOwner = errors.New("user already owns a company")
	ErrValidation    = errors.New("invalid company input")
)

// Company is the tenant that owns a QuickBooks connection.
type Company struct {
	ID          uuid.UUID
	Name        string
	OwnerUserID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput represents the request to create a company.
type CreateInput struct {
	Name        string
	OwnerUserID string
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, c Company) (Company, error)
	Get(ctx context.Context, id uuid.UUID) (Company, error)
	GetByOwner(ctx context.Context, ownerUserID string) (Company, error)
}

// Service provides company registry operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("companies repo is required")
	}
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Create registers a company for its owner.
func (s *Service) Create(ctx context.Context, input CreateInput) (Company, error) {
	name := strings.TrimSpace(input.Name)
	owner := strings.TrimSpace(input.OwnerUserID)
	if name == "" {
		return Company{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if owner == "" {
		return Company{}, fmt.Errorf("%w: owner user id is required", ErrValidation)
	}

	now := s.now()
	return s.repo.Create(ctx, Company{
		ID:          uuid.New(),
		Name:        name,
		OwnerUserID: owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Get returns a company by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner returns the company owned by the user.
func (s *Service) GetByOwner(ctx context.Context, ownerUserID string) (Company, error) {
	return s.repo.GetByOwner(ctx, ownerUserID)
}

// ResolveCompany maps a company id onto the request-scoped tenant.Company.
func (s *Service) ResolveCompany(ctx context.Context, id uuid.UUID) (tenant.Company, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Company{}, err
	}
	return toTenantCompany(c), nil
}

// ResolveCompanyByOwner maps the authenticated user onto the company they own.
func (s *Service) ResolveCompanyByOwner(ctx context.Context, ownerUserID string) (tenant.Company, error) {
	c, err := s.repo.GetByOwner(ctx, ownerUserID)
	if err != nil {
		return tenant.Company{}, err
	}
	return toTenantCompany(c), nil
}

func toTenantCompany(c Company) tenant.Company {
	return tenant.Company{ID: c.ID, Name: c.Name, OwnerUserID: c.OwnerUserID}
}
