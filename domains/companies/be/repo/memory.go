package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]service.Company
	byOwner map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Company), byOwner: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOwner[c.OwnerUserID]; exists {
		return service.Company{}, service.ErrConflictOwner
	}

	r.byID[c.ID] = c
	r.byOwner[c.OwnerUserID] = c.ID
	return c, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return service.Company{}, service.ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) GetByOwner(ctx context.Context, ownerUserID string) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOwner[ownerUserID]
	if !ok {
		return service.Company{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

var _ service.Repository = (*MemoryRepository)(nil)
