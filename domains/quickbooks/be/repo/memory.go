package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
)

var errSyncLogNotFound = errors.New("sync log not found")

// MemoryRepository is an in-memory service.Repository for tests and local runs.
// It mirrors the upsert and ordering rules of the Postgres stores.
type MemoryRepository struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]service.Connection // keyed by company id
	ledger      map[service.LedgerKey]service.LedgerEntity
	logs        map[uuid.UUID]service.SyncLog
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		connections: make(map[uuid.UUID]service.Connection),
		ledger:      make(map[service.LedgerKey]service.LedgerEntity),
		logs:        make(map[uuid.UUID]service.SyncLog),
	}
}

func (r *MemoryRepository) UpsertConnection(ctx context.Context, c service.Connection) (service.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[c.CompanyID]; ok {
		if existing.RealmID != c.RealmID {
			existing.LastSyncedAt = nil
		}
		existing.RealmID = c.RealmID
		existing.AccessToken = c.AccessToken
		existing.RefreshToken = c.RefreshToken
		existing.TokenExpiresAt = c.TokenExpiresAt
		existing.IsActive = true
		existing.LastError = nil
		existing.UpdatedAt = c.UpdatedAt
		r.connections[c.CompanyID] = existing
		return existing, nil
	}

	c.IsActive = true
	c.LastError = nil
	c.LastSyncedAt = nil
	c.CreatedAt = c.UpdatedAt
	r.connections[c.CompanyID] = c
	return c, nil
}

func (r *MemoryRepository) GetConnection(ctx context.Context, companyID uuid.UUID) (service.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connections[companyID]
	if !ok {
		return service.Connection{}, service.ErrNoConnection
	}
	return c, nil
}

func (r *MemoryRepository) UpdateTokens(ctx context.Context, connectionID uuid.UUID, accessToken, refreshToken string, expiresAt, at time.Time) (service.Connection, error) {
	var out service.Connection
	err := r.updateConnection(connectionID, func(c *service.Connection) {
		c.AccessToken = accessToken
		c.RefreshToken = refreshToken
		c.TokenExpiresAt = expiresAt
		c.UpdatedAt = at
		out = *c
	})
	return out, err
}

func (r *MemoryRepository) MarkSynced(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	return r.updateConnection(connectionID, func(c *service.Connection) {
		c.LastSyncedAt = &at
		c.UpdatedAt = at
	})
}

func (r *MemoryRepository) DeactivateConnection(ctx context.Context, connectionID uuid.UUID, reason string, at time.Time) error {
	return r.updateConnection(connectionID, func(c *service.Connection) {
		c.IsActive = false
		c.LastError = &reason
		c.UpdatedAt = at
	})
}

func (r *MemoryRepository) DeleteConnection(ctx context.Context, connectionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for companyID, c := range r.connections {
		if c.ID == connectionID {
			delete(r.connections, companyID)
			return nil
		}
	}
	return service.ErrNoConnection
}

func (r *MemoryRepository) updateConnection(connectionID uuid.UUID, apply func(*service.Connection)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for companyID, c := range r.connections {
		if c.ID == connectionID {
			apply(&c)
			r.connections[companyID] = c
			return nil
		}
	}
	return service.ErrNoConnection
}

func (r *MemoryRepository) UpsertEntities(ctx context.Context, entities []service.LedgerEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entities {
		r.ledger[e.Key()] = e
	}
	return nil
}

func (r *MemoryRepository) ListEntities(ctx context.Context, connectionID uuid.UUID, t service.EntityType) ([]service.LedgerEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.LedgerEntity, 0)
	for k, e := range r.ledger {
		if k.ConnectionID == connectionID && k.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.TxnDate != nil && b.TxnDate != nil && !a.TxnDate.Equal(*b.TxnDate):
			return a.TxnDate.After(*b.TxnDate)
		case a.TxnDate != nil && b.TxnDate == nil:
			return true
		case a.TxnDate == nil && b.TxnDate != nil:
			return false
		case a.RemoteID != b.RemoteID:
			return a.RemoteID < b.RemoteID
		default:
			return a.SubType < b.SubType
		}
	})
	return out, nil
}

func (r *MemoryRepository) PurgeEntities(ctx context.Context, connectionID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k := range r.ledger {
		if k.ConnectionID == connectionID {
			delete(r.ledger, k)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) CreateSyncLog(ctx context.Context, l service.SyncLog) (service.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.TriggeredBy == "" {
		l.TriggeredBy = "system"
	}
	r.logs[l.ID] = l
	return l, nil
}

func (r *MemoryRepository) UpdateSyncLog(ctx context.Context, l service.SyncLog) (service.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.logs[l.ID]
	if !ok {
		return service.SyncLog{}, errSyncLogNotFound
	}
	existing.Status = l.Status
	existing.RecordsSynced = l.RecordsSynced
	existing.ErrorMessage = l.ErrorMessage
	existing.CompletedAt = l.CompletedAt
	r.logs[l.ID] = existing
	return existing, nil
}

func (r *MemoryRepository) ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]service.SyncLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.SyncLog, 0)
	for _, l := range r.logs {
		if l.ConnectionID == connectionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ service.Repository = (*MemoryRepository)(nil)
