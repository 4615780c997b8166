package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/persistence"
)

// PostgresRepository implements service.Repository over the persistence stores.
type PostgresRepository struct {
	connections *persistence.ConnectionStore
	ledger      *persistence.LedgerStore
	logs        *persistence.SyncLogStore
}

// NewPostgresRepository wires the three QuickBooks stores into one repository.
func NewPostgresRepository(connections *persistence.ConnectionStore, ledger *persistence.LedgerStore, logs *persistence.SyncLogStore) *PostgresRepository {
	if connections == nil || ledger == nil || logs == nil {
		panic("quickbooks stores are required")
	}
	return &PostgresRepository{connections: connections, ledger: ledger, logs: logs}
}

func (r *PostgresRepository) UpsertConnection(ctx context.Context, c service.Connection) (service.Connection, error) {
	rec, err := r.connections.Upsert(ctx, toConnectionRecord(c))
	if err != nil {
		return service.Connection{}, err
	}
	return toConnection(rec), nil
}

func (r *PostgresRepository) GetConnection(ctx context.Context, companyID uuid.UUID) (service.Connection, error) {
	rec, err := r.connections.GetByCompany(ctx, companyID)
	if err != nil {
		return service.Connection{}, mapNotFound(err)
	}
	return toConnection(rec), nil
}

func (r *PostgresRepository) UpdateTokens(ctx context.Context, connectionID uuid.UUID, accessToken, refreshToken string, expiresAt, at time.Time) (service.Connection, error) {
	rec, err := r.connections.UpdateTokens(ctx, connectionID, accessToken, refreshToken, expiresAt, at)
	if err != nil {
		return service.Connection{}, mapNotFound(err)
	}
	return toConnection(rec), nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	return mapNotFound(r.connections.TouchLastSynced(ctx, connectionID, at))
}

func (r *PostgresRepository) DeactivateConnection(ctx context.Context, connectionID uuid.UUID, reason string, at time.Time) error {
	return mapNotFound(r.connections.Deactivate(ctx, connectionID, reason, at))
}

func (r *PostgresRepository) DeleteConnection(ctx context.Context, connectionID uuid.UUID) error {
	return mapNotFound(r.connections.Delete(ctx, connectionID))
}

func (r *PostgresRepository) UpsertEntities(ctx context.Context, entities []service.LedgerEntity) error {
	if len(entities) == 0 {
		return nil
	}
	recs := make([]persistence.LedgerRecord, 0, len(entities))
	for _, e := range entities {
		recs = append(recs, toLedgerRecord(e))
	}
	return r.ledger.UpsertMany(ctx, recs)
}

func (r *PostgresRepository) ListEntities(ctx context.Context, connectionID uuid.UUID, t service.EntityType) ([]service.LedgerEntity, error) {
	recs, err := r.ledger.List(ctx, connectionID, string(t))
	if err != nil {
		return nil, err
	}
	out := make([]service.LedgerEntity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toLedgerEntity(rec))
	}
	return out, nil
}

func (r *PostgresRepository) PurgeEntities(ctx context.Context, connectionID uuid.UUID) (int64, error) {
	return r.ledger.Purge(ctx, connectionID)
}

func (r *PostgresRepository) CreateSyncLog(ctx context.Context, l service.SyncLog) (service.SyncLog, error) {
	rec, err := r.logs.Create(ctx, toSyncLogRecord(l))
	if err != nil {
		return service.SyncLog{}, err
	}
	return toSyncLog(rec), nil
}

func (r *PostgresRepository) UpdateSyncLog(ctx context.Context, l service.SyncLog) (service.SyncLog, error) {
	rec, err := r.logs.Update(ctx, toSyncLogRecord(l))
	if err != nil {
		return service.SyncLog{}, err
	}
	return toSyncLog(rec), nil
}

func (r *PostgresRepository) ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]service.SyncLog, error) {
	recs, err := r.logs.ListByConnection(ctx, connectionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]service.SyncLog, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toSyncLog(rec))
	}
	return out, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNoConnection
	}
	return err
}

func toConnectionRecord(c service.Connection) persistence.ConnectionRecord {
	return persistence.ConnectionRecord{
		ConnectionID:   c.ID,
		CompanyID:      c.CompanyID,
		RealmID:        c.RealmID,
		AccessToken:    c.AccessToken,
		RefreshToken:   c.RefreshToken,
		TokenExpiresAt: c.TokenExpiresAt,
		IsActive:       c.IsActive,
		LastSyncedAt:   c.LastSyncedAt,
		LastError:      c.LastError,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toConnection(rec persistence.ConnectionRecord) service.Connection {
	return service.Connection{
		ID:             rec.ConnectionID,
		CompanyID:      rec.CompanyID,
		RealmID:        rec.RealmID,
		AccessToken:    rec.AccessToken,
		RefreshToken:   rec.RefreshToken,
		TokenExpiresAt: rec.TokenExpiresAt,
		IsActive:       rec.IsActive,
		LastSyncedAt:   rec.LastSyncedAt,
		LastError:      rec.LastError,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func toLedgerRecord(e service.LedgerEntity) persistence.LedgerRecord {
	return persistence.LedgerRecord{
		ConnectionID:   e.ConnectionID,
		EntityType:     string(e.Type),
		RemoteID:       e.RemoteID,
		SubType:        e.SubType,
		Name:           e.Name,
		Email:          e.Email,
		AccountType:    e.AccountType,
		AccountSubType: e.AccountSubType,
		Amount:         e.Amount,
		Status:         e.Status,
		CustomerName:   e.CustomerName,
		VendorName:     e.VendorName,
		TxnDate:        e.TxnDate,
		Description:    e.Description,
		RawData:        e.RawData,
		SyncedAt:       e.SyncedAt,
	}
}

func toLedgerEntity(rec persistence.LedgerRecord) service.LedgerEntity {
	return service.LedgerEntity{
		ConnectionID:   rec.ConnectionID,
		Type:           service.EntityType(rec.EntityType),
		RemoteID:       rec.RemoteID,
		SubType:        rec.SubType,
		Name:           rec.Name,
		Email:          rec.Email,
		AccountType:    rec.AccountType,
		AccountSubType: rec.AccountSubType,
		Amount:         rec.Amount,
		Status:         rec.Status,
		CustomerName:   rec.CustomerName,
		VendorName:     rec.VendorName,
		TxnDate:        rec.TxnDate,
		Description:    rec.Description,
		RawData:        rec.RawData,
		SyncedAt:       rec.SyncedAt,
	}
}

func toSyncLogRecord(l service.SyncLog) persistence.SyncLogRecord {
	return persistence.SyncLogRecord{
		SyncLogID:     l.ID,
		ConnectionID:  l.ConnectionID,
		SyncType:      l.SyncType,
		Status:        l.Status,
		RecordsSynced: l.RecordsSynced,
		ErrorMessage:  l.ErrorMessage,
		TriggeredBy:   l.TriggeredBy,
		RequestID:     l.RequestID,
		StartedAt:     l.StartedAt,
		CompletedAt:   l.CompletedAt,
	}
}

func toSyncLog(rec persistence.SyncLogRecord) service.SyncLog {
	return service.SyncLog{
		ID:            rec.SyncLogID,
		ConnectionID:  rec.ConnectionID,
		SyncType:      rec.SyncType,
		Status:        rec.Status,
		RecordsSynced: rec.RecordsSynced,
		ErrorMessage:  rec.ErrorMessage,
		TriggeredBy:   rec.TriggeredBy,
		RequestID:     rec.RequestID,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
	}
}

var _ service.Repository = (*PostgresRepository)(nil)
