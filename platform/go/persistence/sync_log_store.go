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

// SyncLogRecord is an audit row for one sync call.
type SyncLogRecord struct {
	SyncLogID     uuid.UUID
	ConnectionID  uuid.UUID
	SyncType      string
	Status        string
	RecordsSynced int
	ErrorMessage  *string
	TriggeredBy   string
	RequestID     *string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// SyncLogStore provides access to the quickbooks_sync_logs table.
type SyncLogStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewSyncLogStore creates a store; assumes BootstrapSchema already created the table.
func NewSyncLogStore(ctx context.Context, pool *pgxpool.Pool, schema string) (*SyncLogStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SyncLogStore{pool: pool, table: qualifiedTable(schema, syncLogsTable)}, nil
}

// Create inserts a new log row.
func (s *SyncLogStore) Create(ctx context.Context, rec SyncLogRecord) (SyncLogRecord, error) {
	if rec.SyncLogID == uuid.Nil {
		return SyncLogRecord{}, errors.New("sync log id is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (sync_log_id, connection_id, sync_type, status, records_synced, error_message, triggered_by, request_id, started_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING sync_log_id, connection_id, sync_type, status, records_synced, error_message, triggered_by, request_id, started_at, completed_at
    `, s.table)

	row := s.pool.QueryRow(ctx, query,
		rec.SyncLogID, rec.ConnectionID, rec.SyncType, rec.Status, rec.RecordsSynced,
		rec.ErrorMessage, rec.TriggeredBy, rec.RequestID, rec.StartedAt, rec.CompletedAt,
	)
	return scanSyncLogRecord(row)
}

// Update rewrites the mutable fields of a log row.
func (s *SyncLogStore) Update(ctx context.Context, rec SyncLogRecord) (SyncLogRecord, error) {
	query := fmt.Sprintf(`
        UPDATE %s SET status = $2, records_synced = $3, error_message = $4, completed_at = $5
        WHERE sync_log_id = $1
        RETURNING sync_log_id, connection_id, sync_type, status, records_synced, error_message, triggered_by, request_id, started_at, completed_at
    `, s.table)

	row := s.pool.QueryRow(ctx, query, rec.SyncLogID, rec.Status, rec.RecordsSynced, rec.ErrorMessage, rec.CompletedAt)
	return scanSyncLogRecord(row)
}

// ListByConnection returns the most recent log rows first.
func (s *SyncLogStore) ListByConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]SyncLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT sync_log_id, connection_id, sync_type, status, records_synced, error_message, triggered_by, request_id, started_at, completed_at
        FROM %s WHERE connection_id = $1
        ORDER BY started_at DESC
        LIMIT %d`, s.table, limit)

	rows, err := s.pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncLogRecord
	for rows.Next() {
		rec, err := scanSyncLogRecord(rows)
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

func scanSyncLogRecord(row pgx.Row) (SyncLogRecord, error) {
	var rec SyncLogRecord
	if err := row.Scan(&rec.SyncLogID, &rec.ConnectionID, &rec.SyncType, &rec.Status, &rec.RecordsSynced, &rec.ErrorMessage, &rec.TriggeredBy, &rec.RequestID, &rec.StartedAt, &rec.CompletedAt); err != nil {
		return SyncLogRecord{}, mapNoRows(err)
	}
	return rec, nil
}
