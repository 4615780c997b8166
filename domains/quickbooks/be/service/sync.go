package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
)

const syncTypeAll = "all"

// SyncEntity mirrors every remote object of one type into the ledger.
// Transactions are routed to SyncTransactions so they get a date window.
func (s *Service) SyncEntity(ctx context.Context, companyID uuid.UUID, entity EntityType) (SyncResult, error) {
	if _, ok := registry[entity]; !ok {
		return SyncResult{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	if entity == EntityTransaction {
		return s.SyncTransactions(ctx, companyID)
	}
	return s.syncSingle(ctx, companyID, entity, func(Connection) quickbooks.Query {
		return quickbooks.Query{Entity: string(entity)}
	})
}

// SyncTransactions mirrors transactions dated from the last successful sync
// (or the lookback window on first sync) through today, inclusive.
func (s *Service) SyncTransactions(ctx context.Context, companyID uuid.UUID) (SyncResult, error) {
	return s.syncSingle(ctx, companyID, EntityTransaction, func(conn Connection) quickbooks.Query {
		window := s.transactionWindow(conn)
		return quickbooks.Query{Entity: string(EntityTransaction), Range: &window}
	})
}

// SyncAll walks SyncAllOrder under one lock. A failing entity is recorded in
// the result and the walk continues; connection failures abort it.
func (s *Service) SyncAll(ctx context.Context, companyID uuid.UUID) (SyncAllResult, error) {
	conn, err := s.activeConnection(ctx, companyID)
	if err != nil {
		return SyncAllResult{}, err
	}

	release, err := s.locker.Acquire(ctx, conn.ID.String())
	if err != nil {
		return SyncAllResult{}, lockError(err)
	}
	defer s.release(ctx, conn.ID, release)

	logger := s.log(ctx).With(zap.String("connection_id", conn.ID.String()), zap.String("sync_type", syncTypeAll))
	entry := s.startSyncLog(ctx, conn.ID, syncTypeAll)

	result := SyncAllResult{Entities: make([]EntityResult, 0, len(SyncAllOrder))}
	total := 0
	var failed []string
	for _, entity := range SyncAllOrder {
		var res EntityResult
		res, conn, err = s.syncOne(ctx, conn, entity, quickbooks.Query{Entity: string(entity)})
		if err != nil {
			s.finishSyncLog(ctx, entry, total, err)
			logger.Error("sync aborted", zap.String("entity", string(entity)), zap.Error(err))
			return SyncAllResult{}, err
		}
		if res.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", entity, res.Err))
			logger.Warn("entity sync failed", zap.String("entity", string(entity)), zap.Error(res.Err))
		}
		total += res.Upserted
		result.Entities = append(result.Entities, res)
	}

	result.SyncedAt = s.now()
	if err := s.repo.MarkSynced(ctx, conn.ID, result.SyncedAt); err != nil {
		s.finishSyncLog(ctx, entry, total, err)
		return SyncAllResult{}, fmt.Errorf("mark synced: %w", err)
	}

	var logErr error
	if len(failed) > 0 {
		logErr = errors.New(strings.Join(failed, "; "))
	}
	if len(failed) == len(SyncAllOrder) {
		s.finishSyncLog(ctx, entry, total, logErr)
	} else {
		s.completeWithWarnings(ctx, entry, total, logErr)
	}

	logger.Info("sync all finished", zap.Int("records", total), zap.Int("failed_entities", len(failed)))
	return result, nil
}

func (s *Service) syncSingle(ctx context.Context, companyID uuid.UUID, entity EntityType, query func(Connection) quickbooks.Query) (SyncResult, error) {
	conn, err := s.activeConnection(ctx, companyID)
	if err != nil {
		return SyncResult{}, err
	}

	release, err := s.locker.Acquire(ctx, conn.ID.String())
	if err != nil {
		return SyncResult{}, lockError(err)
	}
	defer s.release(ctx, conn.ID, release)

	syncType := entity.Slug()
	entry := s.startSyncLog(ctx, conn.ID, syncType)

	res, conn, err := s.syncOne(ctx, conn, entity, query(conn))
	if err == nil {
		err = res.Err
	}
	if err != nil {
		s.finishSyncLog(ctx, entry, 0, err)
		return SyncResult{}, err
	}

	syncedAt := s.now()
	if err := s.repo.MarkSynced(ctx, conn.ID, syncedAt); err != nil {
		s.finishSyncLog(ctx, entry, res.Upserted, err)
		return SyncResult{}, fmt.Errorf("mark synced: %w", err)
	}
	s.finishSyncLog(ctx, entry, res.Upserted, nil)

	s.log(ctx).Info("entity synced",
		zap.String("connection_id", conn.ID.String()),
		zap.String("entity", string(entity)),
		zap.Int("upserted", res.Upserted),
		zap.Int("skipped", res.Skipped),
	)
	return SyncResult{Entity: entity, Upserted: res.Upserted, Skipped: res.Skipped, SyncedAt: syncedAt}, nil
}

// syncOne refreshes the token, fetches, validates and stores one entity type.
// The returned error is connection-level; entity-level failures go in EntityResult.Err.
func (s *Service) syncOne(ctx context.Context, conn Connection, entity EntityType, q quickbooks.Query) (EntityResult, Connection, error) {
	started := time.Now()
	res := EntityResult{Entity: entity}

	conn, err := s.ensureFreshToken(ctx, conn)
	if err != nil {
		s.metrics.EntityFailed(string(entity), KindOf(err), time.Since(started))
		return res, conn, err
	}

	records, err := s.fetcher.Query(ctx, conn.RealmID, conn.AccessToken, q)
	if err != nil {
		res.Err = remoteError(err)
		s.metrics.EntityFailed(string(entity), KindOf(res.Err), time.Since(started))
		return res, conn, nil
	}

	rows, skipped := s.normalizeAll(ctx, conn.ID, entity, records)
	if err := s.repo.UpsertEntities(ctx, rows); err != nil {
		res.Err = fmt.Errorf("store %s: %w", entity, err)
		s.metrics.EntityFailed(string(entity), KindInternal, time.Since(started))
		return res, conn, nil
	}

	res.Upserted = len(rows)
	res.Skipped = skipped
	s.metrics.EntitySynced(string(entity), res.Upserted, res.Skipped, time.Since(started))
	return res, conn, nil
}

func (s *Service) normalizeAll(ctx context.Context, connectionID uuid.UUID, entity EntityType, records []json.RawMessage) ([]LedgerEntity, int) {
	base := LedgerEntity{ConnectionID: connectionID, SyncedAt: s.now()}
	rows := make([]LedgerEntity, 0, len(records))
	skipped := 0
	for i, raw := range records {
		if err := s.validator.Validate(entity, raw); err != nil {
			skipped++
			s.log(ctx).Debug("skipping invalid record",
				zap.String("entity", string(entity)), zap.Int("index", i), zap.Error(err))
			continue
		}
		row, err := normalize(entity, raw, base)
		if err != nil {
			skipped++
			s.log(ctx).Debug("skipping unreadable record",
				zap.String("entity", string(entity)), zap.Int("index", i), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// transactionWindow starts at the date of the last successful sync, or today
// minus the lookback when the connection never synced.
func (s *Service) transactionWindow(conn Connection) quickbooks.DateRange {
	today := truncateDay(s.now())
	start := truncateDay(today.Add(-s.cfg.TransactionLookback))
	if conn.LastSyncedAt != nil {
		start = truncateDay(conn.LastSyncedAt.UTC())
	}
	return quickbooks.DateRange{Start: start, End: today}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) release(ctx context.Context, connectionID uuid.UUID, release func(context.Context) error) {
	// The request context may already be cancelled; the lock must still go.
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.log(ctx).Warn("release sync lock failed", zap.String("connection_id", connectionID.String()), zap.Error(err))
	}
}

// startSyncLog records a pending entry and moves it to in_progress. Log
// failures never fail the sync; a zero ID marks an entry that was not stored.
func (s *Service) startSyncLog(ctx context.Context, connectionID uuid.UUID, syncType string) SyncLog {
	triggeredBy, requestID := actor(ctx)
	entry, err := s.repo.CreateSyncLog(ctx, SyncLog{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		SyncType:     syncType,
		Status:       SyncStatusPending,
		TriggeredBy:  triggeredBy,
		RequestID:    requestID,
		StartedAt:    s.now(),
	})
	if err != nil {
		s.log(ctx).Warn("create sync log failed", zap.String("sync_type", syncType), zap.Error(err))
		return SyncLog{}
	}

	entry.Status = SyncStatusInProgress
	updated, err := s.repo.UpdateSyncLog(ctx, entry)
	if err != nil {
		s.log(ctx).Warn("update sync log failed", zap.String("sync_log_id", entry.ID.String()), zap.Error(err))
		return entry
	}
	return updated
}

func (s *Service) finishSyncLog(ctx context.Context, entry SyncLog, records int, syncErr error) {
	status := SyncStatusCompleted
	if syncErr != nil {
		status = SyncStatusFailed
	}
	s.closeSyncLog(ctx, entry, status, records, syncErr)
}

// completeWithWarnings closes a partially failed SyncAll as completed while keeping the failures.
func (s *Service) completeWithWarnings(ctx context.Context, entry SyncLog, records int, warnings error) {
	s.closeSyncLog(ctx, entry, SyncStatusCompleted, records, warnings)
}

func (s *Service) closeSyncLog(ctx context.Context, entry SyncLog, status string, records int, msg error) {
	if entry.ID == uuid.Nil {
		return
	}
	completed := s.now()
	entry.Status = status
	entry.RecordsSynced = records
	entry.CompletedAt = &completed
	entry.ErrorMessage = nil
	if msg != nil {
		text := msg.Error()
		entry.ErrorMessage = &text
	}
	if _, err := s.repo.UpdateSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log(ctx).Warn("update sync log failed", zap.String("sync_log_id", entry.ID.String()), zap.Error(err))
	}
}
