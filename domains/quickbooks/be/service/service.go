package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-qbsync/platform/go/logging"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/synclock"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

// Repository abstracts persistence of connections, ledger rows and sync logs.
// GetConnection returns ErrNoConnection when the company has none.
type Repository interface {
	UpsertConnection(ctx context.Context, c Connection) (Connection, error)
	GetConnection(ctx context.Context, companyID uuid.UUID) (Connection, error)
	UpdateTokens(ctx context.Context, connectionID uuid.UUID, accessToken, refreshToken string, expiresAt, at time.Time) (Connection, error)
	MarkSynced(ctx context.Context, connectionID uuid.UUID, at time.Time) error
	DeactivateConnection(ctx context.Context, connectionID uuid.UUID, reason string, at time.Time) error
	DeleteConnection(ctx context.Context, connectionID uuid.UUID) error

	UpsertEntities(ctx context.Context, entities []LedgerEntity) error
	ListEntities(ctx context.Context, connectionID uuid.UUID, t EntityType) ([]LedgerEntity, error)
	PurgeEntities(ctx context.Context, connectionID uuid.UUID) (int64, error)

	CreateSyncLog(ctx context.Context, l SyncLog) (SyncLog, error)
	UpdateSyncLog(ctx context.Context, l SyncLog) (SyncLog, error)
	ListSyncLogs(ctx context.Context, connectionID uuid.UUID, limit int) ([]SyncLog, error)
}

// OAuthClient is the token side of the QuickBooks client.
type OAuthClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (quickbooks.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (quickbooks.TokenSet, error)
}

// EntityFetcher is the query side of the QuickBooks client.
type EntityFetcher interface {
	Query(ctx context.Context, realmID, accessToken string, q quickbooks.Query) ([]json.RawMessage, error)
}

// Locker serialises syncs per connection.
type Locker interface {
	Acquire(ctx context.Context, key string) (synclock.Release, error)
}

// CompanyDirectory resolves company ids. Implemented by the companies service.
type CompanyDirectory interface {
	ResolveCompany(ctx context.Context, companyID uuid.UUID) (tenant.Company, error)
}

// Recorder receives sync metrics.
type Recorder interface {
	EntitySynced(entity string, upserted, skipped int, elapsed time.Duration)
	EntityFailed(entity, kind string, elapsed time.Duration)
	TokenRefreshed(outcome string)
}

// Config tunes token refresh and the transaction window.
type Config struct {
	// RefreshSkew of zero refreshes before every fetch; otherwise only within skew of expiry.
	RefreshSkew time.Duration `env:"QUICKBOOKS_REFRESH_SKEW" envDefault:"0s"`
	// TransactionLookback is the window start used before the first successful sync.
	TransactionLookback time.Duration `env:"QUICKBOOKS_TRANSACTION_LOOKBACK" envDefault:"720h"`
}

// Deps groups the collaborators of Service. Validator and Metrics are optional.
type Deps struct {
	Repo      Repository
	OAuth     OAuthClient
	Fetcher   EntityFetcher
	Locker    Locker
	Companies CompanyDirectory
	Validator *RecordValidator
	Metrics   Recorder
	Logger    *zap.Logger
}

// Service owns the QuickBooks connection lifecycle and the sync pipeline.
type Service struct {
	repo      Repository
	oauth     OAuthClient
	fetcher   EntityFetcher
	locker    Locker
	companies CompanyDirectory
	validator *RecordValidator
	metrics   Recorder
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

// New constructs a Service with required dependencies.
func New(deps Deps, cfg Config) *Service {
	if deps.Repo == nil {
		panic("quickbooks repo is required")
	}
	if deps.OAuth == nil {
		panic("quickbooks oauth client is required")
	}
	if deps.Fetcher == nil {
		panic("quickbooks fetcher is required")
	}
	if deps.Locker == nil {
		panic("sync locker is required")
	}
	if deps.Companies == nil {
		panic("company directory is required")
	}
	if deps.Logger == nil {
		panic("logger is required")
	}
	if deps.Validator == nil {
		deps.Validator = NewRecordValidator()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if cfg.TransactionLookback <= 0 {
		cfg.TransactionLookback = 30 * 24 * time.Hour
	}

	return &Service{
		repo:      deps.Repo,
		oauth:     deps.OAuth,
		fetcher:   deps.Fetcher,
		locker:    deps.Locker,
		companies: deps.Companies,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return s.logger
}

// actor returns who triggered the current call for the sync log.
func actor(ctx context.Context) (string, *string) {
	audit := requesttrace.FromContextOrAnonymous(ctx)
	by := audit.TriggeredBy()
	var requestID *string
	if audit.RequestID != "" {
		id := audit.RequestID
		requestID = &id
	}
	return by, requestID
}

type nopRecorder struct{}

func (nopRecorder) EntitySynced(string, int, int, time.Duration) {}
func (nopRecorder) EntityFailed(string, string, time.Duration)   {}
func (nopRecorder) TokenRefreshed(string)                         {}
