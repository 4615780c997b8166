package synccmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	companiesrepo "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/repo"
	companiesservice "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
	qbrepo "github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/repo"
	qbservice "github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-qbsync/platform/go/logging"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/synclock"
)

// config mirrors the API server's settings; the same environment drives both.
type config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBSchema    string `env:"DB_SCHEMA" envDefault:"qbsync"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	QuickBooks quickbooks.Config `envPrefix:"QUICKBOOKS_"`
	Sync       qbservice.Config
	Lock       synclock.Config
}

// Command groups manual sync helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run QuickBooks syncs outside the API (cron, backfills)",
	}

	cmd.AddCommand(runCommand())
	return cmd
}

func runCommand() *cobra.Command {
	var (
		companyID string
		entity    string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Sync one entity, or every entity when --entity is omitted, for a company",
		Long:  "Reads DATABASE_URL, QUICKBOOKS_* and REDIS_ADDRESS from the environment, like the API server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(companyID)
			if err != nil {
				return fmt.Errorf("invalid company-id: %w", err)
			}
			var entityType qbservice.EntityType
			if entity != "" {
				if entityType, err = qbservice.ParseEntity(entity); err != nil {
					return err
				}
			}

			var cfg config
			if err := env.Parse(&cfg); err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			svc, cleanup, err := buildService(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx = requesttrace.IntoContext(ctx, requesttrace.System("cli-sync-"+uuid.NewString()))

			var out any
			if entity == "" {
				out, err = svc.SyncAll(ctx, id)
			} else {
				out, err = svc.SyncEntity(ctx, id, entityType)
			}
			if err != nil {
				return fmt.Errorf("sync %s: %w", qbservice.KindOf(err), err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	c.Flags().StringVar(&companyID, "company-id", "", "Company to sync")
	c.Flags().StringVar(&entity, "entity", "", "accounts, customers, vendors, invoices, bills, payments or transactions")

	_ = c.MarkFlagRequired("company-id")

	return c
}

func buildService(ctx context.Context, cfg config) (*qbservice.Service, func(), error) {
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli-sync", Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("init zap logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}

	locker, closeLocker, err := synclock.Open(ctx, cfg.Lock)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init sync locker: %w", err)
	}

	cleanup := func() {
		if err := closeLocker(); err != nil {
			logger.Warn("close sync locker", zap.Error(err))
		}
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}

	companyStore, err := persistence.NewCompanyStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init company store: %w", err)
	}
	connectionStore, err := persistence.NewConnectionStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init connection store: %w", err)
	}
	ledgerStore, err := persistence.NewLedgerStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init ledger store: %w", err)
	}
	syncLogStore, err := persistence.NewSyncLogStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init sync log store: %w", err)
	}

	client, err := quickbooks.NewClient(cfg.QuickBooks, &http.Client{Timeout: cfg.QuickBooks.HTTPTimeout})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init quickbooks client: %w", err)
	}

	svc := qbservice.New(qbservice.Deps{
		Repo:      qbrepo.NewPostgresRepository(connectionStore, ledgerStore, syncLogStore),
		OAuth:     client,
		Fetcher:   client,
		Locker:    locker,
		Companies: companiesservice.New(companiesrepo.NewPostgresRepository(companyStore)),
		Logger:    logger,
	}, cfg.Sync)
	return svc, cleanup, nil
}
