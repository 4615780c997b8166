package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-qbsync/contracts"
	companiesrepo "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/repo"
	companiesservice "github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
	qbhandler "github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/handler"
	qbrepo "github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/repo"
	qbservice "github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/gcp"
	platformlogging "github.com/zenGate-Global/palmyra-qbsync/platform/go/logging"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/palmyra-qbsync/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/synclock"
	tenantmiddleware "github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DBSchema        string        `env:"DB_SCHEMA" envDefault:"qbsync"`
	BootstrapSchema bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	CompanyCacheTTL time.Duration `env:"COMPANY_CACHE_TTL" envDefault:"1m"`

	Firebase   gcp.FirebaseConfig
	CORS       platformmiddleware.CORSConfig
	QuickBooks quickbooks.Config `envPrefix:"QUICKBOOKS_"`
	Sync       qbservice.Config
	Frontend   qbhandler.Config
	Lock       synclock.Config
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool, cfg.DBSchema); err != nil {
			logger.Fatal("bootstrap schema", zap.String("schema", cfg.DBSchema), zap.Error(err))
		}
		logger.Info("schema bootstrapped", zap.String("schema", cfg.DBSchema))
	}

	companyStore, err := persistence.NewCompanyStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		logger.Fatal("init company store", zap.Error(err))
	}
	connectionStore, err := persistence.NewConnectionStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		logger.Fatal("init connection store", zap.Error(err))
	}
	ledgerStore, err := persistence.NewLedgerStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		logger.Fatal("init ledger store", zap.Error(err))
	}
	syncLogStore, err := persistence.NewSyncLogStore(ctx, pool, cfg.DBSchema)
	if err != nil {
		logger.Fatal("init sync log store", zap.Error(err))
	}

	companyService := companiesservice.New(companiesrepo.NewPostgresRepository(companyStore))

	qbClient, err := quickbooks.NewClient(cfg.QuickBooks, &http.Client{Timeout: cfg.QuickBooks.HTTPTimeout})
	if err != nil {
		logger.Fatal("init quickbooks client", zap.Error(err))
	}

	locker, closeLocker, err := synclock.Open(ctx, cfg.Lock)
	if err != nil {
		logger.Fatal("init sync locker", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			logger.Warn("close sync locker", zap.Error(err))
		}
	}()
	if cfg.Lock.RedisAddress == "" {
		logger.Warn("REDIS_ADDRESS not set; sync lock is per-process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	qbService := qbservice.New(qbservice.Deps{
		Repo:      qbrepo.NewPostgresRepository(connectionStore, ledgerStore, syncLogStore),
		OAuth:     qbClient,
		Fetcher:   qbClient,
		Locker:    locker,
		Companies: companyService,
		Metrics:   metrics.NewSyncMetrics(registry),
		Logger:    logger,
	}, cfg.Sync)
	qbHTTPHandler := qbhandler.New(qbService, logger, cfg.Frontend)

	spec, err := contracts.QuickBooks()
	if err != nil {
		logger.Fatal("load quickbooks contract", zap.Error(err))
	}
	logSecuritySchemes(logger, "quickbooks", spec)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORS),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := persistence.Ping(r.Context(), pool); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", metrics.Handler(registry))

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformmiddleware.SpecValidator(spec))

	// Intuit redirects the browser here without a bearer token.
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformmiddleware.RequestTrace)
		qbHTTPHandler.PublicRoutes(r)
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(platformmiddleware.RequestTrace)
		r.Use(tenantmiddleware.WithCompany(companyService, tenantmiddleware.Config{CacheTTL: cfg.CompanyCacheTTL}))
		r.Use(platformmiddleware.CompanyLogger)
		qbHTTPHandler.Routes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("schema", cfg.DBSchema))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
