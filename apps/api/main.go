package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	caseshandler "github.com/mediamatex/lexarbitra-vue/domains/cases/be/handler"
	casesprov "github.com/mediamatex/lexarbitra-vue/domains/cases/be/provisioning"
	casesrepo "github.com/mediamatex/lexarbitra-vue/domains/cases/be/repo"
	casesservice "github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	"github.com/mediamatex/lexarbitra-vue/platform/go/kas"
	platformlogging "github.com/mediamatex/lexarbitra-vue/platform/go/logging"
	"github.com/mediamatex/lexarbitra-vue/platform/go/persistence"
	"github.com/mediamatex/lexarbitra-vue/platform/go/secrets"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	// AppKey derives the credential cipher; without it passwords are stored
	// in the clear (development only).
	AppKey     string `env:"APP_KEY"`
	AppKeySalt string `env:"APP_KEY_SALT" envDefault:"lexarbitra-credentials-v1"`

	CaseDBBackend string `env:"CASE_DB_BACKEND" envDefault:"local"` // local | kas
	CaseDBDir     string `env:"CASE_DB_DIR" envDefault:"./.data/cases"`
	CaseDBHost    string `env:"CASE_DB_HOST"`
	CaseDBPort    int    `env:"CASE_DB_PORT" envDefault:"3306"`

	KASLogin    string `env:"KAS_LOGIN"`
	KASPassword string `env:"KAS_PASSWORD"`
	KASEndpoint string `env:"KAS_ENDPOINT"`
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

	var cipher *secrets.Cipher
	if cfg.AppKey != "" {
		cipher, err = secrets.DeriveCipher(cfg.AppKey, []byte(cfg.AppKeySalt))
		if err != nil {
			logger.Fatal("derive credential cipher", zap.Error(err))
		}
	} else {
		logger.Warn("APP_KEY not set, database credentials are stored unencrypted")
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	caseStore, err := persistence.NewCaseReferenceStore(ctx, pool)
	if err != nil {
		logger.Fatal("init case reference store", zap.Error(err))
	}

	var provisioner casesservice.DatabaseProvisioner
	switch cfg.CaseDBBackend {
	case "local":
		provisioner = casesprov.NewLocal(cfg.CaseDBDir, logger)
	case "kas":
		if cfg.KASLogin == "" || cfg.KASPassword == "" || cfg.CaseDBHost == "" {
			logger.Fatal("KAS_LOGIN, KAS_PASSWORD and CASE_DB_HOST required when CASE_DB_BACKEND=kas")
		}
		client := kas.NewClient(kas.Config{
			Login:        cfg.KASLogin,
			Password:     cfg.KASPassword,
			Endpoint:     cfg.KASEndpoint,
			DatabaseHost: cfg.CaseDBHost,
			Logger:       logger,
		})
		provisioner = casesprov.NewKAS(client)
	default:
		logger.Fatal("invalid CASE_DB_BACKEND (use local or kas)", zap.String("backend", cfg.CaseDBBackend))
	}

	switchboard := casedb.NewSwitchboard(casedb.SwitchboardConfig{
		LocalMode: cfg.CaseDBBackend == "local",
		MySQLPort: cfg.CaseDBPort,
		Cipher:    cipher,
		Logger:    logger,
	})
	defer switchboard.CloseAll()

	caseService, err := casesservice.New(casesservice.Deps{
		Repo:        casesrepo.NewPostgres(caseStore),
		Provisioner: provisioner,
		Switchboard: switchboard,
		Migrator:    casedb.NewMigrator(logger),
		TenantCases: casedb.NewTenantCaseRepository(),
		Cipher:      cipher,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("init case service", zap.Error(err))
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rootRouter.Mount("/api/v1", caseshandler.New(caseService, logger).Routes())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("case_db_backend", cfg.CaseDBBackend),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
