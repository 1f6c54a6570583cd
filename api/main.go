package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/alerts"
	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/config"
	"github.com/rogerio-castellano/fleet-maintenance/internal/db"
	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/http/handlers"
	rl "github.com/rogerio-castellano/fleet-maintenance/internal/http/rate_limiter"
	"github.com/rogerio-castellano/fleet-maintenance/internal/http/router"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/logger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/redissvc"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/rogerio-castellano/fleet-maintenance/internal/seed"
	"go.uber.org/zap"
)

const refreshCleanupInterval = 30 * time.Minute

type stores struct {
	ledger  repo.LedgerStore
	metrics repo.MetricsRepository
	users   repo.UserRepository
	fleet   repo.FleetStore
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*stores, error) {
	if cfg.Storage.Driver != "postgres" {
		ls := repo.NewInMemoryLedgerStore()
		return &stores{
			ledger:  ls,
			metrics: repo.NewInMemoryMetricsRepository(ls),
			users:   repo.NewInMemoryUserRepository(),
			fleet:   repo.NewInMemoryFleetStore(),
			close:   func() {},
		}, nil
	}

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, err
	}
	gdb, err := db.OpenGorm(database.DB, zl)
	if err != nil {
		database.Close()
		return nil, err
	}

	timeout := cfg.Ledger.OpTimeout
	return &stores{
		ledger:  repo.NewPostgresLedgerStore(database, timeout),
		metrics: repo.NewPostgresMetricsRepository(database, timeout),
		users:   repo.NewPostgresUserRepository(database, timeout),
		fleet:   repo.NewGormFleetStore(gdb),
		close:   func() { database.Close() },
	}, nil
}

// @title Fleet Maintenance API
// @version 1.0
// @description REST API for harvester maintenance and the spare-parts inventory ledger.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("could not open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer st.close()

	var (
		guard     ledger.Guard
		refresh   auth.RefreshStore
		eventLog  alerts.EventLog
		memTokens *auth.MemoryRefreshStore
	)
	if cfg.Redis.Enabled {
		rs, err := redissvc.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 5*time.Second)
		if err != nil {
			zl.Fatal("could not connect to redis", zap.Error(err))
		}
		defer rs.Close()
		guard = rs.IdempotencyGuard(cfg.Redis.IdempotencyTTL)
		refresh = auth.NewRedisRefreshStore(rs.Rdb())
		eventLog = alerts.NewRedisEventLog(rs.Rdb())
	} else {
		guard = ledger.NewMemoryGuard()
		memTokens = auth.NewMemoryRefreshStore()
		refresh = memTokens
		eventLog = alerts.NewMemoryEventLog()
	}

	engine := ledger.NewEngine(st.ledger, guard, zl.Named("ledger"), ledger.Options{
		RetryAttempts: cfg.Ledger.RetryAttempts,
		RetryBackoff:  cfg.Ledger.RetryBackoff,
	})
	notifier := alerts.NewNotifier(eventLog, cfg.Alerts, zl)
	engine.SetAlerter(notifier)

	catalog := ledger.NewCatalog(st.ledger, zl.Named("catalog"))
	fleetSvc := fleet.NewService(st.fleet, engine, zl)

	if cfg.Seed.Demo {
		if err := seed.Demo(ctx, st.users, catalog, fleetSvc, cfg.Seed.AdminPassword, zl.Named("seed")); err != nil {
			zl.Fatal("could not seed demo data", zap.Error(err))
		}
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := handlers.NewServer(handlers.Deps{
		Catalog:    catalog,
		Engine:     engine,
		Reporter:   ledger.NewReporter(st.ledger, st.metrics),
		Movements:  st.ledger,
		Fleet:      fleetSvc,
		Alerts:     notifier,
		Users:      st.users,
		Tokens:     tokens,
		Refresh:    refresh,
		RefreshTTL: cfg.Auth.RefreshTTL,
		OpTimeout:  cfg.Ledger.OpTimeout,
		Log:        zl,
	})
	limiter := rl.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	if cfg.Ledger.AuditInterval > 0 {
		go engine.StartAuditLoop(ctx, cfg.Ledger.AuditInterval, cfg.Ledger.AuditRepair)
	}
	go notifier.StartDailySummary(ctx, cfg.Alerts.SummaryInterval)
	go limiter.StartVisitorCleanupLoop(ctx)
	if memTokens != nil {
		go memTokens.StartRefreshTokenCleaner(ctx, refreshCleanupInterval)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.NewRouter(router.Options{Server: srv, Tokens: tokens, Limiter: limiter, Log: zl}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zl.Info("server running", zap.String("addr", cfg.Server.Addr), zap.String("storage", cfg.Storage.Driver), zap.Bool("redis", cfg.Redis.Enabled))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
