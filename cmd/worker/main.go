package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/V4T54L/tenantlog/internal/adapter/api"
	"github.com/V4T54L/tenantlog/internal/adapter/api/handler"
	brokerredis "github.com/V4T54L/tenantlog/internal/adapter/broker/redis"
	"github.com/V4T54L/tenantlog/internal/adapter/faultinject"
	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/adapter/repository/memory"
	"github.com/V4T54L/tenantlog/internal/adapter/repository/postgres"
	"github.com/V4T54L/tenantlog/internal/domain"
	"github.com/V4T54L/tenantlog/internal/pkg/config"
	"github.com/V4T54L/tenantlog/internal/pkg/logger"
	"github.com/V4T54L/tenantlog/internal/usecase"
)

const faultMarkerPrefix = "tenantlog:fault:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting worker", "store", cfg.StoreDriver, "fault_injection", cfg.FaultInjection)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewDeliveryMetrics(reg)

	// --- Tenant Store ---
	repo, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Fault Injection ---
	faults, closeFaults, err := newFaultInjector(ctx, cfg, log)
	if err != nil {
		log.Error("failed to set up fault injection", "mode", cfg.FaultInjection, "error", err)
		os.Exit(1)
	}
	defer closeFaults()

	// --- Delivery Handler ---
	processUseCase := usecase.NewProcessLogUseCase(usecase.NewStoreWriter(repo), faults, cfg.ProcessingDelayPerChar, log, m)
	pushHandler := handler.NewPushHandler(processUseCase, log, cfg.AckDeadline)

	var logsHandler *handler.TenantLogHandler
	if repo != nil {
		logsHandler = handler.NewTenantLogHandler(repo, log)
	}

	server := &http.Server{
		Addr:        cfg.WorkerServerAddr,
		Handler:     api.NewWorkerRouter(log, pushHandler, logsHandler, reg),
		ReadTimeout: 10 * time.Second,
		// A delivery may take up to the ack deadline before it answers.
		WriteTimeout: cfg.AckDeadline + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting worker server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight deliveries...")

	// In-flight deliveries that do not finish in time are simply redelivered.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("worker server shutdown failed", "error", err)
	}

	log.Info("worker shut down gracefully")
}

// openStore returns the configured repository, or nil when no store is
// configured. The result is an untyped nil in that case so the store
// writer can tell.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.ProcessedLogRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreNone:
		log.Warn("no store configured, deliveries are acknowledged without persisting")
		return nil, func() {}, nil

	case config.StoreMemory:
		return memory.NewProcessedLogRepository(), func() {}, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo := postgres.NewProcessedLogRepository(db, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres")
		return repo, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newFaultInjector(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.FaultInjector, func(), error) {
	switch cfg.FaultInjection {
	case config.FaultNone:
		return faultinject.Disabled{}, func() {}, nil

	case config.FaultMemory:
		log.Warn("fault injection enabled, markers are lost on restart", "marker", cfg.FaultMarker, "marker_ttl", cfg.FaultMarkerTTL, "capacity", cfg.FaultMarkerCapacity)
		return faultinject.NewCrashOnce(cfg.FaultMarker, faultinject.NewMemoryMarkerStore(cfg.FaultMarkerCapacity, cfg.FaultMarkerTTL)), func() {}, nil

	case config.FaultRedis:
		client, err := brokerredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		log.Warn("fault injection enabled", "marker", cfg.FaultMarker, "marker_ttl", cfg.FaultMarkerTTL)
		store := faultinject.NewRedisMarkerStore(client, faultMarkerPrefix, cfg.FaultMarkerTTL)
		return faultinject.NewCrashOnce(cfg.FaultMarker, store), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown fault injection mode %q", cfg.FaultInjection)
}
