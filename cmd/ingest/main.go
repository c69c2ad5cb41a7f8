package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/V4T54L/tenantlog/internal/adapter/api"
	"github.com/V4T54L/tenantlog/internal/adapter/api/handler"
	"github.com/V4T54L/tenantlog/internal/adapter/broker/kafka"
	"github.com/V4T54L/tenantlog/internal/adapter/broker/pubsub"
	brokerredis "github.com/V4T54L/tenantlog/internal/adapter/broker/redis"
	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/adapter/repository/wal"
	"github.com/V4T54L/tenantlog/internal/domain"
	"github.com/V4T54L/tenantlog/internal/pkg/config"
	"github.com/V4T54L/tenantlog/internal/pkg/logger"
	"github.com/V4T54L/tenantlog/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIngestMetrics(reg)

	// --- Broker ---
	b, err := connectBroker(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize broker", "driver", cfg.BrokerDriver, "error", err)
		os.Exit(1)
	}
	defer b.close()

	// --- Local Spool ---
	var spool domain.SpoolRepository
	if cfg.WALPath != "" && b.publisher != nil {
		s, err := wal.NewSpool(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, logger)
		if err != nil {
			logger.Error("failed to initialize spool", "path", cfg.WALPath, "error", err)
			os.Exit(1)
		}
		defer s.Close()
		spool = s
	}

	// --- Use Cases ---
	normalizer := usecase.NewNormalizer(cfg.LogIDPolicy == config.LogIDUUID)
	ingestUseCase := usecase.NewIngestLogUseCase(normalizer, b.publisher, spool, logger, m, cfg.Topic, cfg.PublishTimeout)
	go ingestUseCase.RunSpoolReplayer(ctx, cfg.SpoolReplayInterval)

	sseBroker := handler.NewSSEBroker(ctx, logger)

	// --- Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: api.NewAdminRouter(logger, b.admin, sseBroker, reg),
	}

	// --- Ingest Server ---
	ingestHandler := handler.NewIngestHandler(ingestUseCase, logger, cfg.MaxEventSize, m, sseBroker)
	ingestServer := &http.Server{
		Addr:         cfg.IngestServerAddr,
		Handler:      api.NewIngestRouter(logger, ingestHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.PublishTimeout + 5*time.Second,
		IdleTimeout:  15 * time.Second,
	}

	for name, srv := range map[string]*http.Server{"admin": adminServer, "ingest": ingestServer} {
		go func() {
			logger.Info("starting server", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server failed", "server", name, "error", err)
				stop() // Trigger shutdown on server error
			}
		}()
	}

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingest server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

// broker bundles the publishing side of the configured broker.
type broker struct {
	publisher domain.Publisher
	// admin is set only for brokers whose streams can be inspected.
	admin *usecase.AdminStreamUseCase
	close func()
}

func connectBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*broker, error) {
	b := &broker{close: func() {}}

	switch cfg.BrokerDriver {
	case config.BrokerNone:
		logger.Warn("no broker configured, records are logged and dropped")

	case config.BrokerRedis:
		client, err := brokerredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.publisher = brokerredis.NewPublisher(client, cfg.RedisMaxLen)
		b.admin = usecase.NewAdminStreamUseCase(brokerredis.NewAdminRepository(client, logger))
		b.close = func() { client.Close() }

	case config.BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required for the kafka broker")
		}
		p := kafka.NewPublisher(kafka.NewWriter(cfg.KafkaBrokers, logger))
		b.publisher = p
		b.close = func() { p.Close() }

	case config.BrokerPubSub:
		if cfg.PubSubProjectID == "" {
			return nil, errors.New("GOOGLE_CLOUD_PROJECT is required for the pubsub broker")
		}
		p, err := pubsub.NewPublisher(ctx, cfg.PubSubProjectID, logger)
		if err != nil {
			return nil, err
		}
		b.publisher = p
		b.close = func() { p.Close() }

	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.BrokerDriver)
	}

	return b, nil
}
