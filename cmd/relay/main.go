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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/V4T54L/tenantlog/internal/adapter/api"
	"github.com/V4T54L/tenantlog/internal/adapter/broker/kafka"
	brokerredis "github.com/V4T54L/tenantlog/internal/adapter/broker/redis"
	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/adapter/push"
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

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRelayMetrics(reg)

	// Create a unique consumer name for this instance
	consumerName := cfg.RelayConsumer
	if consumerName == "" {
		consumerName, err = os.Hostname()
		if err != nil {
			log.Warn("could not get hostname for consumer name, using default", "error", err)
			consumerName = "relay-default"
		}
	}

	source, closeSource, err := openDeliverySource(ctx, cfg, log, consumerName)
	if err != nil {
		log.Error("failed to open delivery source", "driver", cfg.BrokerDriver, "error", err)
		os.Exit(1)
	}
	defer closeSource()

	var limiter *rate.Limiter
	if cfg.RelayRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RelayRateLimit), max(cfg.RelayConcurrency, 1))
	}

	pusher := push.NewHTTPPusher(cfg.PushEndpoint, cfg.Subscription, cfg.AckDeadline)
	relay := usecase.NewRelayDeliveriesUseCase(source, pusher, log, m, usecase.RelayOptions{
		BatchSize:   cfg.RelayBatchSize,
		Concurrency: cfg.RelayConcurrency,
		Limiter:     limiter,
	})

	metricsServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: api.NewAdminRouter(log, nil, nil, reg),
	}
	go func() {
		log.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	log.Info("push relay started", "topic", cfg.Topic, "consumer", consumerName, "endpoint", cfg.PushEndpoint)
	relay.Run(ctx, cfg.RelayIdleWait)

	log.Info("context cancelled, shutting down relay")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}

	log.Info("push relay shut down gracefully")
}

// openDeliverySource returns the pull side of the configured broker.
// Pub/Sub pushes natively and needs no relay.
func openDeliverySource(ctx context.Context, cfg *config.Config, log *slog.Logger, consumerName string) (domain.DeliverySource, func(), error) {
	switch cfg.BrokerDriver {
	case config.BrokerRedis:
		client, err := brokerredis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		source, err := brokerredis.NewDeliverySource(ctx, client, log, brokerredis.DeliveryOptions{
			Stream:      cfg.Topic,
			Group:       cfg.RedisGroup,
			Consumer:    consumerName,
			DLQStream:   cfg.RedisDLQStream,
			AckDeadline: cfg.AckDeadline,
		})
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return source, func() { client.Close() }, nil

	case config.BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, errors.New("KAFKA_BROKERS is required for the kafka broker")
		}
		source := kafka.NewDeliverySource(
			kafka.NewReader(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.Topic),
			kafka.NewWriter(cfg.KafkaBrokers, log),
			log,
			kafka.DeliveryOptions{DLQTopic: cfg.KafkaDLQTopic, RedeliveryDelay: cfg.AckDeadline},
		)
		return source, func() { source.Close() }, nil

	case config.BrokerPubSub:
		return nil, nil, errors.New("pubsub pushes to the worker directly, no relay is needed")
	}
	return nil, nil, fmt.Errorf("broker driver %q has no delivery source", cfg.BrokerDriver)
}
