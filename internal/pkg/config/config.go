package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	BrokerNone   = "none"
	BrokerRedis  = "redis"
	BrokerKafka  = "kafka"
	BrokerPubSub = "pubsub"

	StoreNone     = "none"
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	FaultNone   = "none"
	FaultMemory = "memory"
	FaultRedis  = "redis"

	LogIDPlaceholder = "placeholder"
	LogIDUUID        = "uuid"
)

// Config holds all application configuration. Every binary reads the same
// struct and uses the parts it needs.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	IngestServerAddr string `env:"INGEST_SERVER_ADDR" envDefault:":8080"`
	WorkerServerAddr string `env:"WORKER_SERVER_ADDR" envDefault:":8081"`
	AdminServerAddr  string `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	MaxEventSize     int64  `env:"MAX_EVENT_SIZE_BYTES" envDefault:"1048576"` // 1MB
	LogIDPolicy      string `env:"LOG_ID_POLICY" envDefault:"placeholder"`

	BrokerDriver   string        `env:"BROKER_DRIVER" envDefault:"redis"`
	Topic          string        `env:"TOPIC" envDefault:"ingestion-topic"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisGroup     string `env:"REDIS_GROUP" envDefault:"log-processors"`
	RedisDLQStream string `env:"REDIS_DLQ_STREAM" envDefault:"ingestion-topic-dlq"`
	RedisMaxLen    int64  `env:"REDIS_STREAM_MAXLEN" envDefault:"0"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID  string   `env:"KAFKA_GROUP_ID" envDefault:"log-processors"`
	KafkaDLQTopic string   `env:"KAFKA_DLQ_TOPIC" envDefault:"ingestion-topic-dlq"`

	PubSubProjectID string `env:"GOOGLE_CLOUD_PROJECT"`

	WALPath             string        `env:"WAL_PATH"`
	WALSegmentSize      int64         `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`  // 100MB
	WALMaxDiskSize      int64         `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB
	SpoolReplayInterval time.Duration `env:"SPOOL_REPLAY_INTERVAL" envDefault:"5s"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresURL string `env:"POSTGRES_URL"`

	ProcessingDelayPerChar time.Duration `env:"PROCESSING_DELAY_PER_CHAR" envDefault:"50ms"`
	AckDeadline            time.Duration `env:"ACK_DEADLINE" envDefault:"60s"`

	FaultInjection string        `env:"FAULT_INJECTION" envDefault:"none"`
	FaultMarker    string        `env:"FAULT_MARKER" envDefault:"CRASH_ONCE"`
	FaultMarkerTTL time.Duration `env:"FAULT_MARKER_TTL" envDefault:"24h"`

	// FaultMarkerCapacity bounds the in-memory marker store.
	FaultMarkerCapacity int `env:"FAULT_MARKER_CAPACITY" envDefault:"100000"`

	PushEndpoint     string        `env:"PUSH_ENDPOINT" envDefault:"http://localhost:8081/"`
	Subscription     string        `env:"SUBSCRIPTION" envDefault:"ingestion-push"`
	RelayBatchSize   int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	RelayConcurrency int           `env:"RELAY_CONCURRENCY" envDefault:"8"`
	RelayRateLimit   float64       `env:"RELAY_RATE_LIMIT" envDefault:"100"`
	RelayIdleWait    time.Duration `env:"RELAY_IDLE_WAIT" envDefault:"500ms"`
	RelayConsumer    string        `env:"RELAY_CONSUMER"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	checks := []struct {
		name    string
		value   string
		allowed []string
	}{
		{"BROKER_DRIVER", c.BrokerDriver, []string{BrokerNone, BrokerRedis, BrokerKafka, BrokerPubSub}},
		{"STORE_DRIVER", c.StoreDriver, []string{StoreNone, StoreMemory, StorePostgres}},
		{"FAULT_INJECTION", c.FaultInjection, []string{FaultNone, FaultMemory, FaultRedis}},
		{"LOG_ID_POLICY", c.LogIDPolicy, []string{LogIDPlaceholder, LogIDUUID}},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.allowed, chk.value) {
			return fmt.Errorf("invalid %s %q: must be one of %s", chk.name, chk.value, strings.Join(chk.allowed, ", "))
		}
	}
	if c.MaxEventSize <= 0 {
		return fmt.Errorf("invalid MAX_EVENT_SIZE_BYTES %d: must be positive", c.MaxEventSize)
	}
	return nil
}
