package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.BrokerDriver != BrokerRedis || cfg.StoreDriver != StorePostgres || cfg.FaultInjection != FaultNone {
			t.Errorf("unexpected drivers: %+v", cfg)
		}
		if cfg.ProcessingDelayPerChar != 50*time.Millisecond || cfg.AckDeadline != time.Minute {
			t.Errorf("unexpected processing defaults: delay=%v deadline=%v", cfg.ProcessingDelayPerChar, cfg.AckDeadline)
		}
		if cfg.Topic != "ingestion-topic" || cfg.LogIDPolicy != LogIDPlaceholder {
			t.Errorf("unexpected topic or policy: %q %q", cfg.Topic, cfg.LogIDPolicy)
		}
	})

	t.Run("Environment Overrides", func(t *testing.T) {
		t.Setenv("BROKER_DRIVER", "kafka")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
		t.Setenv("PROCESSING_DELAY_PER_CHAR", "0s")
		t.Setenv("LOG_ID_POLICY", "uuid")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers); diff != "" {
			t.Errorf("unexpected brokers (-want +got):\n%s", diff)
		}
		if cfg.ProcessingDelayPerChar != 0 || cfg.LogIDPolicy != LogIDUUID {
			t.Errorf("unexpected overrides: %+v", cfg)
		}
	})

	invalid := []struct {
		name  string
		key   string
		value string
	}{
		{name: "Unknown Broker", key: "BROKER_DRIVER", value: "rabbitmq"},
		{name: "Unknown Store", key: "STORE_DRIVER", value: "firestore"},
		{name: "Unknown Fault Injection", key: "FAULT_INJECTION", value: "always"},
		{name: "Unknown Log ID Policy", key: "LOG_ID_POLICY", value: "sequential"},
		{name: "Zero Event Size", key: "MAX_EVENT_SIZE_BYTES", value: "0"},
		{name: "Bad Duration", key: "ACK_DEADLINE", value: "soon"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected an error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}
