package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenantlog"

// IngestMetrics holds all Prometheus metrics for the ingest service.
type IngestMetrics struct {
	SubmissionsTotal *prometheus.CounterVec
	BytesTotal       prometheus.Counter
	PublishFailures  prometheus.Counter
	SpoolActive      prometheus.Gauge
}

// NewIngestMetrics initializes and registers the ingest metrics with reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	f := promauto.With(reg)
	return &IngestMetrics{
		SubmissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "submissions_total",
			Help:      "Total number of submissions by status.",
		}, []string{"status"}), // status: accepted, error_validation, error_media_type, error_size
		BytesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes accepted.",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "publish_failures_total",
			Help:      "Total number of records the broker did not confirm.",
		}),
		SpoolActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "spool_active_gauge",
			Help:      "1 while the local spool holds records waiting for replay, 0 otherwise.",
		}),
	}
}

// DeliveryMetrics holds the worker's delivery handling metrics.
type DeliveryMetrics struct {
	DeliveriesTotal   *prometheus.CounterVec
	ProcessingSeconds prometheus.Histogram
	InjectedFaults    prometheus.Counter
}

// NewDeliveryMetrics initializes and registers the delivery metrics with reg.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	f := promauto.With(reg)
	return &DeliveryMetrics{
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "deliveries_total",
			Help:      "Total number of push deliveries by final state.",
		}, []string{"state"}), // state: acknowledged, rejected, retry
		ProcessingSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "processing_seconds",
			Help:      "Time spent handling one delivery, including the processing delay.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		InjectedFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "injected_faults_total",
			Help:      "Total number of deliberately failed delivery attempts.",
		}),
	}
}

// RelayMetrics holds the push relay metrics.
type RelayMetrics struct {
	PushesTotal *prometheus.CounterVec
	BatchSize   prometheus.Histogram
}

// NewRelayMetrics initializes and registers the relay metrics with reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	f := promauto.With(reg)
	return &RelayMetrics{
		PushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "pushes_total",
			Help:      "Total number of push attempts by result.",
		}, []string{"result"}), // result: acked, dead_lettered, retry
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "batch_size",
			Help:      "Number of messages read per relay batch.",
			Buckets:   prometheus.LinearBuckets(0, 25, 9),
		}),
	}
}
