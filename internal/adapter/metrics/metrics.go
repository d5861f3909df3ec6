package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SinkMetrics holds all Prometheus metrics for the telemetry sink.
type SinkMetrics struct {
	RecordsTotal      *prometheus.CounterVec
	RedactedTotal     prometheus.Counter
	FlushBytesTotal   prometheus.Counter
	FlushesTotal      prometheus.Counter
	RotationsTotal    prometheus.Counter
	BackpressureTotal prometheus.Counter
	QueueDepth        *prometheus.GaugeVec
	Published         *prometheus.CounterVec
	Subscribers       prometheus.Gauge
}

// New initializes and registers the metrics against the given registerer.
// Tests pass a private prometheus.NewRegistry.
func New(reg prometheus.Registerer) *SinkMetrics {
	factory := promauto.With(reg)

	return &SinkMetrics{
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of ingested records by category and status.",
		}, []string{"category", "status"}), // status: accepted, sampled_out, error_queue, error_closed
		RedactedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "ingest",
			Name:      "redacted_total",
			Help:      "Total number of records that had at least one redaction rule applied.",
		}),
		FlushBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "writer",
			Name:      "flush_bytes_total",
			Help:      "Total number of bytes handed to the append sink.",
		}),
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "writer",
			Name:      "flushes_total",
			Help:      "Total number of completed flush passes.",
		}),
		RotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "writer",
			Name:      "rotations_total",
			Help:      "Total number of file rotations (size cap or date rollover).",
		}),
		BackpressureTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "writer",
			Name:      "backpressure_total",
			Help:      "Total number of suspend-on-drain events caused by a busy sink.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "telemetry_sink",
			Subsystem: "writer",
			Name:      "queue_depth",
			Help:      "Current number of records queued but not yet flushed, per stream.",
		}, []string{"stream"}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "stream",
			Name:      "published_total",
			Help:      "Total number of live deliveries by outcome.",
		}, []string{"outcome"}), // outcome: delivered, failed
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "telemetry_sink",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of live subscribers.",
		}),
	}
}
