package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of one server instance. Each instance owns
// its registry so tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	// Ingestion metrics
	ReadingsIngested *prometheus.CounterVec
	ReadingsRejected *prometheus.CounterVec
	HistorySize      prometheus.Gauge

	// Sink metrics
	SinkWrites        *prometheus.CounterVec
	SinkWriteDuration *prometheus.HistogramVec

	// Actuator metrics
	BuzzerMode *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ReadingsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Readings accepted by the ingestion pipeline",
		}, []string{"path"}),

		ReadingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Readings rejected before any side effect",
		}, []string{"path"}),

		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "history_size",
			Help: "Readings currently held in the in-memory history",
		}),

		SinkWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Sink write attempts by outcome",
		}, []string{"sink", "result"}),

		SinkWriteDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sink_write_duration_seconds",
			Help:    "Sink write latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"sink"}),

		BuzzerMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "buzzer_mode",
			Help: "1 for the current buzzer mode, 0 otherwise",
		}, []string{"mode"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// SetBuzzerMode marks mode as the active one among modes
func (m *Metrics) SetBuzzerMode(mode string, modes []string) {
	for _, candidate := range modes {
		v := 0.0
		if candidate == mode {
			v = 1
		}
		m.BuzzerMode.WithLabelValues(candidate).Set(v)
	}
}
