package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wabridge_sessions_active",
			Help: "Number of WhatsApp clients held in the session registry",
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wabridge_realtime_connections",
			Help: "Number of open real-time connections on this instance",
		},
	)

	BridgeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_bridge_events_total",
			Help: "Client lifecycle events handled by the bridge, by event",
		},
		[]string{"event"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_commands_total",
			Help: "Real-time commands processed, by command and result",
		},
		[]string{"command", "result"},
	)

	StoreWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_store_write_failures_total",
			Help: "Store writes that failed and were logged, by operation",
		},
		[]string{"op"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wabridge_http_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wabridge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(RealtimeConnections)
	prometheus.MustRegister(BridgeEventsTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(StoreWriteFailures)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer helps measure operation duration
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}
