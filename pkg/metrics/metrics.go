package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	WorkloadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalyst_workloads_total",
			Help: "Total number of workloads by lifecycle state",
		},
		[]string{"state"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalyst_nodes_total",
			Help: "Total number of nodes by connectivity status",
		},
		[]string{"status"},
	)

	TemplatesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalyst_templates_total",
			Help: "Total number of installed templates",
		},
	)

	// Gateway metrics
	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_gateway_commands_sent_total",
			Help: "Total number of commands sent to agents by type",
		},
		[]string{"type"},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_gateway_events_received_total",
			Help: "Total number of agent events received by type",
		},
		[]string{"type"},
	)

	GatewaySendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalyst_gateway_send_duration_seconds",
			Help:    "Time spent admitting a frame into an agent session",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Lifecycle metrics
	WorkloadCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalyst_workload_crashes_total",
			Help: "Total number of workload crash exits observed",
		},
	)

	CrashRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalyst_workload_crash_restarts_total",
			Help: "Total number of automatic restarts issued after a crash",
		},
	)

	// Transfer metrics
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_transfers_total",
			Help: "Total number of workload transfers by result",
		},
		[]string{"result"},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_backups_total",
			Help: "Total number of backups by mode and result",
		},
		[]string{"mode", "result"},
	)

	// Surface metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalyst_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalyst_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	SFTPSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalyst_sftp_sessions_active",
			Help: "Currently open SFTP sessions",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(TemplatesTotal)
	prometheus.MustRegister(CommandsSent)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(GatewaySendDuration)
	prometheus.MustRegister(WorkloadCrashes)
	prometheus.MustRegister(CrashRestarts)
	prometheus.MustRegister(TransfersTotal)
	prometheus.MustRegister(BackupsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SFTPSessionsActive)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on a histogram
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on a labeled histogram
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
