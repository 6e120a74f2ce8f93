package metrics

import (
	"strconv"
	"time"

	"rpc-proxy/internal/application/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "rpc_proxy"

// Compile-time check
var _ port.MetricsRecorder = (*Recorder)(nil)

// Recorder implements port.MetricsRecorder on a dedicated Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	forwardTotal    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	sessionsActive  *prometheus.GaugeVec
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	messagesTotal   *prometheus.CounterVec
	messageBytes    *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		forwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_requests_total",
			Help:      "HTTP requests handled by the forwarder, labeled by network, outcome and upstream status.",
		}, []string{"network", "outcome", "status"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_header_duration_seconds",
			Help:      "Time until upstream response headers arrived.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		}, []string{"network", "outcome"}),
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_sessions_active",
			Help:      "Currently bridged WebSocket sessions.",
		}, []string{"network"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_sessions_total",
			Help:      "Finished WebSocket sessions, labeled by terminal state.",
		}, []string{"network", "state"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "websocket_session_duration_seconds",
			Help:      "Lifetime of bridged WebSocket sessions.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400},
		}, []string{"network"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Relayed WebSocket messages.",
		}, []string{"network", "direction"}),
		messageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_message_bytes_total",
			Help:      "Relayed WebSocket payload bytes.",
		}, []string{"network", "direction"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.forwardTotal,
		r.forwardDuration,
		r.sessionsActive,
		r.sessionsTotal,
		r.sessionDuration,
		r.messagesTotal,
		r.messageBytes,
	)
	return r
}

func (r *Recorder) ObserveForward(network, outcome string, status int, duration time.Duration) {
	r.forwardTotal.WithLabelValues(network, outcome, strconv.Itoa(status)).Inc()
	r.forwardDuration.WithLabelValues(network, outcome).Observe(duration.Seconds())
}

func (r *Recorder) SessionOpened(network string) {
	r.sessionsActive.WithLabelValues(network).Inc()
}

func (r *Recorder) SessionClosed(network string, state port.SessionState, duration time.Duration) {
	r.sessionsActive.WithLabelValues(network).Dec()
	r.sessionsTotal.WithLabelValues(network, string(state)).Inc()
	r.sessionDuration.WithLabelValues(network).Observe(duration.Seconds())
}

func (r *Recorder) MessageRelayed(network, direction string, size int) {
	r.messagesTotal.WithLabelValues(network, direction).Inc()
	r.messageBytes.WithLabelValues(network, direction).Add(float64(size))
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
}
