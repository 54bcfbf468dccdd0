package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mcdev12/rmsqueue/go/internal/queue/notify"
	"github.com/mcdev12/rmsqueue/go/internal/queue/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for collecting queue client metrics
type Collector interface {
	SnapshotProcessed(state status.State)
	ProtocolError()
	NotificationEmitted(kind notify.Kind)
	MembershipRequest(enqueue, success bool, duration time.Duration)
}

// NoOpCollector is a no-op implementation for when metrics aren't needed
type NoOpCollector struct{}

func (NoOpCollector) SnapshotProcessed(status.State)              {}
func (NoOpCollector) ProtocolError()                              {}
func (NoOpCollector) NotificationEmitted(notify.Kind)             {}
func (NoOpCollector) MembershipRequest(bool, bool, time.Duration) {}

// PrometheusCollector implements Collector on its own registry
type PrometheusCollector struct {
	registry *prometheus.Registry

	snapshots       *prometheus.CounterVec
	protocolErrors  prometheus.Counter
	notifications   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	state           *prometheus.GaugeVec
}

// NewPrometheusCollector creates and registers the queue client metrics
func NewPrometheusCollector() *PrometheusCollector {
	c := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmsqueue",
			Name:      "snapshots_processed_total",
			Help:      "Queue snapshots processed, by derived state.",
		}, []string{"state"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rmsqueue",
			Name:      "protocol_errors_total",
			Help:      "Snapshots dropped because they did not follow the wire contract.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmsqueue",
			Name:      "notifications_total",
			Help:      "Notifications emitted to the UI, by type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmsqueue",
			Name:      "membership_requests_total",
			Help:      "Membership requests sent to the queue manager.",
		}, []string{"enqueue", "success"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rmsqueue",
			Name:      "membership_request_duration_seconds",
			Help:      "Round trip time of membership requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"enqueue"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rmsqueue",
			Name:      "client_state",
			Help:      "1 for the client's current derived state, 0 otherwise.",
		}, []string{"state"}),
	}

	c.registry.MustRegister(
		c.snapshots,
		c.protocolErrors,
		c.notifications,
		c.requests,
		c.requestDuration,
		c.state,
	)
	c.setState(status.NotQueued)
	return c
}

func (c *PrometheusCollector) SnapshotProcessed(state status.State) {
	c.snapshots.WithLabelValues(string(state)).Inc()
	c.setState(state)
}

func (c *PrometheusCollector) ProtocolError() {
	c.protocolErrors.Inc()
}

func (c *PrometheusCollector) NotificationEmitted(kind notify.Kind) {
	c.notifications.WithLabelValues(string(kind)).Inc()
}

func (c *PrometheusCollector) MembershipRequest(enqueue, success bool, duration time.Duration) {
	e := strconv.FormatBool(enqueue)
	c.requests.WithLabelValues(e, strconv.FormatBool(success)).Inc()
	c.requestDuration.WithLabelValues(e).Observe(duration.Seconds())
}

func (c *PrometheusCollector) setState(current status.State) {
	for _, s := range []status.State{status.NotQueued, status.Waiting, status.Active} {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
}

// Registry exposes the underlying registry, mainly for tests
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
