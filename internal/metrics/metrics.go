// Package metrics exposes Prometheus instrumentation for the console.
//
// Collectors live on a private registry so every daemon (and test) gets an
// isolated set. Labels are bounded: op is one of the remote operations,
// result is "ok" or "error", kind is a webhook field name.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the console's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	syncRuns      *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	syncRejected  prometheus.Counter
	webhookEvents *prometheus.CounterVec
	openConvs     prometheus.Gauge
}

// New creates and registers the collectors, plus Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waconsole_remote_calls_total",
			Help: "Remote messaging API calls by operation and result.",
		}, []string{"op", "result"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waconsole_remote_call_duration_seconds",
			Help:    "Duration of remote messaging API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waconsole_database_sync_runs_total",
			Help: "Database sync runs by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waconsole_database_sync_duration_seconds",
			Help:    "Duration of database snapshot pushes.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		syncRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waconsole_database_sync_rejected_total",
			Help: "Sync requests dropped because a run was in flight.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waconsole_webhook_events_total",
			Help: "Webhook change notifications by kind.",
		}, []string{"kind"}),
		openConvs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waconsole_conversations_ready",
			Help: "Conversations loaded into the cache.",
		}),
	}
	m.registry.MustRegister(
		m.remoteCalls, m.remoteLatency,
		m.syncRuns, m.syncDuration, m.syncRejected,
		m.webhookEvents, m.openConvs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// WatchBus exports dropped as the count of bus deliveries skipped on full
// subscribers.
func (m *Metrics) WatchBus(dropped func() uint64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "waconsole_bus_dropped_events_total",
		Help: "Events not delivered because a subscriber buffer was full.",
	}, func() float64 { return float64(dropped()) }))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRemote records one remote call.
func (m *Metrics) ObserveRemote(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, result(err)).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveSync records a completed database sync run.
func (m *Metrics) ObserveSync(started time.Time, err error) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result(err)).Inc()
	m.syncDuration.Observe(time.Since(started).Seconds())
}

// SyncRejected counts a sync request dropped by the in-flight guard.
func (m *Metrics) SyncRejected() {
	if m == nil {
		return
	}
	m.syncRejected.Inc()
}

// WebhookEvent counts one webhook change of the given kind.
func (m *Metrics) WebhookEvent(kind string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind).Inc()
}

// ConversationReady bumps the loaded-conversations gauge.
func (m *Metrics) ConversationReady() {
	if m == nil {
		return
	}
	m.openConvs.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
