// Package metrics registers prometheus instruments for the bridge.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	syncRuns           prometheus.Counter
	syncTenantFailures *prometheus.CounterVec
	syncRecordsCached  *prometheus.CounterVec
	syncDuration       prometheus.Histogram
	submissions        *prometheus.CounterVec
	callbacks          *prometheus.CounterVec
	correlationEntries prometheus.Gauge
}

var (
	instance *Metrics
	mu       sync.Mutex
)

// Default returns the process-wide metrics, registering instruments on
// first use.
func Default() *Metrics {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = newMetrics(prometheus.DefaultRegisterer)
	}
	return instance
}

// ResetForTest drops the shared instance so tests can install their own
// registry.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		syncRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "fapiaolink_sync_runs_total",
			Help: "Number of sync engine ticks executed.",
		}),
		syncTenantFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fapiaolink_sync_tenant_failures_total",
			Help: "Per-tenant sync failures.",
		}, []string{"tenant"}),
		syncRecordsCached: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fapiaolink_sync_records_cached_total",
			Help: "Invoice records inserted into the cache.",
		}, []string{"tenant"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fapiaolink_sync_duration_seconds",
			Help:    "Duration of a full sync tick.",
			Buckets: prometheus.DefBuckets,
		}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fapiaolink_submissions_total",
			Help: "Provider submissions by kind and result.",
		}, []string{"kind", "result"}),
		callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fapiaolink_callbacks_total",
			Help: "Provider callbacks by reconciliation result.",
		}, []string{"result"}),
		correlationEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fapiaolink_correlation_entries",
			Help: "Live entries in the correlation cache.",
		}),
	}
}

func (m *Metrics) IncSyncRun() { m.syncRuns.Inc() }

func (m *Metrics) ObserveSyncDuration(d time.Duration) {
	m.syncDuration.Observe(d.Seconds())
}

func (m *Metrics) IncSyncTenantFailure(tenant string) {
	m.syncTenantFailures.WithLabelValues(tenant).Inc()
}

func (m *Metrics) AddRecordsCached(tenant string, n int) {
	if n > 0 {
		m.syncRecordsCached.WithLabelValues(tenant).Add(float64(n))
	}
}

func (m *Metrics) IncSubmission(kind, result string) {
	m.submissions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) IncCallback(result string) {
	m.callbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCorrelationEntries(n int) {
	m.correlationEntries.Set(float64(n))
}
