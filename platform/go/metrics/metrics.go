package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics records sync outcomes. Construct one per registry.
type SyncMetrics struct {
	records      *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	tokenRefresh *prometheus.CounterVec
}

// NewSyncMetrics registers the sync collectors on reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qbsync_records_upserted_total",
			Help: "Ledger rows upserted from QuickBooks",
		}, []string{"entity"}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qbsync_records_skipped_total",
			Help: "Remote records skipped because they failed validation",
		}, []string{"entity"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qbsync_failures_total",
			Help: "Failed entity syncs by error kind",
		}, []string{"entity", "kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qbsync_entity_duration_seconds",
			Help:    "Wall time of one entity sync",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity"}),
		tokenRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qbsync_token_refresh_total",
			Help: "Token refresh attempts by outcome",
		}, []string{"outcome"}),
	}
}

func (m *SyncMetrics) EntitySynced(entity string, upserted, skipped int, elapsed time.Duration) {
	m.records.WithLabelValues(entity).Add(float64(upserted))
	if skipped > 0 {
		m.skipped.WithLabelValues(entity).Add(float64(skipped))
	}
	m.duration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

func (m *SyncMetrics) EntityFailed(entity, kind string, elapsed time.Duration) {
	m.failures.WithLabelValues(entity, kind).Inc()
	m.duration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

func (m *SyncMetrics) TokenRefreshed(outcome string) {
	m.tokenRefresh.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
