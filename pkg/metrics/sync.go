package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records the outcome of accounting sync runs.
type SyncMetrics struct {
	invoicesSynced *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	retryAttempts  prometheus.Counter
	pendingGauge   prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	invoicesSynced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staging_invoices_synced_total",
		Help: "Staging invoices processed by the sync worker, by outcome.",
	}, []string{"outcome"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_batch_duration_seconds",
		Help:    "Duration of one sync batch run in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	retryAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_retry_attempts_total",
		Help: "Retry attempts made while syncing staging invoices.",
	})
	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "staging_invoices_pending",
		Help: "Staging invoices currently waiting for sync.",
	})
	reg.MustRegister(invoicesSynced, batchDuration, retryAttempts, pendingGauge)
	return &SyncMetrics{
		invoicesSynced: invoicesSynced,
		batchDuration:  batchDuration,
		retryAttempts:  retryAttempts,
		pendingGauge:   pendingGauge,
	}
}

// IncSynced counts a successfully synced invoice.
func (s *SyncMetrics) IncSynced() {
	if s == nil || s.invoicesSynced == nil {
		return
	}
	s.invoicesSynced.WithLabelValues("synced").Inc()
}

// IncFailed counts an invoice whose sync attempt failed.
func (s *SyncMetrics) IncFailed() {
	if s == nil || s.invoicesSynced == nil {
		return
	}
	s.invoicesSynced.WithLabelValues("failed").Inc()
}

// ObserveBatch records the duration of one batch run.
func (s *SyncMetrics) ObserveBatch(duration time.Duration) {
	if s == nil || s.batchDuration == nil {
		return
	}
	s.batchDuration.Observe(duration.Seconds())
}

// AddRetries accumulates retry attempts from a batch run.
func (s *SyncMetrics) AddRetries(count int) {
	if s == nil || s.retryAttempts == nil || count <= 0 {
		return
	}
	s.retryAttempts.Add(float64(count))
}

// SetPending updates the backlog gauge.
func (s *SyncMetrics) SetPending(count int) {
	if s == nil || s.pendingGauge == nil {
		return
	}
	s.pendingGauge.Set(float64(count))
}
