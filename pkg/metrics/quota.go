package metrics

import "github.com/prometheus/client_golang/prometheus"

// QuotaMetrics counts admission decisions per metric.
type QuotaMetrics struct {
	allowed *prometheus.CounterVec
	denied  *prometheus.CounterVec
}

// NewQuotaMetrics registers the admission counters on the provided registerer.
func NewQuotaMetrics(reg prometheus.Registerer) *QuotaMetrics {
	if reg == nil {
		return &QuotaMetrics{}
	}
	allowed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_admission_allowed",
		Help: "Metered actions admitted under their tier limit.",
	}, []string{"metric"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_admission_denied",
		Help: "Metered actions rejected at their tier limit.",
	}, []string{"metric"})
	reg.MustRegister(allowed, denied)
	return &QuotaMetrics{allowed: allowed, denied: denied}
}

// IncAllowed increments the allowed counter for the named metric.
func (q *QuotaMetrics) IncAllowed(metric string) {
	if q == nil || q.allowed == nil {
		return
	}
	q.allowed.WithLabelValues(normalizeLabel(metric)).Inc()
}

// IncDenied increments the denied counter for the named metric.
func (q *QuotaMetrics) IncDenied(metric string) {
	if q == nil || q.denied == nil {
		return
	}
	q.denied.WithLabelValues(normalizeLabel(metric)).Inc()
}
