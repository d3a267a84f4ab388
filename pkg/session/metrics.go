package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters of the manager and the reaper.
// A nil *Metrics records nothing.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	Violations     prometheus.Counter
	CookieErrors   *prometheus.CounterVec
	ReaperDeleted  *prometheus.CounterVec
	ReaperFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "session",
				Name:      "decisions_total",
				Help:      "Engine decisions taken on loaded sessions",
			},
			[]string{"decision"}, // decision=keep/extend-idle/rotate/...
		),
		Violations: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "session",
				Name:      "violations_total",
				Help:      "Sessions rejected because a stale renewal token was presented",
			},
		),
		CookieErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "session",
				Name:      "cookie_errors_total",
				Help:      "Session cookies that could not be decoded",
			},
			[]string{"kind"}, // kind=malformed/crypto
		),
		ReaperDeleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "session",
				Name:      "reaper_deleted_total",
				Help:      "Expired sessions removed by the reaper",
			},
			[]string{"reason"}, // reason=idle/absolute
		),
		ReaperFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "session",
				Name:      "reaper_failures_total",
				Help:      "Expired sessions the reaper failed to remove",
			},
		),
	}
}

func (m *Metrics) decision(d Decision) {
	if m != nil {
		m.Decisions.WithLabelValues(d.String()).Inc()
	}
}

func (m *Metrics) violation() {
	if m != nil {
		m.Violations.Inc()
	}
}

func (m *Metrics) cookieError(kind string) {
	if m != nil {
		m.CookieErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) reaped(r ExpiryReason, n int) {
	if m != nil && n > 0 {
		m.ReaperDeleted.WithLabelValues(r.String()).Add(float64(n))
	}
}

func (m *Metrics) reaperFailed(n int) {
	if m != nil && n > 0 {
		m.ReaperFailures.Add(float64(n))
	}
}
