package session

import (
	"log/slog"

	"github.com/dmitrymomot/sessionstore/pkg/cookie"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithClock sets the time source. Share it with the Reaper in tests.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRand sets the source of the probabilistic extension roll.
func WithRand(r Rand) Option {
	return func(m *Manager) {
		m.rand = r
	}
}

// WithTokenSource sets the renewal token generator.
func WithTokenSource(fn TokenSource) Option {
	return func(m *Manager) {
		m.token = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithViolationHandler registers a callback for stolen-cookie rejections.
func WithViolationHandler(h ViolationHandler) Option {
	return func(m *Manager) {
		if h != nil {
			m.violationHandlers = append(m.violationHandlers, h)
		}
	}
}

// WithCookieManager replaces the cookie manager built from the codec. The
// manager must carry a codec.
func WithCookieManager(cookieMgr *cookie.Manager) Option {
	return func(m *Manager) {
		m.cookies = cookieMgr
	}
}
