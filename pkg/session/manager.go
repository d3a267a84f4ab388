package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionstore/pkg/clientip"
	"github.com/dmitrymomot/sessionstore/pkg/cookie"
	"github.com/dmitrymomot/sessionstore/pkg/logger"
)

// Manager loads and saves sessions for HTTP requests.
type Manager struct {
	store   Store
	cfg     *Config
	cookies *cookie.Manager
	engine  *Engine

	clock             Clock
	rand              Rand
	token             TokenSource
	logger            *slog.Logger
	metrics           *Metrics
	violationHandlers []ViolationHandler
}

// New creates a session manager. The codec seals the session cookie; it may
// be nil when WithCookieManager is given.
func New(store Store, codec *cookie.Codec, cfg *Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfiguration)
	}

	m := &Manager{
		store:  store,
		cfg:    cfg,
		clock:  SystemClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cookies == nil {
		if codec == nil {
			return nil, ErrNoCookieManager
		}
		m.cookies = cookie.New(codec)
	}
	if m.cookies.Codec() == nil {
		return nil, errors.Join(ErrNoCookieManager, cookie.ErrNoCodec)
	}
	m.engine = NewEngine(m.rand, m.token)
	m.logger = m.logger.With(logger.Component("session"))

	return m, nil
}

// Config returns the resolved configuration.
func (m *Manager) Config() *Config { return m.cfg }

// Clock returns the manager time source.
func (m *Manager) Clock() Clock { return m.clock }

// Load returns the session of the request. A missing, undecodable, unknown,
// expired or stolen cookie yields a fresh session; only storage errors are
// returned.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	return m.load(ctx, m.store, r)
}

func (m *Manager) load(ctx context.Context, st Store, r *http.Request) (*Session, error) {
	now := m.clock.Now()
	fresh := func(hadCookie bool) *Session {
		s := newSession(m.cfg, NewRecord(now), true, now)
		s.hadCookie = hadCookie
		s.store = st
		return s
	}

	raw, err := m.cookies.GetEncrypted(r, m.cfg.CookieName)
	switch {
	case errors.Is(err, cookie.ErrCookieNotFound):
		return fresh(false), nil
	case errors.Is(err, cookie.ErrCookieCrypto):
		m.metrics.cookieError("crypto")
		m.logger.WarnContext(ctx, "session cookie failed authentication",
			logger.Event("cookie_crypto_error"),
			logger.Error(err),
		)
		return fresh(true), nil
	case errors.Is(err, cookie.ErrInvalidCookie):
		m.metrics.cookieError("malformed")
		return fresh(true), nil
	case err != nil:
		return nil, err
	}

	p, err := parsePayload(raw)
	if err != nil {
		m.metrics.cookieError("malformed")
		return fresh(true), nil
	}

	rec, err := st.Get(ctx, p.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return fresh(true), nil
	}
	if err != nil {
		return nil, err
	}

	d := m.engine.Check(rec, p.Token, now, m.cfg.Effective(rec.Overrides))
	if d.Rejected() {
		m.metrics.decision(d)
		if err := st.Delete(ctx, rec.ID); err != nil {
			return nil, err
		}
		if d.Has(DecisionRejectStolen) {
			m.violation(ctx, rec, now, clientip.FromRequest(r))
		} else {
			m.logger.DebugContext(ctx, "session expired",
				logger.SessionID(rec.ID),
			)
		}
		return fresh(true), nil
	}

	s := newSession(m.cfg, rec, false, now)
	s.hadCookie = true
	s.decision = d
	s.store = st
	return s, nil
}

func (m *Manager) violation(ctx context.Context, rec *Record, now time.Time, ip string) {
	m.metrics.violation()
	attrs := []any{logger.Event("session_violation"), logger.SessionID(rec.ID), logger.ClientIP(ip)}
	if rec.UserID != nil {
		attrs = append(attrs, logger.UserID(*rec.UserID))
	}
	m.logger.WarnContext(ctx, "session rejected: stale renewal token", attrs...)
	ev := ViolationEvent{SessionID: rec.ID, UserID: rec.UserID, At: now, IP: ip}
	for _, h := range m.violationHandlers {
		h(ctx, ev)
	}
}

// Save persists the session and writes or clears the cookie. It must run
// before the response headers are sent. Calling it again is a no-op.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if s.saved {
		return nil
	}
	st := s.store
	if st == nil {
		st = m.store
	}

	for _, id := range s.stale {
		if err := st.Delete(ctx, id); err != nil {
			return err
		}
	}
	s.stale = nil

	eff := s.Effective()

	if s.isNew {
		if !s.changed {
			if s.hadCookie {
				m.cookies.Delete(w, m.cfg.CookieName, cookieOptions(eff)...)
			}
			s.saved = true
			return nil
		}
		m.engine.Init(s.rec, s.now, eff)
		if err := st.Create(ctx, s.rec); err != nil {
			return err
		}
		s.isNew = false
		s.saved = true
		return m.writeCookie(w, s.rec, eff)
	}

	d := m.engine.Advance(s.rec, s.now, eff, s.changed)
	m.metrics.decision(s.decision | d)
	if d.Changed() || s.changed {
		err := st.Update(ctx, s.rec)
		if errors.Is(err, ErrSessionNotFound) {
			return m.recreate(ctx, w, st, s, eff)
		}
		if err != nil {
			return err
		}
	}
	s.saved = true

	if d.Has(DecisionRotate) || s.decision.Has(DecisionResend) ||
		(d.Has(DecisionExtendIdle) && eff.CookieMaxAge > 0) {
		return m.writeCookie(w, s.rec, eff)
	}
	return nil
}

// recreate stores the request's writes under a new ID after the record was
// removed since load, typically by the reaper.
func (m *Manager) recreate(ctx context.Context, w http.ResponseWriter, st Store, s *Session, eff Settings) error {
	m.logger.DebugContext(ctx, "session removed during request, storing a new one",
		logger.SessionID(s.rec.ID),
	)
	s.rec.ID = uuid.New()
	s.rec.Created = s.now
	m.engine.Init(s.rec, s.now, eff)
	if err := st.Create(ctx, s.rec); err != nil {
		return err
	}
	s.saved = true
	return m.writeCookie(w, s.rec, eff)
}

func (m *Manager) writeCookie(w http.ResponseWriter, rec *Record, eff Settings) error {
	return m.cookies.SetEncrypted(w, m.cfg.CookieName, payloadFor(rec).marshal(), cookieOptions(eff)...)
}

func cookieOptions(eff Settings) []cookie.Option {
	return []cookie.Option{cookie.WithOptions(cookie.Options{
		Path:     eff.CookiePath,
		Domain:   eff.CookieDomain,
		MaxAge:   int(eff.CookieMaxAge / time.Second),
		Secure:   eff.CookieSecure,
		HttpOnly: eff.CookieHTTPOnly,
		SameSite: http.SameSiteLaxMode,
	})}
}

// DeleteUserSessions removes every session of the user when the store
// supports it. Inside Middleware it runs in the request transaction, and a
// session of the same user in ctx is invalidated so Save does not store it
// again.
func (m *Manager) DeleteUserSessions(ctx context.Context, userID string) error {
	if !m.cfg.Features.UserID {
		return ErrFeatureDisabled
	}
	st, ok := storeFromContext(ctx, m.store).(StoreWithCleanup)
	if !ok {
		return fmt.Errorf("%w: store cannot delete by user", errors.ErrUnsupported)
	}
	if err := st.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	if s, ok := FromContext(ctx); ok && s.rec.UserID != nil && *s.rec.UserID == userID {
		s.Invalidate()
	}
	return nil
}
