package session_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/cookie"
	"github.com/dmitrymomot/sessionstore/pkg/session"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = epoch.Add(offset)
}

// counterTokens yields distinct, predictable renewal tokens.
func counterTokens() session.TokenSource {
	var mu sync.Mutex
	n := byte(0)
	return func() []byte {
		mu.Lock()
		defer mu.Unlock()
		n++
		return bytes.Repeat([]byte{n}, session.TokenSize)
	}
}

func fixedRand(v int) session.Rand {
	return session.RandFunc(func(int) int { return v })
}

func testCodec(t *testing.T) *cookie.Codec {
	t.Helper()
	codec, err := cookie.NewCodec(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return codec
}

func mustResolve(t *testing.T, raw map[string]any, caps session.Capabilities) *session.Config {
	t.Helper()
	cfg, err := session.Resolve(raw, caps)
	require.NoError(t, err)
	return cfg
}

type testEnv struct {
	mgr   *session.Manager
	store *session.MemoryStore
	clock *fakeClock
	codec *cookie.Codec
	logs  *bytes.Buffer
}

func newTestEnv(t *testing.T, raw map[string]any, caps session.Capabilities, opts ...session.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store: session.NewMemoryStore(),
		clock: newFakeClock(),
		codec: testCodec(t),
		logs:  &bytes.Buffer{},
	}
	base := []session.Option{
		session.WithClock(env.clock),
		session.WithTokenSource(counterTokens()),
		session.WithLogger(slog.New(slog.NewJSONHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	}
	mgr, err := session.New(env.store, env.codec, mustResolve(t, raw, caps), append(base, opts...)...)
	require.NoError(t, err)
	env.mgr = mgr
	return env
}

// browser keeps the session cookie between requests.
type browser struct {
	cookie *http.Cookie
}

func (b *browser) do(h http.Handler) *httptest.ResponseRecorder {
	return b.request(h, http.MethodGet, "/")
}

func (b *browser) request(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if b.cookie != nil {
		req.AddCookie(&http.Cookie{Name: b.cookie.Name, Value: b.cookie.Value})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			b.cookie = nil
			continue
		}
		b.cookie = c
	}
	return rec
}

func (b *browser) clone() *browser {
	if b.cookie == nil {
		return &browser{}
	}
	c := *b.cookie
	return &browser{cookie: &c}
}

// sessionCookie returns the Set-Cookie of the response for the session, if any.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func handlerFunc(fn func(s *session.Session)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(session.MustFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
}
