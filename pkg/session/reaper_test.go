package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/session"
)

func newReaper(t *testing.T, st session.Store, caps session.Capabilities, clock *fakeClock, opts ...session.ReaperOption) *session.Reaper {
	t.Helper()
	raw := map[string]any{}
	if caps.Has(session.CapIdle) {
		raw["idle_timeout"] = 60
	}
	if caps.Has(session.CapAbsolute) {
		raw["absolute_timeout"] = 600
	}
	base := []session.ReaperOption{
		session.WithReaperClock(clock),
		session.WithReaperLogger(slog.New(slog.DiscardHandler)),
	}
	return session.NewReaper(st, mustResolve(t, raw, caps), append(base, opts...)...)
}

func seed(t *testing.T, st session.Store, idle, abs *int) *session.Record {
	t.Helper()
	rec := session.NewRecord(epoch)
	if idle != nil {
		v := at(*idle)
		rec.IdleExpire = &v
	}
	if abs != nil {
		v := at(*abs)
		rec.AbsoluteExpire = &v
	}
	require.NoError(t, st.Create(context.Background(), rec))
	return rec
}

func sec(n int) *int { return &n }

func TestReaperClean(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := session.NewMemoryStore()
	clock := newFakeClock()
	clock.Set(100 * time.Second)

	idleGone := seed(t, st, sec(50), sec(600))
	absGone := seed(t, st, sec(50), sec(100))
	alive := seed(t, st, sec(150), sec(600))
	forever := seed(t, st, nil, nil)

	reg := prometheus.NewRegistry()
	m := session.NewMetrics(reg)
	rep, err := newReaper(t, st, session.CapIdle|session.CapAbsolute, clock, session.WithReaperMetrics(m)).Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Report{Scanned: 2, Idle: 1, Absolute: 1}, rep)
	assert.Equal(t, 2, rep.Deleted())

	for _, gone := range []*session.Record{idleGone, absGone} {
		_, err := st.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	}
	for _, kept := range []*session.Record{alive, forever} {
		_, err := st.Get(ctx, kept.ID)
		assert.NoError(t, err)
	}

	assert.InDelta(t, 1, testutil.ToFloat64(m.ReaperDeleted.WithLabelValues("idle")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReaperDeleted.WithLabelValues("absolute")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ReaperFailures), 0)
}

func TestReaperOnlyEnabledTimeouts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	clock.Set(100 * time.Second)

	t.Run("idle only", func(t *testing.T) {
		st := session.NewMemoryStore()
		absOnly := seed(t, st, nil, sec(10))
		seed(t, st, sec(10), nil)

		rep, err := newReaper(t, st, session.CapIdle, clock).Clean(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Idle)
		assert.Zero(t, rep.Absolute)
		_, err = st.Get(ctx, absOnly.ID)
		assert.NoError(t, err)
	})

	t.Run("no timeout features", func(t *testing.T) {
		st := session.NewMemoryStore()
		seed(t, st, sec(10), sec(10))

		rep, err := newReaper(t, st, session.CapUserID, clock).Clean(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.Report{}, rep)
		total, _, _ := st.Stats()
		assert.Equal(t, 1, total)
	})
}

// A record is removed exactly when one of its enabled deadlines is not after now.
func TestReaperRemovesExactlyExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	st := session.NewMemoryStore()
	clock := newFakeClock()
	clock.Set(500 * time.Second)
	now := clock.Now()

	var records []*session.Record
	for range 200 {
		var idle, abs *int
		if rng.IntN(4) > 0 {
			idle = sec(rng.IntN(1000))
		}
		if rng.IntN(4) > 0 {
			abs = sec(rng.IntN(1000))
		}
		records = append(records, seed(t, st, idle, abs))
	}

	_, err := newReaper(t, st, session.CapIdle|session.CapAbsolute, clock).Clean(ctx)
	require.NoError(t, err)

	for _, rec := range records {
		expired := (rec.IdleExpire != nil && !rec.IdleExpire.After(now)) ||
			(rec.AbsoluteExpire != nil && !rec.AbsoluteExpire.After(now))
		_, err := st.Get(ctx, rec.ID)
		if expired {
			assert.ErrorIs(t, err, session.ErrSessionNotFound)
		} else {
			assert.NoError(t, err)
		}
	}
}

// hookStore runs before ahead of every DeleteIfExpired.
type hookStore struct {
	session.Store
	before  func(id uuid.UUID) error
	listErr error
}

func (h *hookStore) ExpiredIDs(ctx context.Context, f session.ExpiryFilter) ([]uuid.UUID, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	return h.Store.ExpiredIDs(ctx, f)
}

func (h *hookStore) DeleteIfExpired(ctx context.Context, id uuid.UUID, f session.ExpiryFilter) (session.ExpiryReason, error) {
	if h.before != nil {
		if err := h.before(id); err != nil {
			return session.ExpiryNone, err
		}
	}
	return h.Store.DeleteIfExpired(ctx, id, f)
}

func TestReaperSparesConcurrentlyExtended(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := session.NewMemoryStore()
	clock := newFakeClock()
	clock.Set(100 * time.Second)
	rec := seed(t, mem, sec(50), nil)

	st := &hookStore{Store: mem, before: func(id uuid.UUID) error {
		got, err := mem.Get(ctx, id)
		if err != nil {
			return err
		}
		exp := at(200)
		got.IdleExpire = &exp
		return mem.Update(ctx, got)
	}}

	rep, err := newReaper(t, st, session.CapIdle, clock).Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Scanned)
	assert.Zero(t, rep.Deleted())
	_, err = mem.Get(ctx, rec.ID)
	assert.NoError(t, err)
}

func TestReaperFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	clock.Set(100 * time.Second)

	t.Run("row failure continues", func(t *testing.T) {
		mem := session.NewMemoryStore()
		bad := seed(t, mem, sec(10), nil)
		seed(t, mem, sec(10), nil)
		seed(t, mem, sec(10), nil)

		st := &hookStore{Store: mem, before: func(id uuid.UUID) error {
			if id == bad.ID {
				return errors.New("row locked")
			}
			return nil
		}}
		logs := &bytes.Buffer{}
		m := session.NewMetrics(prometheus.NewRegistry())
		r := newReaper(t, st, session.CapIdle, clock,
			session.WithReaperMetrics(m),
			session.WithReaperLogger(slog.New(slog.NewJSONHandler(logs, nil))),
		)

		rep, err := r.Clean(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.Report{Scanned: 3, Idle: 2, Failed: 1}, rep)
		assert.InDelta(t, 1, testutil.ToFloat64(m.ReaperFailures), 0)
		assert.Contains(t, logs.String(), "row locked")
		assert.Contains(t, logs.String(), bad.ID.String())
	})

	t.Run("listing failure is returned", func(t *testing.T) {
		boom := errors.New("connection refused")
		st := &hookStore{Store: session.NewMemoryStore(), listErr: boom}
		_, err := newReaper(t, st, session.CapIdle, clock).Clean(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled context stops the batch", func(t *testing.T) {
		mem := session.NewMemoryStore()
		for range 3 {
			seed(t, mem, sec(10), nil)
		}
		cctx, cancel := context.WithCancel(ctx)
		st := &hookStore{Store: mem, before: func(uuid.UUID) error {
			cancel()
			return nil
		}}

		rep, err := newReaper(t, st, session.CapIdle, clock).Clean(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, rep.Idle)
	})
}

func TestReaperRun(t *testing.T) {
	t.Parallel()
	mem := session.NewMemoryStore()
	clock := newFakeClock()
	clock.Set(100 * time.Second)
	seed(t, mem, sec(10), nil)

	ctx, cancel := context.WithCancel(context.Background())
	r := newReaper(t, mem, session.CapIdle, clock)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, time.Hour)
	}()

	require.Eventually(t, func() bool {
		total, _, _ := mem.Stats()
		return total == 0
	}, time.Second, 5*time.Millisecond, "first pass runs immediately")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
