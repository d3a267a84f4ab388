// Package storetest holds the behaviour every session.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/session"
)

// Base is the creation time of generated records. Whole seconds survive
// every backend's time precision.
var Base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// At returns Base plus sec seconds.
func At(sec int) time.Time { return Base.Add(time.Duration(sec) * time.Second) }

// Opener returns an empty store. It is called once per subtest.
type Opener func(t *testing.T) session.Store

// Run executes the suite against the stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("crud", func(t *testing.T) { testCRUD(t, open(t)) })
	t.Run("expiry", func(t *testing.T) { testExpiry(t, open(t)) })
	t.Run("sub-millisecond deadlines", func(t *testing.T) { testSubMillisecond(t, open(t)) })
	t.Run("concurrent extension", func(t *testing.T) { testConcurrentExtension(t, open(t)) })
	t.Run("user cleanup", func(t *testing.T) { testUserCleanup(t, open(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, open) })
}

func record(idle, abs *int) *session.Record {
	rec := session.NewRecord(Base)
	if idle != nil {
		v := At(*idle)
		rec.IdleExpire = &v
	}
	if abs != nil {
		v := At(*abs)
		rec.AbsoluteExpire = &v
	}
	return rec
}

func sec(n int) *int { return &n }

func assertTime(t *testing.T, want, got *time.Time, field string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, field)
		return
	}
	if assert.NotNil(t, got, field) {
		assert.True(t, want.Equal(*got), "%s: want %s, got %s", field, want, got)
	}
}

// AssertRecord compares two records the way a round trip through JSON and
// a database preserves them.
func AssertRecord(t *testing.T, want, got *session.Record) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Created.Equal(got.Created), "created")
	assert.Equal(t, want.Data, got.Data)
	assert.Equal(t, want.Flash, got.Flash)
	assertTime(t, want.IdleExpire, got.IdleExpire, "idle_expire")
	assertTime(t, want.AbsoluteExpire, got.AbsoluteExpire, "absolute_expire")
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.CSRFToken, got.CSRFToken)
	assert.Equal(t, want.Overrides, got.Overrides)
	if want.Renewal == nil {
		assert.Nil(t, got.Renewal)
		return
	}
	require.NotNil(t, got.Renewal)
	assert.Equal(t, want.Renewal.Current, got.Renewal.Current)
	assert.Equal(t, want.Renewal.Previous, got.Renewal.Previous)
	assert.True(t, want.Renewal.RotatedAt.Equal(got.Renewal.RotatedAt))
	assert.True(t, want.Renewal.GraceDeadline.Equal(got.Renewal.GraceDeadline))
}

func testCRUD(t *testing.T, st session.Store) {
	ctx := context.Background()
	uid := "user-1"
	idle := 30

	rec := record(sec(60), sec(3600))
	rec.Data["name"] = "alice"
	rec.Data["visits"] = float64(3)
	rec.Data["tags"] = []any{"a", "b"}
	rec.Flash = map[string][]any{"": {"welcome"}}
	rec.UserID = &uid
	rec.CSRFToken = "csrf"
	rec.Renewal = &session.RenewalState{
		Current:       []byte{1, 2, 3},
		Previous:      []byte{4, 5, 6},
		RotatedAt:     At(10),
		GraceDeadline: At(15),
	}
	rec.Overrides.IdleTimeout = &idle

	require.NoError(t, st.Create(ctx, rec))
	assert.ErrorIs(t, st.Create(ctx, rec), session.ErrDuplicateSession)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	AssertRecord(t, rec, got)

	got.Data = map[string]any{"name": "bob"}
	got.Flash = nil
	got.UserID = nil
	got.Renewal = nil
	got.IdleExpire = nil
	got.Overrides = session.Overrides{}
	require.NoError(t, st.Update(ctx, got))

	again, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	AssertRecord(t, got, again)

	missing := record(nil, nil)
	assert.ErrorIs(t, st.Update(ctx, missing), session.ErrSessionNotFound)
	_, err = st.Get(ctx, missing.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	require.NoError(t, st.Delete(ctx, rec.ID))
	require.NoError(t, st.Delete(ctx, rec.ID))
	_, err = st.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func testExpiry(t *testing.T, st session.Store) {
	ctx := context.Background()
	idleGone := record(sec(50), sec(600))
	absGone := record(sec(50), sec(100))
	atDeadline := record(sec(100), nil)
	alive := record(sec(150), sec(600))
	forever := record(nil, nil)
	for _, r := range []*session.Record{idleGone, absGone, atDeadline, alive, forever} {
		require.NoError(t, st.Create(ctx, r))
	}

	f := session.ExpiryFilter{Now: At(100), Idle: true, Absolute: true}
	ids, err := st.ExpiredIDs(ctx, f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{idleGone.ID, absGone.ID, atDeadline.ID}, ids)

	onlyAbs := session.ExpiryFilter{Now: At(100), Absolute: true}
	ids, err = st.ExpiredIDs(ctx, onlyAbs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{absGone.ID}, ids)

	reason, err := st.DeleteIfExpired(ctx, idleGone.ID, onlyAbs)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryNone, reason)

	for rec, want := range map[*session.Record]session.ExpiryReason{
		idleGone:   session.ExpiryIdle,
		absGone:    session.ExpiryAbsolute,
		atDeadline: session.ExpiryIdle,
		alive:      session.ExpiryNone,
		forever:    session.ExpiryNone,
	} {
		reason, err := st.DeleteIfExpired(ctx, rec.ID, f)
		require.NoError(t, err)
		assert.Equal(t, want, reason, rec.ID.String())

		_, err = st.Get(ctx, rec.ID)
		if want == session.ExpiryNone {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, session.ErrSessionNotFound)
		}
	}

	reason, err = st.DeleteIfExpired(ctx, uuid.New(), f)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryNone, reason)
}

// A deadline a fraction of a millisecond ahead of now is still valid for the
// reaper, as it is for the request path.
func testSubMillisecond(t *testing.T, st session.Store) {
	ctx := context.Background()
	deadline := At(60).Add(900 * time.Microsecond)
	idle := session.NewRecord(Base)
	idle.IdleExpire = &deadline
	abs := session.NewRecord(Base)
	abs.AbsoluteExpire = &deadline
	for _, r := range []*session.Record{idle, abs} {
		require.NoError(t, st.Create(ctx, r))
	}

	early := session.ExpiryFilter{Now: At(60).Add(100 * time.Microsecond), Idle: true, Absolute: true}
	require.True(t, early.Now.Before(deadline))
	ids, err := st.ExpiredIDs(ctx, early)
	require.NoError(t, err)
	assert.Empty(t, ids)
	for _, r := range []*session.Record{idle, abs} {
		reason, err := st.DeleteIfExpired(ctx, r.ID, early)
		require.NoError(t, err)
		assert.Equal(t, session.ExpiryNone, reason)
		_, err = st.Get(ctx, r.ID)
		assert.NoError(t, err)
	}

	late := session.ExpiryFilter{Now: At(61), Idle: true, Absolute: true}
	ids, err = st.ExpiredIDs(ctx, late)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{idle.ID, abs.ID}, ids)
	reason, err := st.DeleteIfExpired(ctx, idle.ID, late)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryIdle, reason)
	reason, err = st.DeleteIfExpired(ctx, abs.ID, late)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryAbsolute, reason)
}

func testConcurrentExtension(t *testing.T, st session.Store) {
	ctx := context.Background()
	rec := record(sec(50), nil)
	require.NoError(t, st.Create(ctx, rec))

	f := session.ExpiryFilter{Now: At(100), Idle: true}
	ids, err := st.ExpiredIDs(ctx, f)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{rec.ID}, ids)

	extended := At(200)
	rec.IdleExpire = &extended
	require.NoError(t, st.Update(ctx, rec))

	reason, err := st.DeleteIfExpired(ctx, rec.ID, f)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryNone, reason)
	_, err = st.Get(ctx, rec.ID)
	assert.NoError(t, err)
}

func testUserCleanup(t *testing.T, st session.Store) {
	cleaner, ok := st.(session.StoreWithCleanup)
	if !ok {
		t.Skip("store does not support user cleanup")
	}
	ctx := context.Background()
	alice, bob := "alice", "bob"

	a1, a2, b1, anon := record(nil, nil), record(nil, nil), record(nil, nil), record(nil, nil)
	a1.UserID, a2.UserID, b1.UserID = &alice, &alice, &bob
	for _, r := range []*session.Record{a1, a2, b1, anon} {
		require.NoError(t, st.Create(ctx, r))
	}

	// moving a session to another user updates the index
	a2.UserID = &bob
	require.NoError(t, st.Update(ctx, a2))

	require.NoError(t, cleaner.DeleteByUserID(ctx, alice))
	_, err := st.Get(ctx, a1.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	for _, kept := range []*session.Record{a2, b1, anon} {
		_, err := st.Get(ctx, kept.ID)
		assert.NoError(t, err)
	}

	require.NoError(t, cleaner.DeleteByUserID(ctx, bob))
	for _, gone := range []*session.Record{a2, b1} {
		_, err := st.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	}
}

func testTransactions(t *testing.T, open Opener) {
	ctx := context.Background()
	if _, ok := open(t).(session.Transactor); !ok {
		t.Skip("store is not transactional")
	}

	t.Run("commit", func(t *testing.T) {
		st := open(t)
		tr := st.(session.Transactor)
		existing := record(nil, nil)
		require.NoError(t, st.Create(ctx, existing))
		created := record(nil, nil)

		err := tr.RunInTx(ctx, func(ctx context.Context, tx session.Store) error {
			got, err := tx.Get(ctx, existing.ID)
			if err != nil {
				return err
			}
			got.Data["seen"] = true
			if err := tx.Update(ctx, got); err != nil {
				return err
			}
			return tx.Create(ctx, created)
		})
		require.NoError(t, err)

		got, err := st.Get(ctx, existing.ID)
		require.NoError(t, err)
		assert.Equal(t, true, got.Data["seen"])
		_, err = st.Get(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		st := open(t)
		tr := st.(session.Transactor)
		existing := record(nil, nil)
		require.NoError(t, st.Create(ctx, existing))
		created := record(nil, nil)
		boom := errors.New("boom")

		err := tr.RunInTx(ctx, func(ctx context.Context, tx session.Store) error {
			if err := tx.Create(ctx, created); err != nil {
				return err
			}
			if err := tx.Delete(ctx, existing.ID); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = st.Get(ctx, created.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		_, err = st.Get(ctx, existing.ID)
		assert.NoError(t, err)
	})
}
