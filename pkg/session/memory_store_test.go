package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionstore/pkg/session"
	"github.com/dmitrymomot/sessionstore/pkg/session/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) session.Store { return session.NewMemoryStore() })
}

func recordWithIdle(sec int) *session.Record {
	rec := session.NewRecord(epoch)
	exp := at(sec)
	rec.IdleExpire = &exp
	return rec
}

func TestMemoryStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := session.NewMemoryStore()

	rec := session.NewRecord(epoch)
	rec.Data["k"] = map[string]any{"nested": []any{"a"}}

	require.NoError(t, st.Create(ctx, rec))
	assert.ErrorIs(t, st.Create(ctx, rec), session.ErrDuplicateSession)

	got, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Data, got.Data)

	// returned records are copies
	got.Data["k"].(map[string]any)["nested"] = nil
	again, err := st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, again.Data["k"].(map[string]any)["nested"])

	got.Data["x"] = 1
	require.NoError(t, st.Update(ctx, got))
	again, err = st.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Data["x"])

	require.NoError(t, st.Delete(ctx, rec.ID))
	require.NoError(t, st.Delete(ctx, rec.ID), "delete is idempotent")
	_, err = st.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.ErrorIs(t, st.Update(ctx, rec), session.ErrSessionNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := session.NewMemoryStore()

	expired := recordWithIdle(10)
	alive := recordWithIdle(100)
	both := recordWithIdle(10)
	abs := at(5)
	both.AbsoluteExpire = &abs
	forever := session.NewRecord(epoch)
	for _, r := range []*session.Record{expired, alive, both, forever} {
		require.NoError(t, st.Create(ctx, r))
	}

	f := session.ExpiryFilter{Now: at(10), Idle: true, Absolute: true}
	ids, err := st.ExpiredIDs(ctx, f)
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{expired.ID, both.ID}, toAny(ids))

	reason, err := st.DeleteIfExpired(ctx, both.ID, f)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryAbsolute, reason)

	reason, err = st.DeleteIfExpired(ctx, alive.ID, f)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryNone, reason)

	reason, err = st.DeleteIfExpired(ctx, expired.ID, session.ExpiryFilter{Now: at(10), Absolute: true})
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryNone, reason, "idle is not checked")

	reason, err = st.DeleteIfExpired(ctx, expired.ID, f)
	require.NoError(t, err)
	assert.Equal(t, session.ExpiryIdle, reason)

	total, _, _ := st.Stats()
	assert.Equal(t, 2, total)
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func TestMemoryStoreTransactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commit applies staged writes", func(t *testing.T) {
		st := session.NewMemoryStore()
		existing := session.NewRecord(epoch)
		require.NoError(t, st.Create(ctx, existing))
		created := session.NewRecord(epoch)

		err := st.RunInTx(ctx, func(ctx context.Context, tx session.Store) error {
			require.NoError(t, tx.Create(ctx, created))
			require.NoError(t, tx.Delete(ctx, existing.ID))

			_, err := tx.Get(ctx, existing.ID)
			assert.ErrorIs(t, err, session.ErrSessionNotFound)
			got, err := tx.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)

			_, err = st.Get(ctx, created.ID)
			assert.ErrorIs(t, err, session.ErrSessionNotFound, "not visible outside before commit")
			return nil
		})
		require.NoError(t, err)

		_, err = st.Get(ctx, created.ID)
		assert.NoError(t, err)
		_, err = st.Get(ctx, existing.ID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("error rolls back", func(t *testing.T) {
		st := session.NewMemoryStore()
		rec := session.NewRecord(epoch)
		boom := errors.New("boom")

		err := st.RunInTx(ctx, func(ctx context.Context, tx session.Store) error {
			require.NoError(t, tx.Create(ctx, rec))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		total, _, _ := st.Stats()
		assert.Zero(t, total)
	})

	t.Run("cancelled context rolls back", func(t *testing.T) {
		st := session.NewMemoryStore()
		rec := session.NewRecord(epoch)
		cctx, cancel := context.WithCancel(ctx)

		err := st.RunInTx(cctx, func(ctx context.Context, tx session.Store) error {
			require.NoError(t, tx.Create(ctx, rec))
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		total, _, _ := st.Stats()
		assert.Zero(t, total)
	})

	t.Run("expiry inside a transaction", func(t *testing.T) {
		st := session.NewMemoryStore()
		old := recordWithIdle(1)
		require.NoError(t, st.Create(ctx, old))
		f := session.ExpiryFilter{Now: at(2), Idle: true}

		err := st.RunInTx(ctx, func(ctx context.Context, tx session.Store) error {
			fresh := recordWithIdle(1)
			require.NoError(t, tx.Create(ctx, fresh))

			extended := old.Clone()
			exp := at(100)
			extended.IdleExpire = &exp
			require.NoError(t, tx.Update(ctx, extended))

			ids, err := tx.ExpiredIDs(ctx, f)
			require.NoError(t, err)
			assert.Equal(t, []any{fresh.ID}, toAny(ids))

			reason, err := tx.DeleteIfExpired(ctx, fresh.ID, f)
			require.NoError(t, err)
			assert.Equal(t, session.ExpiryIdle, reason)
			return nil
		})
		require.NoError(t, err)
		total, _, _ := st.Stats()
		assert.Equal(t, 1, total)
	})
}

func TestRecordClone(t *testing.T) {
	t.Parallel()

	uid := "u-1"
	secs := 30
	rec := session.NewRecord(epoch)
	rec.Data["list"] = []any{1, 2}
	rec.Flash = map[string][]any{"": {"hi"}}
	rec.UserID = &uid
	rec.Renewal = &session.RenewalState{Current: []byte{1, 2}, RotatedAt: epoch, GraceDeadline: epoch.Add(time.Second)}
	rec.Overrides.IdleTimeout = &secs

	c := rec.Clone()
	require.Equal(t, rec, c)

	c.Data["list"].([]any)[0] = 9
	c.Flash[""][0] = "bye"
	*c.UserID = "u-2"
	c.Renewal.Current[0] = 7
	*c.Overrides.IdleTimeout = 1

	assert.Equal(t, 1, rec.Data["list"].([]any)[0])
	assert.Equal(t, "hi", rec.Flash[""][0])
	assert.Equal(t, "u-1", *rec.UserID)
	assert.Equal(t, byte(1), rec.Renewal.Current[0])
	assert.Equal(t, 30, *rec.Overrides.IdleTimeout)
}
