// Package redisstore stores sessions in Redis.
//
// Each record is a JSON string under <prefix>:s:<id>. Deadlines are indexed
// in the sorted sets <prefix>:idle and <prefix>:absolute, scored in Unix
// milliseconds rounded up, and <prefix>:u:<userid> lists the sessions of a
// user. All writes go through Lua scripts so the indexes never drift from the
// records.
//
// JSON decoding turns numbers in session data into float64.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionstore/pkg/session"
)

// Capabilities are the features the store supports.
const Capabilities = session.CapAll

// Store implements session.StoreWithCleanup. It is not transactional.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ session.StoreWithCleanup = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace (default: "session").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New returns a store using client, typically a *redis.Client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: "session"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(id string) string { return s.prefix + ":s:" + id }
func (s *Store) idleKey() string            { return s.prefix + ":idle" }
func (s *Store) absoluteKey() string        { return s.prefix + ":absolute" }
func (s *Store) userPrefix() string         { return s.prefix + ":u:" }

func (s *Store) keys(id string) []string {
	return []string{s.recordKey(id), s.idleKey(), s.absoluteKey()}
}

// score is the deadline in Unix milliseconds rounded up, so a score at or
// below the floored now always means the deadline itself has passed.
func score(t *time.Time) string {
	if t == nil {
		return ""
	}
	ns := t.UnixNano()
	ms := ns / int64(time.Millisecond)
	if ns%int64(time.Millisecond) > 0 {
		ms++
	}
	return strconv.FormatInt(ms, 10)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*session.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get session: %w", err)
	}
	rec := &session.Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("redisstore: decode session: %w", err)
	}
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	return rec, nil
}

func (s *Store) save(ctx context.Context, mode string, rec *session.Record) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("redisstore: encode session: %w", err)
	}
	user := ""
	if rec.UserID != nil {
		user = *rec.UserID
	}
	id := rec.ID.String()
	n, err := saveLua.Run(ctx, s.client, s.keys(id),
		mode, id, raw, score(rec.IdleExpire), score(rec.AbsoluteExpire), s.userPrefix(), user,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: %s session: %w", mode, err)
	}
	return n == 1, nil
}

func (s *Store) Create(ctx context.Context, rec *session.Record) error {
	ok, err := s.save(ctx, "create", rec)
	if err != nil {
		return err
	}
	if !ok {
		return session.ErrDuplicateSession
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec *session.Record) error {
	ok, err := s.save(ctx, "update", rec)
	if err != nil {
		return err
	}
	if !ok {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	sid := id.String()
	if err := deleteLua.Run(ctx, s.client, s.keys(sid), sid, s.userPrefix()).Err(); err != nil {
		return fmt.Errorf("redisstore: delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session of the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID string) error {
	err := deleteUserLua.Run(ctx, s.client, []string{s.userPrefix() + userID},
		s.recordKey(""), s.idleKey(), s.absoluteKey(),
	).Err()
	if err != nil {
		return fmt.Errorf("redisstore: delete user sessions: %w", err)
	}
	return nil
}

// ExpiredIDs reads the deadline indexes. Members that are not UUIDs are
// skipped.
func (s *Store) ExpiredIDs(ctx context.Context, f session.ExpiryFilter) ([]uuid.UUID, error) {
	upper := strconv.FormatInt(f.Now.UnixMilli(), 10)
	var sets []string
	if f.Absolute {
		sets = append(sets, s.absoluteKey())
	}
	if f.Idle {
		sets = append(sets, s.idleKey())
	}

	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, key := range sets {
		members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: list expired sessions: %w", err)
		}
		for _, m := range members {
			id, err := uuid.Parse(m)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// DeleteIfExpired re-reads the indexed deadlines inside a script, so a
// record extended after the listing survives.
func (s *Store) DeleteIfExpired(ctx context.Context, id uuid.UUID, f session.ExpiryFilter) (session.ExpiryReason, error) {
	sid := id.String()
	n, err := deleteIfExpiredLua.Run(ctx, s.client, s.keys(sid),
		sid, s.userPrefix(), strconv.FormatInt(f.Now.UnixMilli(), 10), flag(f.Idle), flag(f.Absolute),
	).Int()
	if err != nil {
		return session.ExpiryNone, fmt.Errorf("redisstore: delete expired session: %w", err)
	}
	switch n {
	case 1:
		return session.ExpiryIdle, nil
	case 2:
		return session.ExpiryAbsolute, nil
	}
	return session.ExpiryNone, nil
}
