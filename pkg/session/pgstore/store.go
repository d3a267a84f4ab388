// Package pgstore stores sessions in PostgreSQL.
//
// The schema supports every optional feature, so Capabilities is
// session.CapAll. The store implements session.Transactor: inside RunInTx
// reads take a row lock, which serializes concurrent requests on the same
// session.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionstore/pkg/pg"
	"github.com/dmitrymomot/sessionstore/pkg/session"
)

// Capabilities are the features the sessions table supports.
const Capabilities = session.CapAll

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements session.StoreWithCleanup and session.Transactor.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

var (
	_ session.StoreWithCleanup = (*Store)(nil)
	_ session.Transactor       = (*Store)(nil)
)

// New returns a store backed by pool. Run Migrate first.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

const columns = `id, created, data, flash, idle_expire, absolute_expire, renewal, userid, csrf_token, overrides`

// RunInTx runs fn in a transaction. Nested calls reuse the open one.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx session.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &Store{pool: s.pool, db: tx, inTx: true})
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*session.Record, error) {
	q := `SELECT ` + columns + ` FROM sessions WHERE id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}
	rec, err := scanRecord(s.db.QueryRow(ctx, q, id))
	if pg.IsNotFoundError(err) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get session: %w", err)
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec *session.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO sessions (`+columns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		args...)
	if pg.IsDuplicateKeyError(err) {
		return session.ErrDuplicateSession
	}
	if err != nil {
		return fmt.Errorf("pgstore: create session: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec *session.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET created = $2, data = $3, flash = $4, idle_expire = $5,
			absolute_expire = $6, renewal = $7, userid = $8, csrf_token = $9, overrides = $10
		WHERE id = $1`,
		args...)
	if err != nil {
		return fmt.Errorf("pgstore: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pgstore: delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session of the user.
func (s *Store) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE userid = $1`, userID); err != nil {
		return fmt.Errorf("pgstore: delete user sessions: %w", err)
	}
	return nil
}

const expiredWhere = `(($2::boolean AND absolute_expire <= $1) OR ($3::boolean AND idle_expire <= $1))`

func (s *Store) ExpiredIDs(ctx context.Context, f session.ExpiryFilter) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM sessions WHERE `+expiredWhere, f.Now, f.Absolute, f.Idle)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list expired sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("pgstore: list expired sessions: %w", err)
	}
	return ids, nil
}

// DeleteIfExpired deletes the row in a single statement, so a request that
// extended it after the listing keeps it.
func (s *Store) DeleteIfExpired(ctx context.Context, id uuid.UUID, f session.ExpiryFilter) (session.ExpiryReason, error) {
	var absolute bool
	err := s.db.QueryRow(ctx,
		`DELETE FROM sessions WHERE id = $4 AND `+expiredWhere+`
		RETURNING $2::boolean AND absolute_expire IS NOT NULL AND absolute_expire <= $1`,
		f.Now, f.Absolute, f.Idle, id,
	).Scan(&absolute)
	if pg.IsNotFoundError(err) {
		return session.ExpiryNone, nil
	}
	if err != nil {
		return session.ExpiryNone, fmt.Errorf("pgstore: delete expired session: %w", err)
	}
	if absolute {
		return session.ExpiryAbsolute, nil
	}
	return session.ExpiryIdle, nil
}

func recordArgs(rec *session.Record) ([]any, error) {
	data := rec.Data
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode data: %w", err)
	}
	flash, err := nullableJSON(len(rec.Flash) > 0, rec.Flash)
	if err != nil {
		return nil, err
	}
	renewal, err := nullableJSON(rec.Renewal != nil, rec.Renewal)
	if err != nil {
		return nil, err
	}
	overrides, err := nullableJSON(!rec.Overrides.IsZero(), rec.Overrides)
	if err != nil {
		return nil, err
	}
	var csrf *string
	if rec.CSRFToken != "" {
		csrf = &rec.CSRFToken
	}
	return []any{
		rec.ID, rec.Created, dataJSON, flash,
		rec.IdleExpire, rec.AbsoluteExpire, renewal,
		rec.UserID, csrf, overrides,
	}, nil
}

func nullableJSON(ok bool, v any) ([]byte, error) {
	if !ok {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pgstore: encode column: %w", err)
	}
	return b, nil
}

func scanRecord(row pgx.Row) (*session.Record, error) {
	var (
		rec                        session.Record
		data, flash, renewal, over []byte
		idle, absolute             *time.Time
		csrf                       *string
	)
	if err := row.Scan(&rec.ID, &rec.Created, &data, &flash, &idle, &absolute, &renewal, &rec.UserID, &csrf, &over); err != nil {
		return nil, err
	}
	rec.IdleExpire = idle
	rec.AbsoluteExpire = absolute
	if csrf != nil {
		rec.CSRFToken = *csrf
	}

	rec.Data = make(map[string]any)
	decode := []struct {
		raw []byte
		dst any
	}{
		{data, &rec.Data},
		{flash, &rec.Flash},
		{renewal, &rec.Renewal},
		{over, &rec.Overrides},
	}
	for _, d := range decode {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("pgstore: decode session row: %w", err)
		}
	}
	return &rec, nil
}
