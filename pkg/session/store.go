package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for session persistence. Records passed in or
// returned are owned by the caller.
type Store interface {
	// Get retrieves a record by ID or returns ErrSessionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Create stores a new record or returns ErrDuplicateSession.
	Create(ctx context.Context, rec *Record) error

	// Update replaces an existing record or returns ErrSessionNotFound.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// ExpiredIDs lists the records matching the filter.
	ExpiredIDs(ctx context.Context, f ExpiryFilter) ([]uuid.UUID, error)

	// DeleteIfExpired removes the record only if it still matches the
	// filter, in one atomic step. ExpiryNone means nothing was deleted.
	DeleteIfExpired(ctx context.Context, id uuid.UUID, f ExpiryFilter) (ExpiryReason, error)
}

// Transactor is implemented by stores that can run a request in a single
// transaction. fn receives a store bound to the transaction; returning an
// error rolls it back.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// StoreWithCleanup is an optional interface for stores that support user session cleanup
type StoreWithCleanup interface {
	Store
	// DeleteByUserID removes all sessions for a specific user
	DeleteByUserID(ctx context.Context, userID string) error
}

// ExpiryReason says which deadline a record passed.
type ExpiryReason uint8

const (
	ExpiryNone ExpiryReason = iota
	ExpiryIdle
	ExpiryAbsolute
)

func (r ExpiryReason) String() string {
	switch r {
	case ExpiryIdle:
		return "idle"
	case ExpiryAbsolute:
		return "absolute"
	}
	return "none"
}

// ExpiryFilter selects records whose enabled deadlines are at or before Now.
type ExpiryFilter struct {
	Now      time.Time
	Idle     bool
	Absolute bool
}

// Enabled reports whether the filter can match anything.
func (f ExpiryFilter) Enabled() bool { return f.Idle || f.Absolute }

// Match returns the reason rec is expired, absolute taking precedence.
func (f ExpiryFilter) Match(rec *Record) ExpiryReason {
	if f.Absolute && rec.AbsoluteExpire != nil && !rec.AbsoluteExpire.After(f.Now) {
		return ExpiryAbsolute
	}
	if f.Idle && rec.IdleExpire != nil && !rec.IdleExpire.After(f.Now) {
		return ExpiryIdle
	}
	return ExpiryNone
}
