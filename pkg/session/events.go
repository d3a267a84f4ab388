package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ViolationEvent describes a rejected session whose cookie carried a
// renewal token that was no longer valid, a sign of a stolen cookie. IP is
// the client address from proxy headers or the connection.
type ViolationEvent struct {
	SessionID uuid.UUID
	UserID    *string
	At        time.Time
	IP        string
}

// ViolationHandler is called synchronously, in registration order, before
// the request continues with a fresh session.
type ViolationHandler func(ctx context.Context, ev ViolationEvent)
