package session

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/sessionstore/pkg/logger"
)

type (
	sessionContextKey struct{}
	storeContextKey   struct{}
)

// withStore records the store requests run against, the transaction inside
// Middleware.
func withStore(ctx context.Context, st Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, st)
}

func storeFromContext(ctx context.Context, fallback Store) Store {
	if st, ok := ctx.Value(storeContextKey{}).(Store); ok {
		return st
	}
	return fallback
}

// WithSession adds a session to the context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// FromContext retrieves a session from the context
func FromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*Session)
	return session, ok
}

// MustFromContext retrieves a session from the context or panics
func MustFromContext(ctx context.Context) *Session {
	session, ok := FromContext(ctx)
	if !ok {
		panic("session: not found in context")
	}
	return session
}

// SessionIDFromContext returns the session ID for log correlation. New
// sessions that were never stored report false.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	if !ok || s.IsNew() {
		return "", false
	}
	return s.ID().String(), true
}

// UserIDFromContext retrieves the user ID from the session in context
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	id, err := s.UserID()
	if err != nil || id == nil {
		return "", false
	}
	return *id, true
}

// LogExtractor adds the stored session ID to log records written with the
// request context.
func LogExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := SessionIDFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.SessionID(id), true
	}
}
