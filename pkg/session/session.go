package session

import (
	"crypto/rand"
	"encoding/base64"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// csrfTokenSize is the number of random bytes in a CSRF token.
const csrfTokenSize = 32

// Session is the request-scoped handle on a record. It is not safe for
// concurrent use.
type Session struct {
	rec      *Record
	cfg      *Config
	settings *RowSettings
	store    Store

	isNew     bool
	changed   bool
	hadCookie bool
	now       time.Time
	decision  Decision
	stale     []uuid.UUID
	saved     bool
}

func newSession(cfg *Config, rec *Record, isNew bool, now time.Time) *Session {
	s := &Session{rec: rec, cfg: cfg, isNew: isNew, now: now}
	s.settings = newRowSettings(s)
	return s
}

// ID returns the record ID. A new session gets its ID before it is stored.
func (s *Session) ID() uuid.UUID { return s.rec.ID }

// Created returns the creation time of the record.
func (s *Session) Created() time.Time { return s.rec.Created }

// IsNew reports whether the session is not yet stored: fresh or invalidated.
func (s *Session) IsNew() bool { return s.isNew }

// Settings returns the per-row settings editor.
func (s *Session) Settings() *RowSettings { return s.settings }

// Changed marks the session as modified. Call it after mutating a value
// obtained through Get in place.
func (s *Session) Changed() { s.changed = true }

// Get retrieves a value from session data
func (s *Session) Get(key string) (any, bool) {
	val, ok := s.rec.Data[key]
	return val, ok
}

// GetString retrieves a string value from session data
func (s *Session) GetString(key string) (string, bool) {
	val, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves an int value from session data. Numbers decoded from
// JSON stores come back as float64.
func (s *Session) GetInt(key string) (int, bool) {
	val, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetBool retrieves a bool value from session data
func (s *Session) GetBool(key string) (bool, bool) {
	val, ok := s.Get(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Set stores a value in session data
func (s *Session) Set(key string, value any) {
	if s.rec.Data == nil {
		s.rec.Data = make(map[string]any)
	}
	s.rec.Data[key] = value
	s.changed = true
}

// Delete removes a value from session data
func (s *Session) Delete(key string) {
	if _, ok := s.rec.Data[key]; !ok {
		return
	}
	delete(s.rec.Data, key)
	s.changed = true
}

// Clear removes all data from the session
func (s *Session) Clear() {
	if len(s.rec.Data) == 0 {
		return
	}
	s.rec.Data = make(map[string]any)
	s.changed = true
}

// Keys returns the sorted data keys.
func (s *Session) Keys() []string { return dataKeys(s.rec.Data) }

// Len returns the number of data keys.
func (s *Session) Len() int { return len(s.rec.Data) }

// Flash appends msg to the named queue.
func (s *Session) Flash(queue string, msg any) {
	if s.rec.Flash == nil {
		s.rec.Flash = make(map[string][]any)
	}
	s.rec.Flash[queue] = append(s.rec.Flash[queue], msg)
	s.changed = true
}

// FlashUnique appends msg unless an equal message is already queued. It
// reports whether the message was added.
func (s *Session) FlashUnique(queue string, msg any) bool {
	for _, m := range s.rec.Flash[queue] {
		if reflect.DeepEqual(m, msg) {
			return false
		}
	}
	s.Flash(queue, msg)
	return true
}

// PeekFlash returns the queued messages without removing them.
func (s *Session) PeekFlash(queue string) []any {
	return append([]any(nil), s.rec.Flash[queue]...)
}

// PopFlash returns and removes the queued messages.
func (s *Session) PopFlash(queue string) []any {
	msgs, ok := s.rec.Flash[queue]
	if !ok {
		return nil
	}
	delete(s.rec.Flash, queue)
	s.changed = true
	return msgs
}

// UserID returns the authenticated user, nil for anonymous sessions.
func (s *Session) UserID() (*string, error) {
	if !s.cfg.Features.UserID {
		return nil, ErrFeatureDisabled
	}
	if s.rec.UserID == nil {
		return nil, nil
	}
	id := *s.rec.UserID
	return &id, nil
}

// SetUserID sets or, with nil, clears the authenticated user.
func (s *Session) SetUserID(id *string) error {
	if !s.cfg.Features.UserID {
		return ErrFeatureDisabled
	}
	if id == nil {
		if s.rec.UserID != nil {
			s.rec.UserID = nil
			s.changed = true
		}
		return nil
	}
	v := *id
	s.rec.UserID = &v
	s.changed = true
	return nil
}

// CSRFToken returns the session CSRF token, creating one if needed.
func (s *Session) CSRFToken() (string, error) {
	if !s.cfg.Features.CSRF {
		return "", ErrFeatureDisabled
	}
	if s.rec.CSRFToken == "" {
		return s.NewCSRFToken()
	}
	return s.rec.CSRFToken, nil
}

// NewCSRFToken replaces the CSRF token.
func (s *Session) NewCSRFToken() (string, error) {
	if !s.cfg.Features.CSRF {
		return "", ErrFeatureDisabled
	}
	b := make([]byte, csrfTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s.rec.CSRFToken = base64.URLEncoding.EncodeToString(b)
	s.changed = true
	return s.rec.CSRFToken, nil
}

// Invalidate drops all session state. The stored record is deleted on save
// and a new one is created only if something is written afterwards.
func (s *Session) Invalidate() {
	if !s.isNew {
		s.stale = append(s.stale, s.rec.ID)
	}
	s.rec = NewRecord(s.now)
	s.isNew = true
	s.changed = false
	s.decision = DecisionKeep
	s.settings = newRowSettings(s)
}

// Effective returns the settings in force for this session.
func (s *Session) Effective() Settings { return s.cfg.Effective(s.rec.Overrides) }
