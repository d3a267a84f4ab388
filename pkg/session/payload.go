package session

import (
	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionstore/pkg/cookie"
)

// cookiePayload is the plaintext of the session cookie: the record ID,
// followed by the renewal token when renewal is active.
type cookiePayload struct {
	ID    uuid.UUID
	Token []byte
}

func (p cookiePayload) marshal() []byte {
	b := make([]byte, 0, 16+len(p.Token))
	b = append(b, p.ID[:]...)
	return append(b, p.Token...)
}

func parsePayload(b []byte) (cookiePayload, error) {
	switch len(b) {
	case 16, 16 + TokenSize:
	default:
		return cookiePayload{}, cookie.ErrInvalidCookie
	}
	var p cookiePayload
	copy(p.ID[:], b[:16])
	if len(b) > 16 {
		p.Token = append([]byte(nil), b[16:]...)
	}
	return p, nil
}

func payloadFor(rec *Record) cookiePayload {
	p := cookiePayload{ID: rec.ID}
	if rec.Renewal != nil {
		p.Token = rec.Renewal.Current
	}
	return p
}
