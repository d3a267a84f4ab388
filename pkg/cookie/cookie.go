package cookie

import (
	"errors"
	"net/http"
	"time"
)

// Manager writes and reads HTTP cookies, optionally sealing values with a Codec.
type Manager struct {
	codec    *Codec
	defaults Options
}

// New creates a cookie manager. The codec may be nil when only plain cookies
// are used; SetEncrypted and GetEncrypted then return ErrNoCodec.
func New(codec *Codec, opts ...Option) *Manager {
	defaults := Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		codec:    codec,
		defaults: applyOptions(defaults, opts),
	}
}

// Codec returns the codec the manager seals values with.
func (m *Manager) Codec() *Codec {
	return m.codec
}

func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	options := applyOptions(m.defaults, opts)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     options.Path,
		Domain:   options.Domain,
		MaxAge:   options.MaxAge,
		Secure:   options.Secure,
		HttpOnly: options.HttpOnly,
		SameSite: options.SameSite,
	})
}

func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Delete expires the cookie on the client. Path and domain must match the
// ones it was set with, so the same options are accepted as for Set.
func (m *Manager) Delete(w http.ResponseWriter, name string, opts ...Option) {
	options := applyOptions(m.defaults, opts)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     options.Path,
		Domain:   options.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   options.Secure,
		HttpOnly: options.HttpOnly,
		SameSite: options.SameSite,
	})
}

// SetEncrypted seals payload and stores it in the named cookie.
func (m *Manager) SetEncrypted(w http.ResponseWriter, name string, payload []byte, opts ...Option) error {
	if m.codec == nil {
		return ErrNoCodec
	}

	value, err := m.codec.Encrypt(payload)
	if err != nil {
		return err
	}
	m.Set(w, name, value, opts...)
	return nil
}

// GetEncrypted reads and opens the named cookie. Besides ErrCookieNotFound it
// returns the codec errors ErrInvalidCookie and ErrCookieCrypto unchanged.
func (m *Manager) GetEncrypted(r *http.Request, name string) ([]byte, error) {
	if m.codec == nil {
		return nil, ErrNoCodec
	}

	value, err := m.Get(r, name)
	if err != nil {
		return nil, err
	}
	return m.codec.Decrypt(value)
}
