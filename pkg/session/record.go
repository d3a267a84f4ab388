package session

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted state of a session.
type Record struct {
	ID             uuid.UUID        `json:"id"`
	Created        time.Time        `json:"created"`
	Data           map[string]any   `json:"data,omitempty"`
	Flash          map[string][]any `json:"flash,omitempty"`
	IdleExpire     *time.Time       `json:"idle_expire,omitempty"`
	AbsoluteExpire *time.Time       `json:"absolute_expire,omitempty"`
	Renewal        *RenewalState    `json:"renewal,omitempty"`
	UserID         *string          `json:"userid,omitempty"`
	CSRFToken      string           `json:"csrf_token,omitempty"`
	Overrides      Overrides        `json:"overrides,omitzero"`
}

// RenewalState holds the rotating cookie tokens. Previous stays accepted
// until GraceDeadline.
type RenewalState struct {
	Current       []byte    `json:"current"`
	Previous      []byte    `json:"previous,omitempty"`
	RotatedAt     time.Time `json:"rotated_at"`
	GraceDeadline time.Time `json:"grace_deadline"`
}

// NewRecord returns an empty record created at now.
func NewRecord(now time.Time) *Record {
	return &Record{
		ID:      uuid.New(),
		Created: now,
		Data:    make(map[string]any),
	}
}

// Clone returns a deep copy. Data values are copied through JSON, the same
// form the persistent stores use, so callers never share mutable state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = cloneMap(r.Data)
	if r.Flash != nil {
		c.Flash = make(map[string][]any, len(r.Flash))
		for q, msgs := range r.Flash {
			c.Flash[q] = cloneSlice(msgs)
		}
	}
	c.IdleExpire = cloneTime(r.IdleExpire)
	c.AbsoluteExpire = cloneTime(r.AbsoluteExpire)
	if r.Renewal != nil {
		rs := *r.Renewal
		rs.Current = bytes.Clone(r.Renewal.Current)
		rs.Previous = bytes.Clone(r.Renewal.Previous)
		c.Renewal = &rs
	}
	if r.UserID != nil {
		u := *r.UserID
		c.UserID = &u
	}
	c.Overrides = r.Overrides.clone()
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return x
	case map[string]any:
		return cloneMap(x)
	case []any:
		return cloneSlice(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Overrides are the per-row values of runtime settings. A nil field falls
// back to the process default; a pointer to zero (or to "" for the domain)
// means the row explicitly disabled it. Durations are whole seconds.
type Overrides struct {
	CookieMaxAge      *int    `json:"cookie_max_age,omitempty"`
	CookiePath        *string `json:"cookie_path,omitempty"`
	CookieDomain      *string `json:"cookie_domain,omitempty"`
	CookieSecure      *bool   `json:"cookie_secure,omitempty"`
	CookieHTTPOnly    *bool   `json:"cookie_httponly,omitempty"`
	IdleTimeout       *int    `json:"idle_timeout,omitempty"`
	AbsoluteTimeout   *int    `json:"absolute_timeout,omitempty"`
	RenewalTimeout    *int    `json:"renewal_timeout,omitempty"`
	RenewalTryEvery   *int    `json:"renewal_try_every,omitempty"`
	ExtensionDelay    *int    `json:"extension_delay,omitempty"`
	ExtensionChance   *int    `json:"extension_chance,omitempty"`
	ExtensionDeadline *int    `json:"extension_deadline,omitempty"`
}

// IsZero reports whether no setting is overridden.
func (o Overrides) IsZero() bool { return o == Overrides{} }

// Values returns the overridden settings by name in Settings.Value form.
func (o Overrides) Values() map[SettingName]any {
	m := make(map[SettingName]any)
	for _, name := range RuntimeSettings {
		var s Settings
		if o.apply(name, &s) {
			m[name] = s.Value(name)
		}
	}
	return m
}

func (o Overrides) clone() Overrides {
	c := Overrides{}
	for _, name := range RuntimeSettings {
		var s Settings
		if o.apply(name, &s) {
			c.assign(name, s)
		}
	}
	return c
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func ptr[T any](v T) *T { return &v }

// apply copies the override of name into s and reports whether one is set.
func (o Overrides) apply(name SettingName, s *Settings) bool {
	switch name {
	case SettingCookieMaxAge:
		if o.CookieMaxAge != nil {
			s.CookieMaxAge = seconds(*o.CookieMaxAge)
			return true
		}
	case SettingCookiePath:
		if o.CookiePath != nil {
			s.CookiePath = *o.CookiePath
			return true
		}
	case SettingCookieDomain:
		if o.CookieDomain != nil {
			s.CookieDomain = *o.CookieDomain
			return true
		}
	case SettingCookieSecure:
		if o.CookieSecure != nil {
			s.CookieSecure = *o.CookieSecure
			return true
		}
	case SettingCookieHTTPOnly:
		if o.CookieHTTPOnly != nil {
			s.CookieHTTPOnly = *o.CookieHTTPOnly
			return true
		}
	case SettingIdleTimeout:
		if o.IdleTimeout != nil {
			s.IdleTimeout = seconds(*o.IdleTimeout)
			return true
		}
	case SettingAbsoluteTimeout:
		if o.AbsoluteTimeout != nil {
			s.AbsoluteTimeout = seconds(*o.AbsoluteTimeout)
			return true
		}
	case SettingRenewalTimeout:
		if o.RenewalTimeout != nil {
			s.RenewalTimeout = seconds(*o.RenewalTimeout)
			return true
		}
	case SettingRenewalTryEvery:
		if o.RenewalTryEvery != nil {
			s.RenewalTryEvery = seconds(*o.RenewalTryEvery)
			return true
		}
	case SettingExtensionDelay:
		if o.ExtensionDelay != nil {
			s.ExtensionDelay = seconds(*o.ExtensionDelay)
			return true
		}
	case SettingExtensionChance:
		if o.ExtensionChance != nil {
			s.ExtensionChance = *o.ExtensionChance
			return true
		}
	case SettingExtensionDeadline:
		if o.ExtensionDeadline != nil {
			s.ExtensionDeadline = seconds(*o.ExtensionDeadline)
			return true
		}
	}
	return false
}

// assign stores the value of name from s as an override.
func (o *Overrides) assign(name SettingName, s Settings) {
	secs := func(d time.Duration) *int { return ptr(int(d / time.Second)) }
	switch name {
	case SettingCookieMaxAge:
		o.CookieMaxAge = secs(s.CookieMaxAge)
	case SettingCookiePath:
		o.CookiePath = ptr(s.CookiePath)
	case SettingCookieDomain:
		o.CookieDomain = ptr(s.CookieDomain)
	case SettingCookieSecure:
		o.CookieSecure = ptr(s.CookieSecure)
	case SettingCookieHTTPOnly:
		o.CookieHTTPOnly = ptr(s.CookieHTTPOnly)
	case SettingIdleTimeout:
		o.IdleTimeout = secs(s.IdleTimeout)
	case SettingAbsoluteTimeout:
		o.AbsoluteTimeout = secs(s.AbsoluteTimeout)
	case SettingRenewalTimeout:
		o.RenewalTimeout = secs(s.RenewalTimeout)
	case SettingRenewalTryEvery:
		o.RenewalTryEvery = secs(s.RenewalTryEvery)
	case SettingExtensionDelay:
		o.ExtensionDelay = secs(s.ExtensionDelay)
	case SettingExtensionChance:
		o.ExtensionChance = ptr(s.ExtensionChance)
	case SettingExtensionDeadline:
		o.ExtensionDeadline = secs(s.ExtensionDeadline)
	}
}

// dataKeys returns the sorted data keys.
func dataKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
