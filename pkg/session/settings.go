package session

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SettingName identifies one option of the flat settings map.
type SettingName string

const (
	SettingCookieName        SettingName = "cookie_name"
	SettingCookieMaxAge      SettingName = "cookie_max_age"
	SettingCookiePath        SettingName = "cookie_path"
	SettingCookieDomain      SettingName = "cookie_domain"
	SettingCookieSecure      SettingName = "cookie_secure"
	SettingCookieHTTPOnly    SettingName = "cookie_httponly"
	SettingIdleTimeout       SettingName = "idle_timeout"
	SettingAbsoluteTimeout   SettingName = "absolute_timeout"
	SettingRenewalTimeout    SettingName = "renewal_timeout"
	SettingRenewalTryEvery   SettingName = "renewal_try_every"
	SettingExtensionDelay    SettingName = "extension_delay"
	SettingExtensionChance   SettingName = "extension_chance"
	SettingExtensionDeadline SettingName = "extension_deadline"
)

// RuntimeSettings lists the settings a row may override. cookie_name is
// process-wide only.
var RuntimeSettings = []SettingName{
	SettingCookieMaxAge,
	SettingCookiePath,
	SettingCookieDomain,
	SettingCookieSecure,
	SettingCookieHTTPOnly,
	SettingIdleTimeout,
	SettingAbsoluteTimeout,
	SettingRenewalTimeout,
	SettingRenewalTryEvery,
	SettingExtensionDelay,
	SettingExtensionChance,
	SettingExtensionDeadline,
}

const (
	// maxInteger caps second-valued settings at roughly three years.
	maxInteger     = 100000000
	maxSmallint    = 32767
	maxShortString = 255

	// rfc2616 token characters
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&'*+-.^_`|~"
)

var truthy = []string{"t", "true", "y", "yes", "on", "1"}

// Settings are the validated values of every runtime setting. A zero
// duration means "none": the timeout is disabled, or for CookieMaxAge the
// cookie lasts for the browser session.
type Settings struct {
	CookieMaxAge   time.Duration
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieHTTPOnly bool

	IdleTimeout       time.Duration
	AbsoluteTimeout   time.Duration
	RenewalTimeout    time.Duration
	RenewalTryEvery   time.Duration
	ExtensionDelay    time.Duration
	ExtensionChance   int
	ExtensionDeadline time.Duration
}

// DefaultSettings returns the documented defaults: every timeout disabled,
// renewal retried every 5s, extension always taken with a 1s forced deadline.
func DefaultSettings() Settings {
	return Settings{
		CookiePath:        "/",
		CookieHTTPOnly:    true,
		RenewalTryEvery:   5 * time.Second,
		ExtensionChance:   100,
		ExtensionDeadline: time.Second,
	}
}

// Value returns the setting as a typed Go value: time.Duration, int, string
// or bool, and nil for a "none" value.
func (s Settings) Value(name SettingName) any {
	switch name {
	case SettingCookieMaxAge:
		return nullable(s.CookieMaxAge)
	case SettingCookiePath:
		return s.CookiePath
	case SettingCookieDomain:
		if s.CookieDomain == "" {
			return nil
		}
		return s.CookieDomain
	case SettingCookieSecure:
		return s.CookieSecure
	case SettingCookieHTTPOnly:
		return s.CookieHTTPOnly
	case SettingIdleTimeout:
		return nullable(s.IdleTimeout)
	case SettingAbsoluteTimeout:
		return nullable(s.AbsoluteTimeout)
	case SettingRenewalTimeout:
		return nullable(s.RenewalTimeout)
	case SettingRenewalTryEvery:
		return s.RenewalTryEvery
	case SettingExtensionDelay:
		return nullable(s.ExtensionDelay)
	case SettingExtensionChance:
		return s.ExtensionChance
	case SettingExtensionDeadline:
		return s.ExtensionDeadline
	}
	return nil
}

func nullable(d time.Duration) any {
	if d == 0 {
		return nil
	}
	return d
}

// values flattens s into a raw map suitable for parseSettings.
func (s Settings) values() map[SettingName]any {
	m := make(map[SettingName]any, len(RuntimeSettings))
	for _, name := range RuntimeSettings {
		m[name] = s.Value(name)
	}
	return m
}

// parseSettings applies the per-field validators to every runtime setting
// in raw and then the cross-field rules. Missing names are an error; callers
// merge defaults first.
func parseSettings(raw map[SettingName]any) (Settings, error) {
	var (
		s   Settings
		err error
	)
	get := func(name SettingName) (any, error) {
		v, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: required setting is missing", ErrInvalidSetting, name)
		}
		return v, nil
	}

	for _, name := range RuntimeSettings {
		var v any
		if v, err = get(name); err != nil {
			return Settings{}, err
		}
		switch name {
		case SettingCookieMaxAge:
			s.CookieMaxAge, err = parseSecondsOrNone(name, v, maxInteger)
		case SettingCookiePath:
			s.CookiePath, err = parseCookiePath(name, v)
		case SettingCookieDomain:
			s.CookieDomain, err = parseCookieDomain(name, v)
		case SettingCookieSecure:
			s.CookieSecure = parseBool(v)
		case SettingCookieHTTPOnly:
			s.CookieHTTPOnly = parseBool(v)
		case SettingIdleTimeout:
			s.IdleTimeout, err = parseSecondsOrNone(name, v, maxInteger)
		case SettingAbsoluteTimeout:
			s.AbsoluteTimeout, err = parseSecondsOrNone(name, v, maxInteger)
		case SettingRenewalTimeout:
			s.RenewalTimeout, err = parseSecondsOrNone(name, v, maxInteger)
		case SettingRenewalTryEvery:
			s.RenewalTryEvery, err = parseSeconds(name, v, maxSmallint)
		case SettingExtensionDelay:
			s.ExtensionDelay, err = parseSecondsOrNone(name, v, maxSmallint)
		case SettingExtensionChance:
			s.ExtensionChance, err = parsePercent(name, v)
		case SettingExtensionDeadline:
			s.ExtensionDeadline, err = parseSeconds(name, v, maxSmallint)
		}
		if err != nil {
			return Settings{}, err
		}
	}

	if err := validateTimeouts(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// validateTimeouts enforces the cross-field rules. Rules involving a
// disabled timeout are skipped.
func validateTimeouts(s Settings) error {
	if err := greater(SettingAbsoluteTimeout, s.AbsoluteTimeout, SettingIdleTimeout, s.IdleTimeout); err != nil {
		return err
	}
	if err := greater(SettingIdleTimeout, s.IdleTimeout, SettingExtensionDelay, s.ExtensionDelay); err != nil {
		return err
	}
	if s.IdleTimeout == 0 || s.ExtensionChance == 100 {
		return nil
	}
	if err := greater(SettingIdleTimeout, s.IdleTimeout, SettingExtensionDeadline, s.ExtensionDeadline); err != nil {
		return err
	}
	return greater(SettingExtensionDeadline, s.ExtensionDeadline, SettingExtensionDelay, s.ExtensionDelay)
}

func greater(aName SettingName, a time.Duration, bName SettingName, b time.Duration) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a <= b {
		return fmt.Errorf("%w: %s should be greater than %s", ErrInvalidSetting, aName, bName)
	}
	return nil
}

func isNone(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "none")
}

// toSeconds converts integers, integral floats, durations and numeric or
// duration strings into whole seconds.
func toSeconds(v any) (int64, bool) {
	switch x := v.(type) {
	case time.Duration:
		if x%time.Second != 0 {
			return 0, false
		}
		return int64(x / time.Second), true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32*1e3 {
			return 0, false
		}
		return int64(x), true
	case string:
		x = strings.TrimSpace(x)
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, true
		}
		if d, err := time.ParseDuration(x); err == nil {
			return toSeconds(d)
		}
	}
	return 0, false
}

func parseSeconds(name SettingName, v any, max int64) (time.Duration, error) {
	n, ok := toSeconds(v)
	if !ok || n <= 0 || n > max {
		return 0, fmt.Errorf("%w: %s: should be a positive integer number of seconds (max %d)", ErrInvalidSetting, name, max)
	}
	return time.Duration(n) * time.Second, nil
}

func parseSecondsOrNone(name SettingName, v any, max int64) (time.Duration, error) {
	if isNone(v) {
		return 0, nil
	}
	n, ok := toSeconds(v)
	if !ok || n <= 0 || n > max {
		return 0, fmt.Errorf("%w: %s: should be a positive integer number of seconds (max %d) or none", ErrInvalidSetting, name, max)
	}
	return time.Duration(n) * time.Second, nil
}

func parsePercent(name SettingName, v any) (int, error) {
	var n int64
	ok := false
	switch x := v.(type) {
	case time.Duration:
		// a percentage is never a duration
	default:
		n, ok = toSeconds(x)
	}
	if !ok || n <= 0 || n > 100 {
		return 0, fmt.Errorf("%w: %s: should be an integer in 1..100", ErrInvalidSetting, name)
	}
	return int(n), nil
}

// parseBool is lenient: anything outside the truthy set is false.
func parseBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x == 1
	case string:
		return slices.Contains(truthy, strings.ToLower(strings.TrimSpace(x)))
	}
	return false
}

func parseCookiePath(name SettingName, v any) (string, error) {
	s, ok := v.(string)
	if !ok || len(s) == 0 || len(s) > maxShortString || s[0] != '/' {
		return "", fmt.Errorf("%w: %s: should be a string not longer than %d chars starting with /", ErrInvalidSetting, name, maxShortString)
	}
	return s, nil
}

// parseCookieDomain accepts nil but not the "none" string, which is a valid
// host label.
func parseCookieDomain(name SettingName, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok || len(s) == 0 || len(s) > maxShortString {
		return "", fmt.Errorf("%w: %s: should be a non-empty string not longer than %d chars or none", ErrInvalidSetting, name, maxShortString)
	}
	return s, nil
}

func parseCookieName(name SettingName, v any) (string, error) {
	s, ok := v.(string)
	if ok && len(s) > 0 && len(s) <= maxShortString && strings.Trim(s, tokenAlphabet) == "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s: should be a valid rfc2616 token", ErrInvalidSetting, name)
}
