package session

import (
	"errors"
	"fmt"
)

// Config is the resolved process-wide configuration. Build it with Resolve;
// it is read-only afterwards.
type Config struct {
	// CookieName is the name of the session cookie (default: "session").
	CookieName string
	// Settings hold the process defaults for every runtime setting.
	Settings Settings
	// Features is what the storage schema supports.
	Features Features
}

// Resolve validates a flat settings map against the storage capabilities.
// Missing names take their defaults. Every failure wraps ErrConfiguration
// and names the offending setting.
func Resolve(raw map[string]any, caps Capabilities) (*Config, error) {
	cfg, err := resolve(raw, caps)
	if err != nil {
		return nil, errors.Join(ErrConfiguration, err)
	}
	return cfg, nil
}

func resolve(raw map[string]any, caps Capabilities) (*Config, error) {
	values := DefaultSettings().values()
	name := any("session")
	for k, v := range raw {
		n := SettingName(k)
		if n == SettingCookieName {
			name = v
			continue
		}
		if _, ok := values[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, k)
		}
		values[n] = v
	}

	cookieName, err := parseCookieName(SettingCookieName, name)
	if err != nil {
		return nil, err
	}
	s, err := parseSettings(values)
	if err != nil {
		return nil, err
	}

	f := FeaturesFrom(caps)
	checks := []struct {
		name SettingName
		mode FeatureMode
		set  bool
	}{
		{SettingIdleTimeout, f.Idle, s.IdleTimeout > 0},
		{SettingAbsoluteTimeout, f.Absolute, s.AbsoluteTimeout > 0},
		{SettingRenewalTimeout, f.Renewal, s.RenewalTimeout > 0},
	}
	for _, c := range checks {
		switch {
		case !c.mode.Enabled() && c.set:
			return nil, fmt.Errorf("%w: %s is set but the storage does not support it", ErrInvalidSetting, c.name)
		case c.mode == FeatureFixed && !c.set:
			return nil, fmt.Errorf("%w: %s is required when the feature is enabled", ErrInvalidSetting, c.name)
		}
	}

	return &Config{CookieName: cookieName, Settings: s, Features: f}, nil
}

// Configurable reports whether a row may override name.
func (c *Config) Configurable(name SettingName) bool {
	return c.Features.Configurable(name)
}

// Effective applies the row overrides the features allow on top of the
// process defaults.
func (c *Config) Effective(o Overrides) Settings {
	s := c.Settings
	for _, name := range RuntimeSettings {
		if c.Configurable(name) {
			o.apply(name, &s)
		}
	}
	return s
}
