package session

import (
	"fmt"
	"strings"
)

// Capabilities declares what the storage schema supports. A Config* marker
// implies its base marker.
type Capabilities uint16

const (
	CapUserID Capabilities = 1 << iota
	CapCSRF
	CapConfigCookie
	CapIdle
	CapConfigIdle
	CapAbsolute
	CapConfigAbsolute
	CapRenewal
	CapConfigRenewal
)

// CapAll enables every feature and every per-row override.
const CapAll = CapUserID | CapCSRF | CapConfigCookie | CapIdle | CapConfigIdle |
	CapAbsolute | CapConfigAbsolute | CapRenewal | CapConfigRenewal

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapUserID, "userid"},
	{CapCSRF, "csrf"},
	{CapConfigCookie, "config_cookie"},
	{CapIdle, "idle"},
	{CapConfigIdle, "config_idle"},
	{CapAbsolute, "absolute"},
	{CapConfigAbsolute, "config_absolute"},
	{CapRenewal, "renewal"},
	{CapConfigRenewal, "config_renewal"},
}

// Has reports whether every bit of c2 is set in c.
func (c Capabilities) Has(c2 Capabilities) bool { return c&c2 == c2 }

func (c Capabilities) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.cap) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseCapabilities parses a comma or space separated list of capability
// names, e.g. "userid,idle,config_idle". "all" enables everything.
func ParseCapabilities(s string) (Capabilities, error) {
	var c Capabilities
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "all" {
			c |= CapAll
			continue
		}
		found := false
		for _, n := range capabilityNames {
			if n.name == f {
				c |= n.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown capability %q", ErrConfiguration, f)
		}
	}
	return c, nil
}

// FeatureMode says whether a timeout feature is off, fixed process-wide or
// overridable per row.
type FeatureMode uint8

const (
	FeatureDisabled FeatureMode = iota
	FeatureFixed
	FeatureConfigurable
)

func (m FeatureMode) Enabled() bool { return m != FeatureDisabled }

func (m FeatureMode) String() string {
	switch m {
	case FeatureFixed:
		return "fixed"
	case FeatureConfigurable:
		return "configurable"
	}
	return "disabled"
}

// Features is the resolved form of Capabilities.
type Features struct {
	UserID       bool
	CSRF         bool
	ConfigCookie bool
	Idle         FeatureMode
	Absolute     FeatureMode
	Renewal      FeatureMode
}

func mode(c Capabilities, base, configurable Capabilities) FeatureMode {
	switch {
	case c.Has(configurable):
		return FeatureConfigurable
	case c.Has(base):
		return FeatureFixed
	}
	return FeatureDisabled
}

// FeaturesFrom resolves a capability set.
func FeaturesFrom(c Capabilities) Features {
	return Features{
		UserID:       c.Has(CapUserID),
		CSRF:         c.Has(CapCSRF),
		ConfigCookie: c.Has(CapConfigCookie),
		Idle:         mode(c, CapIdle, CapConfigIdle),
		Absolute:     mode(c, CapAbsolute, CapConfigAbsolute),
		Renewal:      mode(c, CapRenewal, CapConfigRenewal),
	}
}

// Configurable reports whether name may be overridden per row.
func (f Features) Configurable(name SettingName) bool {
	switch name {
	case SettingCookieMaxAge, SettingCookiePath, SettingCookieDomain,
		SettingCookieSecure, SettingCookieHTTPOnly:
		return f.ConfigCookie
	case SettingIdleTimeout, SettingExtensionDelay, SettingExtensionChance, SettingExtensionDeadline:
		return f.Idle == FeatureConfigurable
	case SettingAbsoluteTimeout:
		return f.Absolute == FeatureConfigurable
	case SettingRenewalTimeout, SettingRenewalTryEvery:
		return f.Renewal == FeatureConfigurable
	}
	return false
}
