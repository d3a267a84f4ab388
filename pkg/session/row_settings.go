package session

import (
	"fmt"
	"maps"
	"slices"
)

// RowSettings edits the runtime settings of a single session. It is locked
// until Edit is called, which is only allowed while the session is new.
// Writes go to an overlay and reach the record on Save.
type RowSettings struct {
	sess   *Session
	dirty  map[SettingName]any
	locked bool
}

func newRowSettings(s *Session) *RowSettings {
	return &RowSettings{sess: s, locked: true}
}

// Edit unlocks the settings.
func (rs *RowSettings) Edit() error {
	if !rs.sess.isNew {
		return ErrSettingsNotEditable
	}
	rs.locked = false
	return nil
}

// Locked reports whether Set is rejected.
func (rs *RowSettings) Locked() bool { return rs.locked }

// Dirty returns the names with pending writes.
func (rs *RowSettings) Dirty() []SettingName {
	return slices.Sorted(maps.Keys(rs.dirty))
}

// Set stages a value. Validation of the value itself happens on Save.
func (rs *RowSettings) Set(name SettingName, value any) error {
	if !known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	if !rs.sess.cfg.Configurable(name) {
		return fmt.Errorf("%w: %s", ErrSettingNotConfigurable, name)
	}
	if rs.locked {
		return ErrSettingsLocked
	}
	if rs.dirty == nil {
		rs.dirty = make(map[SettingName]any)
	}
	rs.dirty[name] = value
	return nil
}

// Get returns the pending value of name if any, the effective one otherwise.
func (rs *RowSettings) Get(name SettingName) (any, error) {
	if !known(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	if name == SettingCookieName {
		return rs.sess.cfg.CookieName, nil
	}
	if v, ok := rs.dirty[name]; ok {
		return v, nil
	}
	return rs.Effective().Value(name), nil
}

// Effective returns the settings in force for the session, ignoring the
// pending overlay.
func (rs *RowSettings) Effective() Settings {
	return rs.sess.cfg.Effective(rs.sess.rec.Overrides)
}

// Save validates the effective settings with the overlay applied and, if
// they pass, stores every pending value at once and locks. On failure the
// record and the overlay are left as they were.
func (rs *RowSettings) Save() error {
	if rs.locked {
		return ErrSettingsLocked
	}
	raw := rs.Effective().values()
	for name, v := range rs.dirty {
		raw[name] = v
	}
	parsed, err := parseSettings(raw)
	if err != nil {
		return err
	}
	if len(rs.dirty) > 0 {
		for name := range rs.dirty {
			rs.sess.rec.Overrides.assign(name, parsed)
		}
		rs.sess.changed = true
	}
	rs.dirty = nil
	rs.locked = true
	return nil
}

// Discard drops pending values and locks.
func (rs *RowSettings) Discard() {
	rs.dirty = nil
	rs.locked = true
}

func known(name SettingName) bool {
	return name == SettingCookieName || slices.Contains(RuntimeSettings, name)
}
