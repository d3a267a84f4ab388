package session

import "errors"

var (
	// ErrSessionNotFound is returned by stores when no record has the given ID.
	ErrSessionNotFound = errors.New("session.not_found")

	// ErrDuplicateSession is returned by stores when a created record's ID exists.
	ErrDuplicateSession = errors.New("session.duplicate")

	// ErrConfiguration wraps every startup configuration failure.
	ErrConfiguration = errors.New("session.configuration")

	// ErrInvalidSetting indicates a setting value failed validation. The
	// wrapping error names the field.
	ErrInvalidSetting = errors.New("session.invalid_setting")

	// ErrUnknownSetting indicates a name that is not a runtime setting.
	ErrUnknownSetting = errors.New("session.unknown_setting")

	// ErrSettingsLocked indicates a write to row settings without Edit.
	ErrSettingsLocked = errors.New("session.settings_locked")

	// ErrSettingsNotEditable indicates Edit on a session that is already persisted.
	ErrSettingsNotEditable = errors.New("session.settings_not_editable")

	// ErrSettingNotConfigurable indicates a write to a setting that the
	// storage schema does not declare as runtime configurable.
	ErrSettingNotConfigurable = errors.New("session.setting_not_configurable")

	// ErrFeatureDisabled is returned by accessors of optional features
	// (user ID, CSRF token) the storage schema does not declare.
	ErrFeatureDisabled = errors.New("session.feature_disabled")

	// ErrNoStore indicates no store is configured.
	ErrNoStore = errors.New("session.no_store")

	// ErrNoCookieManager indicates no cookie manager is configured.
	ErrNoCookieManager = errors.New("session.no_cookie_manager")
)
