// Package config loads process configuration.
//
// Load fills env-tagged structs such as pg.Config and redis.Config, after
// reading .env files with github.com/joho/godotenv; parsing is done by
// github.com/caarlos0/env/v11.
//
// Session settings are a flat name/value map instead of a struct, because
// their validation lives in the session package. Settings merges a YAML
// file (gopkg.in/yaml.v3) with SESSION_* style environment variables:
//
//	raw, err := config.Settings("session.yaml", "SESSION_")
//	if err != nil {
//		return err
//	}
//	cfg, err := session.Resolve(raw, caps)
//
// Errors wrap ErrParsingConfig, ErrLoadingEnvFile or ErrSettingsFile.
package config
