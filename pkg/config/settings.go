package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSettingsFile reads a YAML document of session settings into a flat
// map. One level of nesting is joined with an underscore, so
//
//	cookie:
//	  name: sid
//	idle_timeout: 300
//
// yields {"cookie_name": "sid", "idle_timeout": 300}.
func LoadSettingsFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrSettingsFile, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Join(ErrSettingsFile, err)
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		nested, ok := v.(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		for sub, sv := range nested {
			if _, isMap := sv.(map[string]any); isMap {
				return nil, fmt.Errorf("%w: %s.%s: settings nest at most one level", ErrSettingsFile, k, sub)
			}
			out[k+"_"+sub] = sv
		}
	}
	return out, nil
}

// SettingsFromEnv collects the variables starting with prefix, e.g.
// SESSION_IDLE_TIMEOUT=300 becomes {"idle_timeout": "300"} for the prefix
// "SESSION_".
func SettingsFromEnv(prefix string) map[string]any {
	out := make(map[string]any)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(k, prefix))] = v
	}
	return out
}

// Settings merges the file at path (if any) with environment overrides.
func Settings(path, prefix string) (map[string]any, error) {
	out := make(map[string]any)
	if path != "" {
		file, err := LoadSettingsFile(path)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, file)
	}
	maps.Copy(out, SettingsFromEnv(prefix))
	return out, nil
}
