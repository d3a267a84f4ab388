package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/sessionstore/pkg/config"
	"github.com/dmitrymomot/sessionstore/pkg/session"
)

// settingsEnvPrefix is the environment prefix of session settings.
const settingsEnvPrefix = "SESSION_"

// capabilitiesKey selects features in the settings map; it is not a
// session setting itself.
const capabilitiesKey = "capabilities"

var settingsOpts struct {
	file string
	caps string
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Validate session settings and print the resolved values",
	Long: `Resolve the session settings the same way the application does and
print the result as YAML. Invalid settings exit with an error naming the
offending setting.

Example:
  sessiongc settings --config session.yaml --capabilities idle,renewal`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		caps, err := session.ParseCapabilities(settingsOpts.caps)
		if err != nil {
			return err
		}
		cfg, err := resolveSettings(settingsOpts.file, caps)
		if err != nil {
			return err
		}
		return printSettings(cmd, cfg)
	},
}

func init() {
	settingsCmd.Flags().StringVar(&settingsOpts.file, "config", "", "session settings YAML file")
	settingsCmd.Flags().StringVar(&settingsOpts.caps, "capabilities", "all", "features the storage supports")
	rootCmd.AddCommand(settingsCmd)
}

// resolveSettings loads the settings map and resolves it against the
// capabilities of the backend, narrowed by the capabilities setting.
func resolveSettings(file string, offered session.Capabilities) (*session.Config, error) {
	raw, err := config.Settings(file, settingsEnvPrefix)
	if err != nil {
		return nil, err
	}
	caps := offered
	if v, ok := raw[capabilitiesKey]; ok {
		delete(raw, capabilitiesKey)
		wanted, err := session.ParseCapabilities(fmt.Sprint(v))
		if err != nil {
			return nil, err
		}
		if missing := wanted &^ offered; missing != 0 {
			return nil, fmt.Errorf("%w: storage does not support %s", session.ErrConfiguration, missing)
		}
		caps = wanted
	}
	return session.Resolve(raw, caps)
}

type resolvedView struct {
	CookieName string         `yaml:"cookie_name"`
	Features   map[string]any `yaml:"features"`
	Settings   map[string]any `yaml:"settings"`
}

func printSettings(cmd *cobra.Command, cfg *session.Config) error {
	view := resolvedView{
		CookieName: cfg.CookieName,
		Features: map[string]any{
			"userid":   cfg.Features.UserID,
			"csrf":     cfg.Features.CSRF,
			"cookie":   cfg.Features.ConfigCookie,
			"idle":     cfg.Features.Idle.String(),
			"absolute": cfg.Features.Absolute.String(),
			"renewal":  cfg.Features.Renewal.String(),
		},
		Settings: make(map[string]any, len(session.RuntimeSettings)),
	}
	for _, name := range session.RuntimeSettings {
		v := cfg.Settings.Value(name)
		if d, ok := v.(time.Duration); ok {
			v = int(d / time.Second)
		}
		view.Settings[string(name)] = v
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
