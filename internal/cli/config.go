package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultAPIURL = "http://localhost:8080"

// Settings is the fitctl config file.
type Settings struct {
	APIURL    string    `yaml:"api_url"`
	Token     string    `yaml:"token,omitempty"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
	Theme     string    `yaml:"theme,omitempty"`
}

// LoggedIn reports whether a token is stored and has not expired.
func (s Settings) LoggedIn(now time.Time) bool {
	return s.Token != "" && (s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt))
}

// DefaultConfigPath returns ~/.config/fitctl/config.yaml, honouring FITCTL_CONFIG.
func DefaultConfigPath() string {
	if p := os.Getenv("FITCTL_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "fitctl", "config.yaml")
}

// LoadSettings reads the config file. A missing file yields defaults.
func LoadSettings(path string) (Settings, error) {
	s := Settings{APIURL: defaultAPIURL, Theme: "light"}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	if s.APIURL == "" {
		s.APIURL = defaultAPIURL
	}
	if s.Theme == "" {
		s.Theme = "light"
	}
	return s, nil
}

// SaveSettings writes the config file with owner-only permissions since it
// holds the access token.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
