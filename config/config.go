// Package config resolves broker configuration from a TOML file, named
// profiles and environment variables, so a test suite can flip between the
// in-memory transport and a real broker without code changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/epalmerini/burrow/internal/xdg"
)

const configFile = "config.toml"

// Transport selection values.
const (
	TransportMemory = "memory"
	TransportAMQP   = "amqp"
)

// DefaultTimeout mirrors the broker's default RPC timeout.
const DefaultTimeout = 30 * time.Second

// FileConfig is the TOML file structure.
type FileConfig struct {
	Transport string             `toml:"transport"`
	URL       string             `toml:"url"`
	Exchange  string             `toml:"exchange"`
	Timeout   string             `toml:"timeout"`
	Journal   string             `toml:"journal"`
	Profiles  map[string]Profile `toml:"profiles"`
}

// Profile is a named configuration overriding the global settings.
type Profile struct {
	Transport string `toml:"transport"`
	URL       string `toml:"url"`
	Exchange  string `toml:"exchange"`
	Timeout   string `toml:"timeout"`
	Journal   string `toml:"journal"`
}

// Config is the resolved runtime configuration after profile selection.
type Config struct {
	Transport   string
	URL         string
	Exchange    string
	Timeout     time.Duration
	JournalPath string
}

// DefaultDir returns the configuration directory following the XDG spec.
func DefaultDir() (string, error) {
	return xdg.Dir("XDG_CONFIG_HOME", ".config")
}

// Load reads config.toml from configDir.
// Returns a zero-value FileConfig (no error) if the file doesn't exist.
func Load(configDir string) (*FileConfig, error) {
	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}

	var cfg FileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// Resolve merges a profile (by name) with global settings and env vars into
// a runtime Config. If profileName is empty or not found, only global/env
// settings are used. An unparsable timeout is an error; everything else
// falls back to in-memory defaults.
func (fc FileConfig) Resolve(profileName string) (Config, error) {
	cfg := Config{
		Transport:   fc.Transport,
		URL:         fc.URL,
		Exchange:    fc.Exchange,
		JournalPath: fc.Journal,
		Timeout:     DefaultTimeout,
	}

	timeout := fc.Timeout
	if p, ok := fc.Profiles[profileName]; ok {
		if p.Transport != "" {
			cfg.Transport = p.Transport
		}
		if p.URL != "" {
			cfg.URL = p.URL
		}
		if p.Exchange != "" {
			cfg.Exchange = p.Exchange
		}
		if p.Journal != "" {
			cfg.JournalPath = p.Journal
		}
		if p.Timeout != "" {
			timeout = p.Timeout
		}
	}

	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}
		cfg.Timeout = d
	}

	// Fall back to env vars for URL if not set by file or profile
	if cfg.URL == "" {
		if u := os.Getenv("AMQP_URL"); u != "" {
			cfg.URL = u
		} else if u := os.Getenv("RABBITMQ_URL"); u != "" {
			cfg.URL = u
		}
	}

	// A URL implies the real transport; no URL means the in-memory one.
	if cfg.Transport == "" {
		if cfg.URL != "" {
			cfg.Transport = TransportAMQP
		} else {
			cfg.Transport = TransportMemory
		}
	}

	return cfg, nil
}

// ProfileNames returns a sorted list of profile names.
func (fc FileConfig) ProfileNames() []string {
	names := make([]string, 0, len(fc.Profiles))
	for name := range fc.Profiles {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
