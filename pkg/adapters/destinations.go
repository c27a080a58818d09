package adapters

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-publisher/pkg/configfile"
)

const (
	// Supported destination types.
	TypeDashboard = "dashboard"
	TypeHashnode  = "hashnode"
	TypeDevto     = "devto"
	TypeMedium    = "medium"
	TypeLinkedIn  = "linkedin"

	defaultTimeoutSeconds = 15
)

// configFile represents the structure of the destinations configuration file.
type configFile struct {
	Destinations []DestinationConfig `json:"destinations" yaml:"destinations"`
}

// DestinationConfig is one destination entry declared in config files.
// Credential values may reference environment variables as ${NAME}.
type DestinationConfig struct {
	ID             string            `json:"id" yaml:"id"`
	Type           string            `json:"type" yaml:"type"`
	Enabled        *bool             `json:"enabled" yaml:"enabled"`
	BaseURL        string            `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
	Credentials    map[string]string `json:"credentials" yaml:"credentials"`
}

// ConfigRegistry holds the destinations declared in a registry file. It is
// immutable once loaded.
type ConfigRegistry struct {
	list []DestinationConfig
	byID map[string]int
}

// LoadRegistry loads the destination registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	var file configFile
	if err := configfile.Decode(path, "destinations", &file); err != nil {
		return nil, err
	}
	if len(file.Destinations) == 0 {
		return nil, errors.New("destinations file contains no destinations entries")
	}
	return NewConfigRegistry(file.Destinations)
}

// NewConfigRegistry normalizes and validates entries in declaration order.
func NewConfigRegistry(entries []DestinationConfig) (*ConfigRegistry, error) {
	reg := &ConfigRegistry{byID: make(map[string]int, len(entries))}
	for i, entry := range entries {
		cfg := entry.normalized()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("destinations[%d]: %w", i, err)
		}
		if _, dup := reg.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate destination id %q", cfg.ID)
		}
		reg.byID[cfg.ID] = len(reg.list)
		reg.list = append(reg.list, cfg)
	}
	return reg, nil
}

// normalized lowercases identifiers, applies defaults and expands ${ENV} credentials.
func (cfg DestinationConfig) normalized() DestinationConfig {
	cfg.ID = strings.ToLower(strings.TrimSpace(cfg.ID))
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.ExpandEnv(cfg.BaseURL)), "/")
	if cfg.Enabled == nil {
		on := true
		cfg.Enabled = &on
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	cfg.Credentials = configfile.ExpandMap(cfg.Credentials)
	return cfg
}

func (cfg DestinationConfig) validate() error {
	switch {
	case cfg.ID == "":
		return errors.New("id is required")
	case cfg.Type == "":
		return fmt.Errorf("type is required for destination %q", cfg.ID)
	case cfg.Type == TypeDashboard && cfg.BaseURL == "":
		return fmt.Errorf("base_url is required for destination %q", cfg.ID)
	}
	return nil
}

// ByID looks a destination up case-insensitively.
func (r *ConfigRegistry) ByID(id string) (DestinationConfig, bool) {
	if r == nil {
		return DestinationConfig{}, false
	}
	i, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return DestinationConfig{}, false
	}
	return r.list[i], true
}

// All returns a copy of every declared destination.
func (r *ConfigRegistry) All() []DestinationConfig {
	if r == nil {
		return nil
	}
	return append([]DestinationConfig(nil), r.list...)
}

// Enabled returns the destinations that are switched on.
func (r *ConfigRegistry) Enabled() []DestinationConfig {
	var out []DestinationConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg DestinationConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// Credential returns the named credential or an empty string.
func (cfg DestinationConfig) Credential(key string) string {
	return cfg.Credentials[key]
}

// Timeout returns the HTTP timeout for the destination client.
func (cfg DestinationConfig) Timeout() time.Duration {
	if cfg.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

func (cfg DestinationConfig) baseURL(fallback string) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return fallback
}
