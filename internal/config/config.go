// Package config loads xtid settings: defaults, then an optional YAML file,
// then XTID_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const envPrefix = "XTID_"

// Config is the shared configuration of the CLI and the signing server.
type Config struct {
	Addr              string        `yaml:"addr" koanf:"addr"`
	HomeURL           string        `yaml:"home_url" koanf:"home_url"`
	OnDemandURLFormat string        `yaml:"ondemand_url_format" koanf:"ondemand_url_format"`
	UserAgent         string        `yaml:"user_agent" koanf:"user_agent"`
	AcceptLanguage    string        `yaml:"accept_language" koanf:"accept_language"`
	Timeout           time.Duration `yaml:"timeout" koanf:"timeout"`
	Browser           bool          `yaml:"browser" koanf:"browser"`
	BrowserTimeout    time.Duration `yaml:"browser_timeout" koanf:"browser_timeout"`
	RefreshInterval   time.Duration `yaml:"refresh_interval" koanf:"refresh_interval"`
	Verbose           bool          `yaml:"verbose" koanf:"verbose"`
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (XTID_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// XTID_HOME_URL -> home_url, etc.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if err := checkURL("home_url", c.HomeURL); err != nil {
		return err
	}
	if c.OnDemandURLFormat == "" {
		return fmt.Errorf("ondemand_url_format is required")
	}
	if strings.Count(c.OnDemandURLFormat, "%s") != 1 {
		return fmt.Errorf("ondemand_url_format %q must contain exactly one %%s", c.OnDemandURLFormat)
	}
	if err := checkURL("ondemand_url_format", fmt.Sprintf(c.OnDemandURLFormat, "0")); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Browser && c.BrowserTimeout <= 0 {
		return fmt.Errorf("browser_timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval must be non-negative")
	}
	return nil
}

func checkURL(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s %q: missing host", name, raw)
	}
	return nil
}
