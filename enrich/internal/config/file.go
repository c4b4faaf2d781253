// Package config handles twitchpreview configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Enrich  EnrichConfig  `yaml:"enrich"`
	Status  StatusConfig  `yaml:"status"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// PageConfig defines a page to enrich.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
	// PlayerParent overrides the player parent for this page. Empty means
	// the page host.
	PlayerParent string `yaml:"player_parent"`
	// Stealth disables go-rod/stealth for this page when false.
	Stealth *bool `yaml:"stealth"`
}

// StealthEnabled reports whether the tab should be opened with stealth.
func (p PageConfig) StealthEnabled() bool {
	return p.Stealth == nil || *p.Stealth
}

// EnrichConfig tunes the enrichment pipeline.
type EnrichConfig struct {
	Settle       time.Duration `yaml:"settle"`
	MaxSettle    time.Duration `yaml:"max_settle"`
	PlayerParent string        `yaml:"player_parent"`
	MaxHops      int           `yaml:"max_hops"`
}

// StatusConfig configures the status service client.
type StatusConfig struct {
	Endpoint string        `yaml:"endpoint"`
	ClientID string        `yaml:"client_id"`
	Timeout  time.Duration `yaml:"timeout"`
	Rate     float64       `yaml:"rate"`
	Burst    int           `yaml:"burst"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	MaxBody int64  `yaml:"max_body"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Enrich.Settle <= 0 {
		c.Enrich.Settle = 150 * time.Millisecond
	}
	if c.Enrich.MaxSettle <= 0 {
		c.Enrich.MaxSettle = time.Second
	}
	if c.Enrich.MaxHops <= 0 {
		c.Enrich.MaxHops = 10
	}
	if c.Status.Endpoint == "" {
		c.Status.Endpoint = "https://gql.twitch.tv/gql"
	}
	if c.Status.ClientID == "" {
		c.Status.ClientID = "kimne78kjlxcf1kwn2hfmsvj8pkkpo"
	}
	if c.Status.Timeout <= 0 {
		c.Status.Timeout = 5 * time.Second
	}
	if c.Status.Rate <= 0 {
		c.Status.Rate = 10
	}
	if c.Status.Burst <= 0 {
		c.Status.Burst = 5
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8087"
	}
	if c.Server.MaxBody <= 0 {
		c.Server.MaxBody = 4 << 20
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth: unknown mode %q", c.Browser.Stealth)
	}
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %s: url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: page %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	if c.Enrich.MaxSettle < c.Enrich.Settle {
		return fmt.Errorf("config: enrich.max_settle (%s) below enrich.settle (%s)", c.Enrich.MaxSettle, c.Enrich.Settle)
	}
	return nil
}
