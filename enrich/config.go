package enrich

import (
	"github.com/hazyhaar/twitchpreview/enrich/internal/config"
)

// Config is the top-level twitchpreview configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to enrich.
type PageConfig = config.PageConfig

// EnrichConfig tunes the enrichment pipeline.
type EnrichConfig = config.EnrichConfig

// StatusConfig configures the status service client.
type StatusConfig = config.StatusConfig

// ServerConfig configures the HTTP API.
type ServerConfig = config.ServerConfig

// PageStore is the SQLite page list.
type PageStore = config.Store

// WatchOptions tunes PageStore.Watch.
type WatchOptions = config.WatchOptions

// ErrPageNotFound is returned by PageStore.DisablePage for an unknown id.
var ErrPageNotFound = config.ErrPageNotFound

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}

// OpenPageStore opens the SQLite page list at path.
func OpenPageStore(path string) (*PageStore, error) {
	return config.OpenStore(path)
}
