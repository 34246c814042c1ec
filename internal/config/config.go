// Package config reads and writes the openindex TOML configuration
// file. Secrets (OAuth client credentials, redis address) can be
// overridden through environment variables so they never have to live
// on disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultDirName is the per-user config directory under $HOME.
const DefaultDirName = ".openindex"

// fileName is the config file inside the config directory.
const fileName = "config.toml"

// envPrefix namespaces all environment overrides.
const envPrefix = "OPENINDEX_"

// Config is the full on-disk configuration.
type Config struct {
	// DataDir holds the sqlite database. Defaults to <configdir>/data.
	DataDir string `toml:"data_dir"`

	// RedisAddr is the change-notification redis address, empty when
	// notifications are disabled. Env: OPENINDEX_REDIS_ADDR.
	RedisAddr string `toml:"redis_addr"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose"`

	Cache     CacheConfig               `toml:"cache"`
	Chunking  ChunkingConfig            `toml:"chunking"`
	Breaker   BreakerConfig             `toml:"breaker"`
	Sync      SyncConfig                `toml:"sync"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// CacheConfig tunes the two-tier document cache.
type CacheConfig struct {
	L1MaxEntries         int   `toml:"l1_max_entries"`
	L2MaxEntries         int   `toml:"l2_max_entries"`
	CompressionThreshold int   `toml:"compression_threshold"`
	TTLSeconds           int64 `toml:"ttl_seconds"`
}

// ChunkingConfig tunes the chunking engine defaults.
type ChunkingConfig struct {
	ChunkSize int `toml:"chunk_size"`
	Overlap   int `toml:"overlap"`
}

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold   int `toml:"failure_threshold"`
	SuccessThreshold   int `toml:"success_threshold"`
	OpenTimeoutSeconds int `toml:"open_timeout_seconds"`
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	TimeoutSeconds   int `toml:"timeout_seconds"`
	RetryMaxAttempts int `toml:"retry_max_attempts"`
}

// ProviderConfig holds one provider's OAuth app settings. ClientSecret
// is usually supplied via OPENINDEX_<KIND>_CLIENT_SECRET instead of the
// file.
type ProviderConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		DataDir: filepath.Join(dir, "data"),
		Cache: CacheConfig{
			L1MaxEntries:         1024,
			L2MaxEntries:         8192,
			CompressionThreshold: 1024,
		},
		Chunking: ChunkingConfig{ChunkSize: 1000, Overlap: 100},
		Breaker: BreakerConfig{
			FailureThreshold:   5,
			SuccessThreshold:   2,
			OpenTimeoutSeconds: 30,
		},
		Sync:      SyncConfig{TimeoutSeconds: 300, RetryMaxAttempts: 4},
		Providers: make(map[string]ProviderConfig),
	}
}

// Dir resolves the config directory, creating it with owner-only
// permissions. An empty dir means $HOME/.openindex.
func Dir(dir string) (string, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads the config file under dir, filling defaults for anything
// unset and applying environment overrides. A missing file yields the
// defaults.
func Load(dir string) (*Config, error) {
	dir, err := Dir(dir)
	if err != nil {
		return nil, err
	}

	cfg := Default(dir)
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes the config file with owner-only permissions.
func (c *Config) Save(dir string) error {
	dir, err := Dir(dir)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0o600)
}

// applyEnv overlays environment variables onto the loaded file.
// Provider overrides use OPENINDEX_<KIND>_CLIENT_ID and
// OPENINDEX_<KIND>_CLIENT_SECRET.
func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		c.DataDir = v
	}

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || value == "" || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)
		var field string
		var isSecret bool
		switch {
		case strings.HasSuffix(rest, "_CLIENT_ID"):
			field = strings.TrimSuffix(rest, "_CLIENT_ID")
		case strings.HasSuffix(rest, "_CLIENT_SECRET"):
			field = strings.TrimSuffix(rest, "_CLIENT_SECRET")
			isSecret = true
		default:
			continue
		}
		kind := strings.ToLower(field)
		p := c.Providers[kind]
		if isSecret {
			p.ClientSecret = value
		} else {
			p.ClientID = value
		}
		c.Providers[kind] = p
	}
}

// Provider returns a provider's OAuth settings, zero when unset.
func (c *Config) Provider(kind string) ProviderConfig {
	return c.Providers[strings.ToLower(kind)]
}
