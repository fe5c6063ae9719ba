package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override file values.
// REDB_PERSIST_SCHEMA_CREATE overrides schema.create.
const EnvPrefix = "REDB_PERSIST_"

// Well-known keys
const (
	KeyDatabaseURL     = "database.url"
	KeyDatabaseDialect = "database.dialect"
	KeySchemaCreate    = "schema.create"
	KeySchemaAlter     = "schema.alter"
	KeyIDAllocator     = "id.allocator"
	KeyRedisURL        = "redis.url"
	KeyFindPageSize    = "find.page_size"
	KeyLogLevel        = "log.level"
	KeySweepInterval   = "cache.sweep_interval"
)

// Config manages kernel configuration
type Config struct {
	mu     sync.RWMutex
	values map[string]string

	// Define which keys require restart when changed
	restartKeys []string
}

// New creates a new configuration manager with defaults applied
func New() *Config {
	return &Config{
		values: map[string]string{
			KeySchemaCreate:  "true",
			KeySchemaAlter:   "true",
			KeyIDAllocator:   "native",
			KeyFindPageSize:  "100",
			KeyLogLevel:      "info",
			KeySweepInterval: "0s",
		},
		restartKeys: []string{
			KeyDatabaseURL,
			KeyDatabaseDialect,
			KeyIDAllocator,
		},
	}
}

// Load reads a YAML file into a new Config. Nested maps are flattened to
// dotted keys, then environment overrides are applied.
func Load(path string) (*Config, error) {
	c := New()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := c.LoadYAML(data); err != nil {
			return nil, err
		}
	}
	c.ApplyEnv(os.Environ())
	return c, nil
}

// LoadYAML merges YAML content into the configuration.
func (c *Config) LoadYAML(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	flat := make(map[string]string)
	flatten("", raw, flat)
	c.Update(flat)
	return nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// ApplyEnv applies KEY=VALUE pairs carrying EnvPrefix. The suffix is matched
// against known keys with dots read as underscores, so
// REDB_PERSIST_FIND_PAGE_SIZE sets find.page_size. Unknown suffixes map
// every underscore to a dot.
func (c *Config) ApplyEnv(environ []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		suffix := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		key := c.matchEnvKey(suffix)
		c.values[key] = value
	}
}

func (c *Config) matchEnvKey(suffix string) string {
	for k := range c.values {
		if strings.ReplaceAll(k, ".", "_") == suffix {
			return k
		}
	}
	return strings.ReplaceAll(suffix, "_", ".")
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetBool parses a boolean value, returning def when unset or invalid
func (c *Config) GetBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Get(key)))
	if err != nil {
		return def
	}
	return v
}

// GetInt parses an integer value, returning def when unset or invalid
func (c *Config) GetInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Get(key)))
	if err != nil {
		return def
	}
	return v
}

// GetDuration parses a duration value, returning def when unset or invalid
func (c *Config) GetDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(c.Get(key)))
	if err != nil {
		return def
	}
	return v
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copy := make(map[string]string)
	for k, v := range c.values {
		copy[k] = v
	}
	return copy
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// Set updates a single value
func (c *Config) Set(key, value string) {
	c.Update(map[string]string{key: value})
}

// RequiresRestart checks if any changed keys require a restart
func (c *Config) RequiresRestart(oldConfig map[string]string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, key := range c.restartKeys {
		if oldConfig[key] != c.values[key] {
			return true
		}
	}

	return false
}

// SetRestartKeys sets which configuration keys require restart when changed
func (c *Config) SetRestartKeys(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartKeys = keys
}
