// Package config loads sgcache settings from an optional TOML file and
// SGCACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Connection Connection `toml:"connection"`
	Cache      Cache      `toml:"cache"`
	Events     Events     `toml:"events"`
	Sync       Sync       `toml:"sync"`

	// Path is the file the config was read from, empty if none existed.
	Path string `toml:"-"`
}

// Connection holds the remote store settings. They are validated at first
// network use, not at load time.
type Connection struct {
	Host      string `toml:"host"`       // SGCACHE_HOST
	APIScript string `toml:"api_script"` // SGCACHE_API_SCRIPT
	APIKey    string `toml:"api_key"`    // SGCACHE_API_KEY
	HTTPProxy string `toml:"http_proxy"` // SGCACHE_HTTP_PROXY (optional)
}

type Cache struct {
	SchemaTree  string `toml:"schema_tree"`  // SGCACHE_SCHEMA_TREE
	SQLURL      string `toml:"sql_url"`      // SGCACHE_SQL_URL
	SamplesRoot string `toml:"samples_root"` // SGCACHE_SAMPLES_ROOT (default "samples")
}

type Events struct {
	NATSURL string `toml:"nats_url"` // SGCACHE_NATS_URL (optional, empty = no events)
}

type Sync struct {
	S3Bucket   string `toml:"s3_bucket"`   // SGCACHE_S3_BUCKET
	S3Region   string `toml:"s3_region"`   // SGCACHE_S3_REGION (default "us-east-1")
	S3Endpoint string `toml:"s3_endpoint"` // SGCACHE_S3_ENDPOINT (custom endpoint for MinIO)
	S3Prefix   string `toml:"s3_prefix"`   // SGCACHE_S3_PREFIX (default "samples/")
}

// DefaultPath returns the config file location: SGCACHE_CONFIG if set,
// otherwise ~/.config/sgcache/config.toml.
func DefaultPath() string {
	if p := os.Getenv("SGCACHE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sgcache", "config.toml")
}

// Load reads the TOML file at path, if it exists, and applies environment
// overrides on top. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			c.Path = path
		}
	}

	c.Connection.Host = envOrDefault("SGCACHE_HOST", c.Connection.Host)
	c.Connection.APIScript = envOrDefault("SGCACHE_API_SCRIPT", c.Connection.APIScript)
	c.Connection.APIKey = envOrDefault("SGCACHE_API_KEY", c.Connection.APIKey)
	c.Connection.HTTPProxy = envOrDefault("SGCACHE_HTTP_PROXY", c.Connection.HTTPProxy)

	c.Cache.SchemaTree = envOrDefault("SGCACHE_SCHEMA_TREE", c.Cache.SchemaTree)
	c.Cache.SQLURL = envOrDefault("SGCACHE_SQL_URL", c.Cache.SQLURL)
	c.Cache.SamplesRoot = envOrDefault("SGCACHE_SAMPLES_ROOT", orDefault(c.Cache.SamplesRoot, "samples"))

	c.Events.NATSURL = envOrDefault("SGCACHE_NATS_URL", c.Events.NATSURL)

	c.Sync.S3Bucket = envOrDefault("SGCACHE_S3_BUCKET", c.Sync.S3Bucket)
	c.Sync.S3Region = envOrDefault("SGCACHE_S3_REGION", orDefault(c.Sync.S3Region, "us-east-1"))
	c.Sync.S3Endpoint = envOrDefault("SGCACHE_S3_ENDPOINT", c.Sync.S3Endpoint)
	c.Sync.S3Prefix = envOrDefault("SGCACHE_S3_PREFIX", orDefault(c.Sync.S3Prefix, "samples/"))

	return c, nil
}

// Save writes c to path as TOML, creating the parent directory.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
