// Package config provides the configuration types for leaplineage.
// This package is decoupled from CLI concerns; the CLI layers flags and
// environment variables on top of it in internal/cli/config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leapstack-labs/leaplineage/internal/layout"
)

// CatalogConfig holds the connection to the metadata catalog API.
type CatalogConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"omitempty,url"`
	Token           string        `koanf:"token"`
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`
	UpstreamDepth   int           `koanf:"upstream_depth" validate:"gte=0,lte=3"`
	DownstreamDepth int           `koanf:"downstream_depth" validate:"gte=0,lte=3"`
}

// RedisConfig holds the redis connection for the shared cache.
type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required_if=Enabled true"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	// Enabled is set by Validate from the cache backend.
	Enabled bool `koanf:"-"`
}

// CacheConfig selects where fetched lineage is cached.
type CacheConfig struct {
	// Backend is none, sqlite (the state store) or redis.
	Backend string        `koanf:"backend" validate:"oneof=none sqlite redis"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
	Prefix  string        `koanf:"prefix"`
	Redis   RedisConfig   `koanf:"redis"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port          int           `koanf:"port" validate:"gte=0,lte=65535"`
	SessionSecret string        `koanf:"session_secret"`
	SessionIdle   time.Duration `koanf:"session_idle" validate:"gte=0"`
	AutoOpen      bool          `koanf:"auto_open"`
}

// Config holds all configuration options.
type Config struct {
	Catalog      CatalogConfig  `koanf:"catalog"`
	Layout       layout.Options `koanf:"layout"`
	StatePath    string         `koanf:"state_path"`
	Cache        CacheConfig    `koanf:"cache"`
	Server       ServerConfig   `koanf:"server"`
	OutputFormat string         `koanf:"output" validate:"oneof=auto text json yaml"`
	Verbose      bool           `koanf:"verbose"`
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

var validate = validator.New()

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	c.Cache.Redis.Enabled = c.Cache.Backend == CacheRedis
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
