package config

import (
	"time"

	"github.com/leapstack-labs/leaplineage/internal/layout"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Default configuration values.
const (
	DefaultCatalogURL      = "http://localhost:8585/api/v1"
	DefaultCatalogTimeout  = 30 * time.Second
	DefaultUpstreamDepth   = 1
	DefaultDownstreamDepth = 1
	DefaultStateFile       = ".leaplineage/state.db"
	DefaultCacheBackend    = CacheSQLite
	DefaultCacheTTL        = 10 * time.Minute
	DefaultCachePrefix     = "leaplineage:"
	DefaultRedisAddr       = "localhost:6379"
	DefaultServerPort      = 8765
	DefaultSessionIdle     = 30 * time.Minute
	DefaultOutput          = "auto"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	ApplyDefaults(c)
	return c
}

// ApplyDefaults fills unset values of c.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = DefaultCatalogURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.Catalog.UpstreamDepth == 0 {
		c.Catalog.UpstreamDepth = DefaultUpstreamDepth
	}
	if c.Catalog.DownstreamDepth == 0 {
		c.Catalog.DownstreamDepth = DefaultDownstreamDepth
	}

	d := layout.DefaultOptions()
	if c.Layout.Direction == "" {
		c.Layout.Direction = d.Direction
	}
	if c.Layout.NodeWidth == 0 {
		c.Layout.NodeWidth = d.NodeWidth
	}
	if c.Layout.NodeHeight == 0 {
		c.Layout.NodeHeight = d.NodeHeight
	}
	if c.Layout.NodeSpacing == 0 {
		c.Layout.NodeSpacing = d.NodeSpacing
	}
	if c.Layout.LayerSpacing == 0 {
		c.Layout.LayerSpacing = d.LayerSpacing
	}

	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = DefaultCachePrefix
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = DefaultRedisAddr
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.SessionIdle == 0 {
		c.Server.SessionIdle = DefaultSessionIdle
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutput
	}
}

// DefaultsMap returns the defaults as a flat koanf map.
func DefaultsMap() map[string]any {
	c := Default()
	return map[string]any{
		"catalog.base_url":         c.Catalog.BaseURL,
		"catalog.timeout":          c.Catalog.Timeout.String(),
		"catalog.upstream_depth":   c.Catalog.UpstreamDepth,
		"catalog.downstream_depth": c.Catalog.DownstreamDepth,
		"layout.direction":         string(c.Layout.Direction),
		"layout.node_width":        c.Layout.NodeWidth,
		"layout.node_height":       c.Layout.NodeHeight,
		"layout.node_spacing":      c.Layout.NodeSpacing,
		"layout.layer_spacing":     c.Layout.LayerSpacing,
		"state_path":               c.StatePath,
		"cache.backend":            c.Cache.Backend,
		"cache.ttl":                c.Cache.TTL.String(),
		"cache.prefix":             c.Cache.Prefix,
		"cache.redis.addr":         c.Cache.Redis.Addr,
		"server.port":              c.Server.Port,
		"server.session_idle":      c.Server.SessionIdle.String(),
		"output":                   c.OutputFormat,
		"verbose":                  false,
	}
}
