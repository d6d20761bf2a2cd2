// Package config layers configuration for the leaplineage CLI.
//
// The configuration types live in internal/config; this package loads them
// from defaults, a config file, LEAPLINEAGE_ environment variables and
// explicitly set flags, in increasing order of precedence.
package config

import (
	intconfig "github.com/leapstack-labs/leaplineage/internal/config"
)

// Config is an alias for the shared configuration.
type Config = intconfig.Config

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "LEAPLINEAGE_"

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"state":     "state_path",
	"direction": "layout.direction",
	"catalog":   "catalog.base_url",
	"token":     "catalog.token",
	"cache":     "cache.backend",
}
