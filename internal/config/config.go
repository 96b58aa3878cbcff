// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Emberfall Contributors

// Package config loads server configuration from a YAML file merged with
// command-line flags. Flags that were explicitly set win over the file;
// file values win over flag defaults.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/emberfall/emberfall/internal/xdg"
)

// Defaults for settings that have no command-line flag.
const (
	DefaultQueryTimeout    = 5 * time.Second
	DefaultStatsWindowDays = 7
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
}

// ServerConfig holds network listen addresses.
type ServerConfig struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format"`
}

// DatabaseConfig holds credential store settings. QueryTimeout bounds each
// store call issued by the gateway.
type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// AuthConfig holds authentication behavior settings.
type AuthConfig struct {
	RegistrationOpen bool `koanf:"registration_open"`
	StatsWindowDays  int  `koanf:"stats_window_days"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"listen-addr":       "server.listen_addr",
	"metrics-addr":      "server.metrics_addr",
	"log-format":        "log.format",
	"database-url":      "database.url",
	"registration-open": "auth.registration_open",
}

// Load reads configuration from an optional YAML file and merges the given
// flag set over it. An empty path falls back to the XDG config location
// when a file exists there; otherwise only flags and defaults apply.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if candidate := xdg.DefaultConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			// A flag default never overrides a value from the file.
			if !f.Changed && k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if cfg.Database.QueryTimeout <= 0 {
		cfg.Database.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Auth.StatsWindowDays <= 0 {
		cfg.Auth.StatsWindowDays = DefaultStatsWindowDays
	}

	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
