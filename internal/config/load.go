// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/xdg"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: AUTHGATE_TOKEN__SECRET sets token.secret.
const EnvPrefix = "AUTHGATE_"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"env":           "env",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"addr":          "http.addr",
	"metrics-addr":  "metrics.addr",
	"store":         "store.driver",
	"database-url":  "store.database_url",
	"auto-migrate":  "store.auto_migrate",
	"redis-addr":    "store.redis.addr",
	"notify":        "notify.driver",
	"log-codes":     "notify.log_codes",
	"hash":          "hash.algorithm",
	"token-ttl":     "token.ttl",
	"code-ttl":      "codes.ttl",
	"shutdown-wait": "http.shutdown_timeout",
}

// BindFlags registers the config override flags. Only flags the user sets
// override lower layers.
func BindFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String("env", def.Env, "environment (development, test or production)")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "log format (json or text)")
	flags.String("addr", def.HTTP.Addr, "API listen address")
	flags.String("metrics-addr", def.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	flags.String("store", def.Store.Driver, "account store (memory, postgres or redis)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.Bool("auto-migrate", def.Store.AutoMigrate, "apply pending migrations on startup")
	flags.String("redis-addr", def.Store.Redis.Addr, "redis address")
	flags.String("notify", def.Notify.Driver, "code delivery (log or smtp)")
	flags.Bool("log-codes", def.Notify.LogCodes, "log codes when delivery fails (never in production)")
	flags.String("hash", def.Hash.Algorithm, "password hash algorithm (argon2id or bcrypt)")
	flags.Duration("token-ttl", def.Token.TTL, "access token lifetime")
	flags.Duration("code-ttl", def.Codes.TTL, "verification and reset code lifetime (0 = no expiry)")
	flags.Duration("shutdown-wait", def.HTTP.ShutdownTimeout, "graceful shutdown timeout")
}

// Load builds the configuration. Layers apply in order: defaults, the YAML
// file at path, AUTHGATE_* environment variables, then changed flags.
//
// An empty path uses the XDG config file when it exists. An explicit path
// must exist. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	loaded, err := loadFile(k, path)
	if err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	cfg.File = loaded
	return &cfg, nil
}

// loadFile loads the YAML layer and returns the path it read, if any.
func loadFile(k *koanf.Koanf, path string) (string, error) {
	explicit := path != ""
	if !explicit {
		def, err := xdg.ConfigFile()
		if err != nil {
			// No home directory: run on defaults.
			return "", nil //nolint:nilerr // a missing default config file is not an error
		}
		path = def
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return "", oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

// envKey turns AUTHGATE_STORE__DATABASE_URL into store.database_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
