// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config defines the authgate configuration and loads it from
// defaults, a YAML file, AUTHGATE_* environment variables and command-line
// flags, in that order of precedence.
package config

import (
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Notifier drivers.
const (
	NotifyLog  = "log"
	NotifySMTP = "smtp"
)

// redacted replaces secrets in Redacted output.
const redacted = "[REDACTED]"

// Config is the complete authgate configuration.
type Config struct {
	Env     string        `koanf:"env" yaml:"env"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	Token   TokenConfig   `koanf:"token" yaml:"token"`
	Hash    HashConfig    `koanf:"hash" yaml:"hash"`
	Codes   CodesConfig   `koanf:"codes" yaml:"codes"`
	Notify  NotifyConfig  `koanf:"notify" yaml:"notify"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-" yaml:"-"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// StoreConfig selects the account repository.
type StoreConfig struct {
	Driver      string      `koanf:"driver" yaml:"driver"`
	DatabaseURL string      `koanf:"database_url" yaml:"database_url"`
	AutoMigrate bool        `koanf:"auto_migrate" yaml:"auto_migrate"`
	Redis       RedisConfig `koanf:"redis" yaml:"redis"`
}

// RedisConfig configures the redis store driver.
type RedisConfig struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db"`
	Prefix   string `koanf:"prefix" yaml:"prefix"`
}

// TokenConfig configures access token signing.
type TokenConfig struct {
	Secret string        `koanf:"secret" yaml:"secret"`
	Issuer string        `koanf:"issuer" yaml:"issuer"`
	TTL    time.Duration `koanf:"ttl" yaml:"ttl"`
}

// HashConfig selects and tunes the password hash.
type HashConfig struct {
	Algorithm  string       `koanf:"algorithm" yaml:"algorithm"`
	BcryptCost int          `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
	Argon2     Argon2Config `koanf:"argon2" yaml:"argon2"`
}

// Argon2Config tunes argon2id.
type Argon2Config struct {
	Memory      uint32 `koanf:"memory" yaml:"memory"`
	Iterations  uint32 `koanf:"iterations" yaml:"iterations"`
	Parallelism uint8  `koanf:"parallelism" yaml:"parallelism"`
}

// CodesConfig configures verification and reset codes.
type CodesConfig struct {
	Length  int    `koanf:"length" yaml:"length"`
	Charset string `koanf:"charset" yaml:"charset"`
	// TTL bounds code age. Zero means codes never expire.
	TTL time.Duration `koanf:"ttl" yaml:"ttl"`
}

// NotifyConfig selects how codes are delivered.
type NotifyConfig struct {
	Driver  string        `koanf:"driver" yaml:"driver"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
	// LogCodes writes codes to the log when delivery fails. Rejected in
	// production.
	LogCodes bool       `koanf:"log_codes" yaml:"log_codes"`
	SMTP     SMTPConfig `koanf:"smtp" yaml:"smtp"`
}

// SMTPConfig configures the smtp notifier.
type SMTPConfig struct {
	Host        string `koanf:"host" yaml:"host"`
	Port        int    `koanf:"port" yaml:"port"`
	Username    string `koanf:"username" yaml:"username"`
	Password    string `koanf:"password" yaml:"password"`
	From        string `koanf:"from" yaml:"from"`
	ImplicitTLS bool   `koanf:"implicit_tls" yaml:"implicit_tls"`
}

// Default returns the built-in configuration. Every default lives here.
func Default() Config {
	argon2 := auth.DefaultArgon2Params()
	return Config{
		Env: EnvDevelopment,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Store: StoreConfig{
			Driver: StoreMemory,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "authgate:account:",
			},
		},
		Token: TokenConfig{
			Issuer: "authgate",
			TTL:    auth.DefaultTokenTTL,
		},
		Hash: HashConfig{
			Algorithm:  auth.AlgorithmArgon2id,
			BcryptCost: auth.DefaultBcryptCost,
			Argon2: Argon2Config{
				Memory:      argon2.Memory,
				Iterations:  argon2.Iterations,
				Parallelism: argon2.Parallelism,
			},
		},
		Codes: CodesConfig{
			Length:  auth.DefaultCodeLength,
			Charset: auth.DefaultCodeCharset,
		},
		Notify: NotifyConfig{
			Driver:  NotifyLog,
			Timeout: auth.DefaultNotifyTimeout,
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
	}
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	err := validation.Errors{
		"env": validation.Validate(c.Env,
			validation.Required, validation.In(EnvDevelopment, EnvTest, EnvProduction)),
		"log.format": validation.Validate(c.Log.Format,
			validation.Required, validation.In("json", "text")),
		"http.addr": validation.Validate(c.HTTP.Addr, validation.Required),
		"store.driver": validation.Validate(c.Store.Driver,
			validation.Required, validation.In(StoreMemory, StorePostgres, StoreRedis)),
		"token.secret": validation.Validate(c.Token.Secret,
			validation.Required, validation.Length(auth.MinSecretLength, 0)),
		"hash.algorithm": validation.Validate(c.Hash.Algorithm,
			validation.Required, validation.In(auth.AlgorithmArgon2id, auth.AlgorithmBcrypt)),
		"codes.length": validation.Validate(c.Codes.Length, validation.Required, validation.Min(1)),
		"notify.driver": validation.Validate(c.Notify.Driver,
			validation.Required, validation.In(NotifyLog, NotifySMTP)),
	}.Filter()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	switch {
	case c.Store.Driver == StorePostgres && c.Store.DatabaseURL == "":
		return oops.Code("CONFIG_INVALID").Errorf("store.database_url is required for the postgres store")
	case c.Store.Driver == StoreRedis && c.Store.Redis.Addr == "":
		return oops.Code("CONFIG_INVALID").Errorf("store.redis.addr is required for the redis store")
	case c.Notify.Driver == NotifySMTP && (c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == ""):
		return oops.Code("CONFIG_INVALID").Errorf("notify.smtp.host and notify.smtp.from are required for the smtp notifier")
	case c.Env == EnvProduction && c.Notify.LogCodes:
		return oops.Code("CONFIG_INVALID").Errorf("notify.log_codes must not be enabled in production")
	case c.Token.TTL < 0, c.Codes.TTL < 0, c.Notify.Timeout < 0:
		return oops.Code("CONFIG_INVALID").Errorf("durations must not be negative")
	}
	return nil
}

// Redacted returns a copy with secrets replaced, for display.
func (c Config) Redacted() Config {
	out := c
	if out.Token.Secret != "" {
		out.Token.Secret = redacted
	}
	if out.Store.Redis.Password != "" {
		out.Store.Redis.Password = redacted
	}
	if out.Notify.SMTP.Password != "" {
		out.Notify.SMTP.Password = redacted
	}
	if out.Store.DatabaseURL != "" {
		if u, err := url.Parse(out.Store.DatabaseURL); err == nil {
			out.Store.DatabaseURL = u.Redacted()
		} else {
			out.Store.DatabaseURL = redacted
		}
	}
	return out
}

// HasherConfig converts the hash settings for auth.NewPasswordHasher.
func (c *Config) HasherConfig() auth.HasherConfig {
	return auth.HasherConfig{
		Algorithm:  c.Hash.Algorithm,
		BcryptCost: c.Hash.BcryptCost,
		Argon2: auth.Argon2Params{
			Memory:      c.Hash.Argon2.Memory,
			Iterations:  c.Hash.Argon2.Iterations,
			Parallelism: c.Hash.Argon2.Parallelism,
		},
	}
}
