// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/auth/memory"
	authpg "github.com/holomush/authgate/internal/auth/postgres"
	authredis "github.com/holomush/authgate/internal/auth/redis"
	"github.com/holomush/authgate/internal/config"
	"github.com/holomush/authgate/internal/notify"
	"github.com/holomush/authgate/internal/store"
)

// accountStore is an opened account repository and its lifecycle hooks.
type accountStore struct {
	repo auth.AccountRepository
	// ping reports whether the backing store is reachable. Nil means always.
	ping  func(ctx context.Context) error
	close func()
}

// Close releases the store's connections.
func (s *accountStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStore opens the repository selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config, migrators MigratorFactory) (*accountStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		slog.Warn("using in-memory account store: accounts are lost on restart")
		return &accountStore{repo: memory.NewAccountRepository()}, nil

	case config.StorePostgres:
		if cfg.Store.AutoMigrate {
			if err := runAutoMigrate(cfg.Store.DatabaseURL, migrators); err != nil {
				return nil, err
			}
		}
		pool, err := store.OpenPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err //nolint:wrapcheck // OpenPool returns coded errors
		}
		slog.Info("connected to database")
		return &accountStore{
			repo:  authpg.NewAccountRepository(pool),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Store.Redis.Addr).Wrap(err)
		}
		slog.Info("connected to redis", "addr", cfg.Store.Redis.Addr)
		return &accountStore{
			repo: authredis.NewAccountRepository(client, authredis.WithPrefix(cfg.Store.Redis.Prefix)),
			ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close: func() {
				if err := client.Close(); err != nil {
					slog.Debug("error closing redis client", "error", err)
				}
			},
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Store.Driver).
			Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// runAutoMigrate applies pending migrations before the pool is opened.
func runAutoMigrate(databaseURL string, migrators MigratorFactory) error {
	slog.Info("running database migrations")
	migrator, err := migrators(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	slog.Info("database migrations complete")
	return nil
}

// newNotifier builds the notifier selected by cfg.Notify.Driver.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Notify.Driver {
	case config.NotifyLog:
		return notify.NewLogNotifier(logger), nil
	case config.NotifySMTP:
		s := cfg.Notify.SMTP
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:        s.Host,
			Port:        s.Port,
			Username:    s.Username,
			Password:    s.Password,
			From:        s.From,
			ImplicitTLS: s.ImplicitTLS,
		}, notify.DefaultMessages())
		if err != nil {
			return nil, err //nolint:wrapcheck // NewSMTPNotifier returns coded errors
		}
		return n, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Notify.Driver).
			Errorf("unknown notify driver %q", cfg.Notify.Driver)
	}
}
