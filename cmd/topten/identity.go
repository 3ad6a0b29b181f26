// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/config"
	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/identity/gotrue"
	"github.com/allev1985/topten-sub005/internal/identity/local"
	"github.com/allev1985/topten-sub005/internal/identity/local/postgres"
	"github.com/allev1985/topten-sub005/internal/identity/local/revocation"
	"github.com/allev1985/topten-sub005/internal/store"
)

// purger removes expired sessions and tokens.
type purger interface {
	PurgeExpired(ctx context.Context) (sessions, tokens int64, err error)
}

// identityStack is the provider wiring selected by configuration, plus the
// resources it owns.
type identityStack struct {
	opener     identity.Opener
	classifier identity.Classifier
	// purger is nil for providers that expire records themselves.
	purger  purger
	pool    Pool
	closers []func()
}

// ping reports whether the stack's backing database is reachable.
func (s *identityStack) ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// close releases owned resources in reverse order of acquisition.
func (s *identityStack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func buildIdentity(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*identityStack, error) {
	switch cfg.Identity.Provider {
	case config.ProviderGoTrue:
		client, err := gotrue.New(gotrue.Config{
			URL:     cfg.Identity.GoTrue.URL,
			APIKey:  cfg.Identity.GoTrue.APIKey,
			Timeout: cfg.Identity.GoTrue.Timeout,
		}, gotrue.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &identityStack{opener: client, classifier: gotrue.Classifier{}}, nil
	case config.ProviderLocal:
		return buildLocal(ctx, cfg, deps, logger)
	default:
		return nil, oops.Code("CONFIG_INVALID").With("field", "identity.provider").Errorf("unknown identity provider %q", cfg.Identity.Provider)
	}
}

func buildLocal(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (_ *identityStack, err error) {
	lc := cfg.Identity.Local
	stack := &identityStack{classifier: identity.CodeClassifier{}}
	defer func() {
		if err != nil {
			stack.close()
		}
	}()

	var localDeps local.Deps
	switch lc.Store {
	case config.BackendPostgres:
		pool, err := deps.PoolFactory(ctx, cfg.Database.URL, store.ConnectOptions{
			MaxRetries: cfg.Database.ConnectRetries,
			BaseDelay:  store.DefaultConnectOptions().BaseDelay,
			MaxDelay:   store.DefaultConnectOptions().MaxDelay,
			MaxConns:   cfg.Database.MaxConns,
			Logger:     logger,
		})
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		stack.pool = pool
		stack.closers = append(stack.closers, pool.Close)
		logger.Info("connected to database")

		if cfg.Database.AutoMigrate {
			if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
				return nil, err
			}
		}
		localDeps.Users = postgres.NewUserRepository(pool)
		localDeps.Sessions = postgres.NewSessionRepository(pool)
		localDeps.Tokens = postgres.NewTokenRepository(pool)
	default:
		localDeps.Users = local.NewMemoryUsers()
		localDeps.Sessions = local.NewMemorySessions()
		localDeps.Tokens = local.NewMemoryTokens()
	}

	switch lc.Revocation {
	case config.BackendRedis:
		client := deps.RedisFactory(cfg.Redis)
		stack.closers = append(stack.closers, func() {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("error closing redis client", "error", cerr)
			}
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		list, err := revocation.NewRedis(client)
		if err != nil {
			return nil, err
		}
		localDeps.Revocations = list
	default:
		localDeps.Revocations = revocation.NewMemory(time.Now)
	}

	mailer, err := local.NewFileMailer(lc.OutboxDir)
	if err != nil {
		return nil, err
	}
	localDeps.Mailer = mailer
	localDeps.Hasher = local.NewArgon2idHasher()

	provider, err := local.NewProvider(localDeps, local.Config{
		JWTSecret:                lc.JWTSecret,
		Issuer:                   lc.Issuer,
		AccessTokenTTL:           lc.AccessTokenTTL,
		RefreshTokenTTL:          lc.RefreshTokenTTL,
		ConfirmationTTL:          lc.ConfirmationTTL,
		RecoveryTTL:              lc.RecoveryTTL,
		RequireEmailConfirmation: lc.RequireEmailConfirmation,
	}, local.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	stack.opener = provider
	stack.purger = provider

	logger.Info("local identity provider ready",
		"store", lc.Store,
		"revocation", lc.Revocation,
		"outbox_dir", lc.OutboxDir,
	)
	return stack, nil
}

// autoMigrate applies pending migrations before the server accepts traffic.
func autoMigrate(url string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(url)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if cerr := migrator.Close(); cerr != nil {
			logger.Warn("error closing migrator", "error", cerr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

// runPurger removes expired records every interval until ctx is done.
func runPurger(ctx context.Context, p purger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, tokens, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge of expired records failed", "error", err)
				continue
			}
			if sessions+tokens > 0 {
				logger.Info("purged expired records", "sessions", sessions, "tokens", tokens)
			}
		}
	}
}
