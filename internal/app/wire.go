package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/muon-protocol/factgpt-examples/internal/blob/s3"
	"github.com/muon-protocol/factgpt-examples/internal/cache/redis"
	"github.com/muon-protocol/factgpt-examples/internal/config"
	"github.com/muon-protocol/factgpt-examples/internal/crypto"
	"github.com/muon-protocol/factgpt-examples/internal/domain"
	"github.com/muon-protocol/factgpt-examples/internal/oracle"
	"github.com/muon-protocol/factgpt-examples/internal/server/handler"
	"github.com/muon-protocol/factgpt-examples/internal/store/memory"
	"github.com/muon-protocol/factgpt-examples/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.QuestionStore
	Locks       domain.LockManager
	Cache       domain.QuestionCache // nil without Redis
	RateLimiter domain.RateLimiter   // nil without Redis
	Verifier    domain.OracleVerifier
	Attestor    *oracle.Attestor // nil unless devnet is enabled

	// Postgres is set only for the postgres backend; migrate mode needs it.
	Postgres *postgres.Client

	HealthChecks map[string]handler.HealthCheckFunc
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]handler.HealthCheckFunc),
	}
	mode := strings.ToLower(cfg.Mode)

	// --- Question store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		deps.Store = memory.NewQuestionStore()

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Postgres = pgClient
		deps.HealthChecks["postgres"] = pgClient.Ping

		// migrate mode applies migrations itself and reports them.
		if cfg.Postgres.RunMigrations && mode != "migrate" {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: applied migrations", slog.Any("files", applied))
			}
		}
		deps.Store = postgres.NewQuestionStore(pgClient.Pool())

	case "s3":
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.HealthChecks["s3"] = s3Client.Health
		deps.Store = s3blob.NewQuestionStore(s3Client, cfg.Store.Prefix)

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend)
	}

	// --- Redis: shared commit lock, read cache, rate limiter ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Cache = redis.NewQuestionCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.HealthChecks["redis"] = redisClient.Health
	} else {
		deps.Locks = memory.NewLockManager()
	}

	// --- Oracle ---
	deps.Verifier = oracle.NewMuonVerifier(domain.Identity(cfg.Oracle.Program), logger)

	if cfg.Devnet.Enabled {
		key, err := crypto.LoadGroupKey(crypto.KeySource{
			RawKey:           cfg.Devnet.AttestorKey,
			EncryptedKeyPath: cfg.Devnet.EncryptedKeyPath,
			Password:         cfg.Devnet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: devnet attestor: %w", err)
		}
		deps.Attestor = oracle.NewAttestor(key)
		pub := deps.Attestor.GroupPubKey()
		logger.WarnContext(ctx, "wire: devnet attestor enabled",
			slog.String("group_pub_key_x", pub.X.String()),
			slog.Int("parity", int(pub.Parity)),
		)
	}

	return deps, cleanup, nil
}
