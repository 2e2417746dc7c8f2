package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/events"
	"github.com/vidtube/backend/internal/handlers"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/relations"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
)

// rateLimitTTL is how long an idle client IP keeps its bucket.
const rateLimitTTL = 10 * time.Minute

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases the broker and Redis connections.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	var closers []func() error
	cleanup := func(context.Context) error {
		var errs []error
		for _, closeFn := range closers {
			errs = append(errs, closeFn())
		}
		return errors.Join(errs...)
	}

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure tokens: %w", err)
	}

	accounts := repositories.NewPostgresAccountRepository(pool)
	hasher := auth.NewBcryptHasher(auth.DefaultHashCost)
	relationRepo := repositories.NewPostgresRelationRepository(pool)

	var publisher events.Publisher = events.NopPublisher{}
	if url := strings.TrimSpace(cfg.Broker.URL); url != "" {
		rabbit, err := events.NewRabbitPublisher(url, cfg.Broker.Exchange)
		if err != nil {
			return handlers.Dependencies{}, nil, err
		}
		publisher = rabbit
		closers = append(closers, func() error {
			rabbit.Close()
			return nil
		})
		logger.Info("publishing domain events", "exchange", cfg.Broker.Exchange)
	}

	limiter, err := newRateLimiter(cfg.RateLimit, logger)
	if err != nil {
		_ = cleanup(ctx)
		return handlers.Dependencies{}, nil, err
	}
	if closer, ok := limiter.(interface{ Close() error }); ok {
		closers = append(closers, closer.Close)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := handlers.Dependencies{
		Logger:   logger,
		Accounts: accounts,
		Sessions: auth.NewManager(accounts, hasher, codec),
		Hasher:   hasher,
		Authenticator: &middleware.Authenticator{
			Tokens:     codec,
			Accounts:   accounts,
			Timeout:    cfg.Server.AuthTimeout,
			WithDetail: !cfg.Production(),
		},
		Relations: relations.NewEngine(relationRepo, relations.Options{
			MaxRetries: cfg.Toggle.MaxRetries,
			Publisher:  publisher,
			Registerer: registry,
		}),
		Queries:        relationRepo,
		Tweets:         repositories.NewPostgresTweetRepository(pool),
		Comments:       repositories.NewPostgresCommentRepository(pool),
		Playlists:      repositories.NewPostgresPlaylistRepository(pool),
		Videos:         repositories.NewPostgresVideoRepository(pool),
		Database:       pool,
		RateLimiter:    limiter,
		RegisterLimit:  cfg.RateLimit.RegisterRequests,
		RegisterWindow: cfg.RateLimit.RegisterWindow,
		Registry:       registry,
		Production:     cfg.Production(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	if strings.TrimSpace(cfg.ObjectStore.Bucket) == "" {
		logger.Warn("object storage not configured, uploads are disabled")
		return deps, cleanup, nil
	}

	store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error("object storage unavailable, uploads are disabled", logging.Err(err))
		return deps, cleanup, nil
	}
	deps.Storage = store

	return deps, cleanup, nil
}

// newRateLimiter returns the Redis-backed limiter when a Redis URL is configured and the
// in-process one otherwise.
func newRateLimiter(cfg config.RateLimit, logger *slog.Logger) (middleware.RateLimiter, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return middleware.NewIPRateLimiter(cfg.Requests, cfg.Window, cfg.Burst, rateLimitTTL), nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info("sharing rate limits through redis", "addr", opts.Addr)
	return &redisLimiter{
		RedisRateLimiter: middleware.NewRedisRateLimiter(client, cfg.Requests, cfg.Window, cfg.Burst, logger),
		client:           client,
	}, nil
}

type redisLimiter struct {
	*middleware.RedisRateLimiter
	client *redis.Client
}

func (l *redisLimiter) Close() error {
	return l.client.Close()
}
