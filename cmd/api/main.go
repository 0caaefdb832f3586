// Package main is the entrypoint for the FamilyShare consent workflow API.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/familyshare/familyshare/internal/account"
	"github.com/familyshare/familyshare/internal/auth"
	"github.com/familyshare/familyshare/internal/cache"
	"github.com/familyshare/familyshare/internal/config"
	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/handler"
	"github.com/familyshare/familyshare/internal/ingest"
	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/middleware"
	"github.com/familyshare/familyshare/internal/pseudonym"
	"github.com/familyshare/familyshare/internal/repository"
	"github.com/familyshare/familyshare/internal/server"
	"github.com/familyshare/familyshare/internal/service"
	"github.com/familyshare/familyshare/internal/session"
	"github.com/familyshare/familyshare/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Storage
	var (
		st          store.Store
		repo        *repository.Repository
		storeHealth handler.HealthChecker
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		mem := store.NewMemory()
		st, storeHealth = mem, mem
		logger.Warn("using in-memory storage, data will not survive a restart")
	default:
		repo, err = repository.New(ctx, cfg.DatabaseURL, repository.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			logger.Error(
				"failed to connect to database",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
				slog.String("database_url", redactURL(cfg.DatabaseURL)),
			)
			os.Exit(1)
		}
		defer repo.Close()
		st, storeHealth = repo, repo
		logger.Info("connected to database")
	}

	recorder := metrics.NewInMemory()

	// Redis backs rate limits, the event stream and sign-out watermarks.
	var (
		cacheClient  *cache.Cache
		cacheHealth  handler.HealthChecker
		limiter      middleware.Limiter
		emitter      events.Emitter = events.Noop{}
		watermarks   session.WatermarkStore
		publisher    *events.Publisher
		auditor      *events.Auditor
		profileCache account.ProfileCache
		redisClient  *redis.Client
	)
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL, cache.Options{
			Namespace: cfg.RedisNamespace,
			PoolSize:  cfg.RedisPoolSize,
		})
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		defer cacheClient.Close()
		logger.Info("connected to Redis")

		redisClient = cacheClient.Client()
		cacheHealth, limiter, watermarks, profileCache = cacheClient, cacheClient, cacheClient, cacheClient
		publisher = events.NewPublisher(redisClient, logger, recorder)
		emitter = publisher
		if repo != nil {
			auditor = events.NewAuditor(redisClient, repo, logger, events.NewConsumerID(), recorder)
		}
	} else {
		watermarks = session.NewLocalWatermarks()
		logger.Warn("REDIS_URL not set, rate limiting and the event stream are disabled")
	}

	sessions := session.NewTracker(watermarks, redisClient, logger)

	// Account profiles
	var profiles service.Profiles
	if cfg.AccountAPIURL != "" {
		var src account.Source = account.NewClient(cfg.AccountAPIURL, cfg.AccountAPIKey, cfg.AccountAPITimeout, logger)
		if profileCache != nil {
			src = account.NewCached(src, profileCache, logger)
		}
		profiles = src
	}

	opts := []service.Option{
		service.WithMetrics(recorder),
		service.WithEvents(emitter),
	}
	if profiles != nil {
		opts = append(opts, service.WithProfiles(profiles))
	}

	pseudonyms, err := pseudonym.New(cfg.PseudonymSecret)
	if err != nil {
		logger.Error("failed to init pseudonym generator", "error", err)
		os.Exit(1)
	}

	svc := newServices(st, opts...)

	// MQTT location ingest
	var (
		sub          *ingest.Subscriber
		ingestHealth handler.HealthChecker
	)
	if cfg.MQTTBrokerURL != "" {
		sub = ingest.NewSubscriber(ingest.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTLocationTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		}, svc.circles, recorder, logger)
		if err := sub.Start(); err != nil {
			logger.Error(
				"failed to start location ingest",
				slog.String("error", sanitizeError(err, cfg.MQTTBrokerURL)),
				slog.String("broker_url", redactURL(cfg.MQTTBrokerURL)),
			)
			os.Exit(1)
		}
		ingestHealth = sub
	}

	r := setupRouter(routerDeps{
		cfg:        cfg,
		logger:     logger,
		services:   svc,
		pseudonyms: pseudonyms,
		sessions:   sessions,
		verifier:   auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		limiter:    limiter,
		metrics:    recorder,
		health: []handler.DependencyCheck{
			{Name: "store", Checker: storeHealth},
			{Name: "redis", Checker: cacheHealth},
			{Name: "mqtt", Checker: ingestHealth, Optional: true},
		},
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background components stop after the HTTP server; OnShutdown funcs run LIFO.
	if publisher != nil {
		srv.OnShutdown("event_publisher", publisher.Close)
	}

	stopListen, err := sessions.Listen(ctx, nil)
	if err != nil {
		logger.Error("failed to subscribe to identity events", "error", err)
		os.Exit(1)
	}
	srv.OnShutdown("identity_listener", func(context.Context) error {
		stopListen()
		return nil
	})

	if auditor != nil {
		srv.Go("auditor", auditor.Run)
	}

	if sub != nil {
		srv.OnShutdown("location_ingest", func(context.Context) error {
			sub.Stop()
			return nil
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"storage", cfg.StorageDriver,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
