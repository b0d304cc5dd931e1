package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/riskibarqy/learnhub-onboarding/external/jobqueue"
	"github.com/riskibarqy/learnhub-onboarding/external/learnapi"
	"github.com/riskibarqy/learnhub-onboarding/internal/config"
	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/media"
	cacherepo "github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/learnhub-onboarding/internal/interfaces/httpapi"
	"github.com/riskibarqy/learnhub-onboarding/internal/observability"
	basecache "github.com/riskibarqy/learnhub-onboarding/internal/platform/cache"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/resilience"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const optionCachePrefix = "learnhub:onboarding:options"

// Server is the assembled HTTP service plus the background work it owns.
type Server struct {
	HTTP *http.Server

	storage *storage
	redis   *redis.Client
	flusher *cron.Cron
	logger  *logging.Logger
}

func NewHTTPServer(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close(context.Background())
		}
	}()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.storage = store

	var backend basecache.Backend
	if cfg.RedisEnabled {
		client, err := cacherepo.NewRedisClient(ctx, cacherepo.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		s.redis = client
		backend = cacherepo.NewRedisBackend(client)
		logger.Info("redis cache enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	}

	profiles := store.profiles
	if cfg.CacheEnabled {
		profileCache := basecache.NewStore[cacherepo.CachedProfile](cfg.CacheTTL,
			basecache.WithLogger[cacherepo.CachedProfile](logger),
		)
		profiles = cacherepo.NewProfileRepository(profiles, profileCache)
	}

	var (
		metrics  usecase.Metrics
		exporter httpapi.MetricsExporter
	)
	if cfg.MetricsEnabled {
		prom := observability.NewPrometheusMetrics()
		metrics, exporter = prom, prom
	}

	learnClient := learnapi.NewClient(learnapi.ClientConfig{
		BaseURL:        cfg.LearnAPIBaseURL,
		ServiceKey:     cfg.LearnAPIServiceKey,
		Timeout:        cfg.LearnAPITimeout,
		UploadTimeout:  cfg.LearnAPIUploadTimeout,
		MaxRetries:     cfg.LearnAPIMaxRetries,
		RateLimit:      cfg.LearnAPIRateLimit,
		RateBurst:      cfg.LearnAPIRateBurst,
		MaxUploadBytes: cfg.MediaMaxBytes,
		TokenCacheTTL:  cfg.LearnAPITokenCacheTTL,
		Logger:         logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.LearnAPICircuitEnabled,
			FailureThreshold: cfg.LearnAPICircuitFailureCount,
			OpenTimeout:      cfg.LearnAPICircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.LearnAPICircuitHalfOpenMaxReq,
		},
	})

	queue := usecase.NewNoopJobQueue()
	if cfg.QStashEnabled {
		publisher, err := jobqueue.NewPublisher(jobqueue.Config{
			BaseURL:          cfg.QStashBaseURL,
			Token:            cfg.QStashToken,
			TargetBaseURL:    cfg.QStashTargetBaseURL,
			Retries:          cfg.QStashRetries,
			InternalJobToken: cfg.InternalJobToken,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.QStashCircuitEnabled,
				FailureThreshold: cfg.QStashCircuitFailureCount,
				OpenTimeout:      cfg.QStashCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.QStashCircuitHalfOpenMaxReq,
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("build job publisher: %w", err)
		}
		queue = publisher
	}

	outbox := usecase.NewSyncOutbox(store.outbox, learnClient, queue, usecase.SyncOutboxConfig{
		Backoff: resilience.BackoffConfig{
			Base:        cfg.OutboxBackoffBase,
			Max:         cfg.OutboxBackoffMax,
			MaxAttempts: cfg.OutboxMaxAttempts,
		},
		Workers:     cfg.OutboxWorkers,
		BatchSize:   cfg.OutboxBatchSize,
		IsRetryable: learnapi.IsTransient,
	}, metrics, logger)
	if cfg.OutboxFlushSchedule != "" {
		flusher, err := outbox.StartPeriodicFlush(context.WithoutCancel(ctx), cfg.OutboxFlushSchedule)
		if err != nil {
			return nil, err
		}
		s.flusher = flusher
	}

	files, err := media.NewFileStore(cfg.MediaDir, cfg.MediaMaxBytes)
	if err != nil {
		return nil, err
	}

	optionOpts := []basecache.Option[[]onboarding.Option]{basecache.WithLogger[[]onboarding.Option](logger)}
	if backend != nil {
		optionOpts = append(optionOpts, basecache.WithBackend[[]onboarding.Option](backend, optionCachePrefix))
	}
	optionLoader := usecase.NewOptionLoader(
		learnClient,
		basecache.NewStore[[]onboarding.Option](cfg.CacheTTL, optionOpts...),
		usecase.OptionLoaderConfig{
			PageSize: cfg.OptionPageSize,
			CacheTTL: cfg.CacheTTL,
			Timeout:  cfg.LearnAPITimeout,
		},
		metrics,
		logger,
	)

	onboardingSvc := usecase.NewOnboardingService(
		store.sessions,
		profiles,
		learnClient.ForUser,
		optionLoader,
		outbox,
		files,
		usecase.OnboardingServiceConfig{
			SyncTimeout:   cfg.OnboardingSyncTimeout,
			UploadTimeout: cfg.OnboardingUploadTimeout,
		},
		metrics,
		logger,
	)

	handler := httpapi.NewHandler(onboardingSvc, outbox, logger, httpapi.WithMaxUploadBytes(cfg.MediaMaxBytes))
	router := httpapi.NewRouter(
		handler,
		learnClient,
		logger,
		exporter,
		cfg.SwaggerEnabled,
		cfg.CORSAllowedOrigins,
		cfg.InternalJobToken,
	)

	s.HTTP = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("onboarding service assembled",
		"storage", cfg.StorageBackend,
		"cache_enabled", cfg.CacheEnabled,
		"redis_enabled", cfg.RedisEnabled,
		"qstash_enabled", cfg.QStashEnabled,
		"metrics_enabled", cfg.MetricsEnabled,
	)

	ok = true
	return s, nil
}

// Close stops the flush scheduler and releases storage and cache clients.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.flusher != nil {
		select {
		case <-s.flusher.Stop().Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait outbox flusher: %w", ctx.Err()))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.storage != nil {
		if err := s.storage.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
