// Package main is the entrypoint for the Brinecast API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/brinecast/brinecast/internal/bounce"
	"github.com/brinecast/brinecast/internal/cache"
	"github.com/brinecast/brinecast/internal/campaign"
	"github.com/brinecast/brinecast/internal/config"
	"github.com/brinecast/brinecast/internal/discount"
	"github.com/brinecast/brinecast/internal/engagement"
	"github.com/brinecast/brinecast/internal/handler"
	"github.com/brinecast/brinecast/internal/metrics"
	"github.com/brinecast/brinecast/internal/middleware"
	"github.com/brinecast/brinecast/internal/provider"
	"github.com/brinecast/brinecast/internal/repository"
	"github.com/brinecast/brinecast/internal/server"
	"github.com/brinecast/brinecast/internal/shortlink"
)

func main() {
	ctx := context.Background()

	// .env is a development convenience; production injects real env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
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

	gateway, err := provider.NewClient(provider.Config{
		BaseURL:    cfg.ProviderBaseURL,
		APIKey:     cfg.ProviderAPIKey,
		FromNumber: cfg.ProviderFromNumber,
		ProfileID:  cfg.ProviderProfileID,
	})
	if err != nil {
		logger.Error("failed to configure SMS gateway", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewInMemory()

	links := shortlink.NewService(repo, cacheClient, shortlink.Config{
		BaseURL:           cfg.BaseURL,
		CodeLength:        cfg.ShortCodeLength,
		ClickHistoryLimit: cfg.ClickHistoryLimit,
		UniqueIPLimit:     cfg.UniqueIPLimit,
	}, recorder, logger)

	discounts := discount.NewClient(cfg.DiscountServiceURL, cfg.DiscountAPIToken)

	campaigns := campaign.NewService(
		repo,
		cacheClient,
		links,
		gateway,
		discounts,
		campaign.Config{
			SendInterval:      cfg.SendInterval,
			DispatchBatchSize: cfg.DispatchBatchSize,
			DispatchLockTTL:   cfg.DispatchLockTTL,
		},
		recorder,
		logger,
	)

	bounces := bounce.NewManager(repo, cfg.SoftBounceLimit, logger)

	publisher := engagement.NewPublisher(cacheClient.Client(), logger, recorder)
	worker := engagement.NewWorker(cacheClient.Client(), repo, logger, engagement.NewConsumerID(), recorder)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("engagement worker stopped", "error", err)
		}
	}()

	// Campaigns interrupted by the previous process pick up where they
	// left off.
	if err := campaigns.ResumeInterrupted(ctx); err != nil {
		logger.Error("failed to resume interrupted campaigns", "error", err)
	}

	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	campaignHandler := handler.NewCampaignHandler(campaigns, logger)
	redirectHandler := handler.NewRedirectHandler(links, publisher, handler.RedirectConfig{
		FallbackURL: cfg.FallbackRedirectURL,
		CookieName:  cfg.AttributionCookieName,
		CookieTTL:   cfg.AttributionCookieTTL,
	}, logger)
	webhookHandler := handler.NewWebhookHandler(repo, bounces, recorder, logger)
	conversionHandler := handler.NewConversionHandler(links, repo, publisher, cfg.AttributionCookieName, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(repo, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	r := setupRouter(routerDeps{
		health:     healthHandler,
		campaigns:  campaignHandler,
		redirect:   redirectHandler,
		webhook:    webhookHandler,
		conversion: conversionHandler,
		apiKeys:    apiKeyHandler,
		metrics:    metricsHandler,
		repo:       repo,
		cache:      cacheClient,
		cfg:        cfg,
		logger:     logger,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// LIFO: HTTP stops first, then dispatchers drain, then the worker.
	srv.OnShutdown("engagement-worker", worker.Shutdown)
	srv.OnShutdown("campaign-dispatchers", campaigns.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
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

type routerDeps struct {
	health     *handler.HealthHandler
	campaigns  *handler.CampaignHandler
	redirect   *handler.RedirectHandler
	webhook    *handler.WebhookHandler
	conversion *handler.ConversionHandler
	apiKeys    *handler.APIKeyHandler
	metrics    *handler.MetricsHandler
	repo       *repository.Repository
	cache      *cache.Cache
	cfg        *config.Config
	logger     *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: deps.cfg.IsDevelopment(),
	}))
	r.Use(middleware.MaxBodySize(deps.cfg.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)

	authCfg := middleware.AuthConfig{
		Logger:     deps.logger,
		Repository: deps.repo,
		Cache:      deps.cache,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:          deps.logger,
		Cache:           deps.cache,
		APIEnabled:      deps.cfg.RateLimitAPIEnabled,
		APIRPM:          deps.cfg.RateLimitAPIRPM,
		APIBurst:        deps.cfg.RateLimitAPIBurst,
		RedirectEnabled: deps.cfg.RateLimitRedirectEnabled,
		RedirectRPS:     deps.cfg.RateLimitRedirectRPS,
		RedirectBurst:   deps.cfg.RateLimitRedirectBurst,
	}

	// API v1 routes (require authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))

		r.Route("/campaigns", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.campaigns.List)
			r.With(middleware.RequireRead()).Get("/audience-count", deps.campaigns.AudienceCount)
			r.With(middleware.RequireRead()).Get("/{id}", deps.campaigns.Get)
			r.With(middleware.RequireRead()).Get("/{id}/stats", deps.campaigns.Stats)
			r.With(middleware.RequireWrite()).Post("/", deps.campaigns.Create)
			r.With(middleware.RequireWrite()).Patch("/{id}", deps.campaigns.Update)
			r.With(middleware.RequireWrite()).Delete("/{id}", deps.campaigns.Delete)
			r.With(middleware.RequireWrite()).Post("/{id}/send", deps.campaigns.Send)
			r.With(middleware.RequireWrite()).Post("/{id}/pause", deps.campaigns.Pause)
			r.With(middleware.RequireWrite()).Post("/{id}/resume", deps.campaigns.Resume)
			r.With(middleware.RequireWrite()).Post("/{id}/cancel", deps.campaigns.Cancel)
			r.With(middleware.RequireWrite()).Post("/{id}/test", deps.campaigns.TestSend)
			r.With(middleware.RequireWrite()).Post("/{id}/stats/recalculate", deps.campaigns.RecalculateStats)
		})

		r.With(middleware.RequireWrite()).Post("/conversions", deps.conversion.Record)

		// API key management (requires admin scope for mutations)
		r.Route("/api-keys", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.apiKeys.List)
			r.With(middleware.RequireAdmin()).Post("/", deps.apiKeys.Create)
			r.With(middleware.RequireAdmin()).Delete("/{id}", deps.apiKeys.Revoke)
		})

		r.With(middleware.RequireAdmin()).Get("/metrics", deps.metrics.Metrics)
	})

	// Public redirect with IP-based rate limiting (no auth required)
	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/s/{code}", deps.redirect.Redirect)

	// Provider callbacks (no auth; always acknowledged)
	r.Post("/webhooks/{provider}", deps.webhook.Receive)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
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
