/**
 * @description
 * This is the main entry point for the mealplan-service.
 * It wires configuration, the profile store, the billing and inference clients,
 * the optional event bus and rate limiter, the background sweep and the HTTP router.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/redis/go-redis/v9: Shared rate limiting across instances.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mealplanner/mealplan-service/internal/api"
	"github.com/mealplanner/mealplan-service/internal/app"
	"github.com/mealplanner/mealplan-service/internal/config"
	"github.com/mealplanner/mealplan-service/internal/plans"
	"github.com/mealplanner/mealplan-service/internal/store"
	"github.com/mealplanner/mealplan-service/pkg/billing"
	"github.com/mealplanner/mealplan-service/pkg/inference"
	"github.com/mealplanner/mealplan-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool usable behind PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if cfg.RunMigrations {
		if err := store.Migrate(ctx, dbpool); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	repository := store.NewRepository(dbpool)

	billingClient := billing.NewClient(cfg.StripeSecretKey)
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		logger.Warn("STRIPE_SECRET_KEY not set; checkout and plan management are disabled")
	}
	verifier := billing.NewWebhookVerifier(cfg.StripeWebhookSecret)
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; all webhooks will be rejected")
	}

	catalog := plans.NewCatalog(plans.PriceIDs{
		Week:  cfg.StripePriceWeekly,
		Month: cfg.StripePriceMonthly,
		Year:  cfg.StripePriceYearly,
	})

	var completer inference.Completer
	inferenceClient, err := inference.NewClient(inference.Config{
		APIKey:      cfg.OpenRouterAPIKey,
		BaseURL:     cfg.OpenRouterBaseURL,
		Model:       cfg.MealPlanModel,
		Temperature: inference.DefaultTemperature,
		MaxTokens:   inference.DefaultMaxTokens,
	})
	if err != nil {
		logger.Warn("meal plan generation disabled", "error", err)
	} else {
		completer = inferenceClient
	}

	var publisher app.EventPublisher
	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("failed to connect to RabbitMQ; subscription events will not be published", "error", err)
		} else {
			defer producer.Close()
			publisher = producer
			logger.Info("RabbitMQ producer connected")
		}
	}

	var limiter app.RateLimiter = app.NewLocalRateLimiter(cfg.MealPlanRateLimitPerMinute)
	if cfg.MealPlanRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; using in-process rate limiting", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; using in-process rate limiting", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.MealPlanRateLimitPerMinute, logger)
				logger.Info("redis connected")
			}
		}
	}

	profileService := app.NewService(repository, billingClient, catalog, publisher, logger)
	checkoutService := app.NewCheckoutService(billingClient, catalog, cfg.PublicBaseURL, logger)
	mealPlanService := app.NewMealPlanService(completer, limiter, logger)
	reconciler := app.NewReconciler(repository, publisher, logger)

	scheduler := app.NewScheduler(app.NewJobs(repository, billingClient, publisher, logger), logger, cfg.SubscriptionSweepSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	metrics := api.NewMetrics()
	handler := api.NewHandler(profileService, checkoutService, mealPlanService, catalog, metrics, logger)
	webhookHandler := api.NewWebhookHandler(verifier, reconciler, metrics, logger)

	var origins []string
	if cfg.PublicBaseURL != "" {
		origins = []string{cfg.PublicBaseURL}
	}
	router := api.NewRouter(handler, webhookHandler, metrics, api.RouterConfig{
		Auth: api.AuthConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			AllowHeaderFallback: cfg.AllowHeaderAuthFallback,
		},
		AllowedOrigins: origins,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
