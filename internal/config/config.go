/**
 * @description
 * This package handles the configuration management for the mealplan-service.
 * It uses the Viper library to read settings from environment variables or an
 * optional .env file in the given path.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the mealplan-service.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RunMigrations applies the embedded schema migrations at startup.
	RunMigrations bool `mapstructure:"RUN_MIGRATIONS"`

	ClerkJWKSURL            string `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer             string `mapstructure:"CLERK_ISSUER"`
	ClerkAudience           string `mapstructure:"CLERK_AUDIENCE"`
	AllowHeaderAuthFallback bool   `mapstructure:"ALLOW_HEADER_AUTH_FALLBACK"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePriceWeekly   string `mapstructure:"STRIPE_PRICE_WEEKLY"`
	StripePriceMonthly  string `mapstructure:"STRIPE_PRICE_MONTHLY"`
	StripePriceYearly   string `mapstructure:"STRIPE_PRICE_YEARLY"`
	PublicBaseURL       string `mapstructure:"PUBLIC_BASE_URL"`

	OpenRouterAPIKey  string `mapstructure:"OPEN_ROUTER_API_KEY"`
	OpenRouterBaseURL string `mapstructure:"OPEN_ROUTER_BASE_URL"`
	MealPlanModel     string `mapstructure:"MEALPLAN_MODEL"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	MealPlanRateLimitPerMinute int    `mapstructure:"MEALPLAN_RATE_LIMIT_PER_MINUTE"`

	SubscriptionSweepSchedule string `mapstructure:"SUBSCRIPTION_SWEEP_SCHEDULE"`
}

var envKeys = []string{
	"SERVER_PORT",
	"PORT",
	"DATABASE_URL",
	"RUN_MIGRATIONS",
	"CLERK_JWKS_URL",
	"CLERK_ISSUER",
	"CLERK_AUDIENCE",
	"ALLOW_HEADER_AUTH_FALLBACK",
	"STRIPE_SECRET_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"STRIPE_PRICE_WEEKLY",
	"STRIPE_PRICE_MONTHLY",
	"STRIPE_PRICE_YEARLY",
	"PUBLIC_BASE_URL",
	"NEXT_PUBLIC_BASE_URL",
	"OPEN_ROUTER_API_KEY",
	"OPEN_ROUTER_BASE_URL",
	"MEALPLAN_MODEL",
	"RABBITMQ_URL",
	"REDIS_URL",
	"REDIS_RATE_LIMIT_PREFIX",
	"MEALPLAN_RATE_LIMIT_PER_MINUTE",
	"SUBSCRIPTION_SWEEP_SCHEDULE",
}

// LoadConfig reads configuration from environment variables and an optional
// .env file found in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RUN_MIGRATIONS", true)
	viper.SetDefault("OPEN_ROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	viper.SetDefault("MEALPLAN_MODEL", "mistralai/mistral-7b-instruct:free")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "mealplan:rate_limit")
	viper.SetDefault("MEALPLAN_RATE_LIMIT_PER_MINUTE", 6)
	viper.SetDefault("SUBSCRIPTION_SWEEP_SCHEDULE", "@every 6h")

	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	// Hosting platforms inject PORT; SERVER_PORT wins when both are set.
	if port := strings.TrimSpace(viper.GetString("PORT")); port != "" {
		if _, explicit := os.LookupEnv("SERVER_PORT"); !explicit && !viper.InConfig("SERVER_PORT") {
			config.ServerPort = port
		}
	}
	// The frontend historically configured the redirect base as NEXT_PUBLIC_BASE_URL.
	if strings.TrimSpace(config.PublicBaseURL) == "" {
		config.PublicBaseURL = strings.TrimSpace(viper.GetString("NEXT_PUBLIC_BASE_URL"))
	}
	config.PublicBaseURL = strings.TrimRight(config.PublicBaseURL, "/")

	return config, nil
}
