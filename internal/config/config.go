/**
 * @description
 * This package handles configuration management for the sync-service. It uses
 * the Viper library to read configuration from environment variables, with an
 * optional .env file for local development.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the sync-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	SyncJobsExchange string `mapstructure:"SYNC_JOBS_EXCHANGE"`
	SyncJobsQueue    string `mapstructure:"SYNC_JOBS_QUEUE"`
	SyncDelayQueue   string `mapstructure:"SYNC_DELAY_QUEUE"`

	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`
	WebhookSecret  string `mapstructure:"WEBHOOK_SECRET"`

	ProviderAPIBaseURL string `mapstructure:"PROVIDER_API_BASE_URL"`
	ProviderAPIKey     string `mapstructure:"PROVIDER_API_KEY"`

	// SyncSchedule is the cron expression for the periodic all-connections
	// sync sweep.
	SyncSchedule string `mapstructure:"SYNC_SCHEDULE"`
	// SyncWindowDays is how far back a regular sync fetches activity.
	SyncWindowDays int `mapstructure:"SYNC_WINDOW_DAYS"`

	// Empty-fetch retry policy for freshly linked accounts.
	FetchRetryMaxAttempts  int `mapstructure:"FETCH_RETRY_MAX_ATTEMPTS"`
	FetchRetryDelaySeconds int `mapstructure:"FETCH_RETRY_DELAY_SECONDS"`

	// SyncLockTTLSeconds bounds how long a crashed worker can hold an
	// account's sync lock.
	SyncLockTTLSeconds int `mapstructure:"SYNC_LOCK_TTL_SECONDS"`

	// WebhookToleranceSeconds is the replay window for webhook timestamps.
	WebhookToleranceSeconds int `mapstructure:"WEBHOOK_TOLERANCE_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("SYNC_JOBS_EXCHANGE", "sync_jobs")
	viper.SetDefault("SYNC_JOBS_QUEUE", "sync_service.jobs")
	viper.SetDefault("SYNC_DELAY_QUEUE", "sync_service.jobs.delay")
	viper.SetDefault("SYNC_SCHEDULE", "0 5 * * *") // At 05:00 every day.
	viper.SetDefault("SYNC_WINDOW_DAYS", 90)
	viper.SetDefault("FETCH_RETRY_MAX_ATTEMPTS", 3)
	viper.SetDefault("FETCH_RETRY_DELAY_SECONDS", 45)
	viper.SetDefault("SYNC_LOCK_TTL_SECONDS", 600)
	viper.SetDefault("WEBHOOK_TOLERANCE_SECONDS", 300)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SYNC_JOBS_EXCHANGE")
	_ = viper.BindEnv("SYNC_JOBS_QUEUE")
	_ = viper.BindEnv("SYNC_DELAY_QUEUE")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("WEBHOOK_SECRET")
	_ = viper.BindEnv("PROVIDER_API_BASE_URL")
	_ = viper.BindEnv("PROVIDER_API_KEY")
	_ = viper.BindEnv("SYNC_SCHEDULE")
	_ = viper.BindEnv("SYNC_WINDOW_DAYS")
	_ = viper.BindEnv("FETCH_RETRY_MAX_ATTEMPTS")
	_ = viper.BindEnv("FETCH_RETRY_DELAY_SECONDS")
	_ = viper.BindEnv("SYNC_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("WEBHOOK_TOLERANCE_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be configured")
	}
	if config.FetchRetryMaxAttempts < 0 {
		return Config{}, fmt.Errorf("FETCH_RETRY_MAX_ATTEMPTS must not be negative")
	}

	return config, nil
}
