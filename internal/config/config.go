// Package config loads the service configuration from environment
// variables (spec.md §6: "Configuration (environment, case sensitive)"),
// the way the teacher's cmd/api/main.go reads GRPC_PORT/REDIS_ADDR/... via
// os.Getenv, generalized with github.com/spf13/viper so every field has a
// single typed declaration instead of one getEnv call per field.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ChargerConfig holds the per-service-type tunables of the periodic
// charger loop (spec.md §4.8, §9 "rolling window").
type ChargerConfig struct {
	LoopSleep           time.Duration
	ErrorSleep          time.Duration
	MinChargingInterval time.Duration
	MinChargingAmount   string // decimal literal, parsed by the caller
	RollingWindow       time.Duration
}

// QueueConfig names one FIFO queue and its consumer's initial delay.
type QueueConfig struct {
	Name         string
	InitialDelay time.Duration
}

// Config is the fully resolved service configuration.
type Config struct {
	Environment string
	AppName     string
	LogLevel    string // debug|info|warn|error
	LogFormat   string // console|json

	HTTPPort int

	CORSOrigins []string

	DatabaseURL        string
	DatabaseMaxOpen    int
	DatabaseMaxIdle    int
	DatabaseConnMaxAge time.Duration

	RedisAddr     string
	RedisPassword string
	BalanceCacheTTL time.Duration

	AWSRegion   string
	SQSEndpoint string // override for local development / tests

	OneshotQueue QueueConfig
	LongrunQueue QueueConfig
	StorageQueue QueueConfig
	SQSClientErrorSleep time.Duration

	OneshotCharger ChargerConfig
	LongrunCharger ChargerConfig
	StorageCharger ChargerConfig
	LongrunExpirationInterval time.Duration

	EventPastWindow   time.Duration
	EventFutureWindow time.Duration

	ReservationBalanceBuffer string // not set by Load and not read anywhere
}

// Load reads configuration from the process environment, applying the same
// defaults the original Python service ships (app/config.py) where it
// names one, and otherwise a conservative production-shaped default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Best-effort .env support, matching the teacher's cmd/seeder/main.go
	// fallback to reading .env by hand when godotenv isn't wired up.
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // absent .env is not an error

	setDefaults(v)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		AppName:     v.GetString("APP_NAME"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),

		HTTPPort: v.GetInt("HTTP_PORT"),

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),

		DatabaseURL:        v.GetString("DATABASE_URL"),
		DatabaseMaxOpen:    v.GetInt("DB_POOL_SIZE"),
		DatabaseMaxIdle:    v.GetInt("DB_POOL_SIZE"),
		DatabaseConnMaxAge: v.GetDuration("DB_CONN_MAX_AGE"),

		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		BalanceCacheTTL: v.GetDuration("BALANCE_CACHE_TTL"),

		AWSRegion:   v.GetString("AWS_REGION"),
		SQSEndpoint: v.GetString("SQS_ENDPOINT"),

		OneshotQueue: QueueConfig{
			Name:         v.GetString("SQS_ONESHOT_QUEUE_NAME"),
			InitialDelay: v.GetDuration("SQS_ONESHOT_INITIAL_DELAY"),
		},
		LongrunQueue: QueueConfig{
			Name:         v.GetString("SQS_LONGRUN_QUEUE_NAME"),
			InitialDelay: v.GetDuration("SQS_LONGRUN_INITIAL_DELAY"),
		},
		StorageQueue: QueueConfig{
			Name:         v.GetString("SQS_STORAGE_QUEUE_NAME"),
			InitialDelay: v.GetDuration("SQS_STORAGE_INITIAL_DELAY"),
		},
		SQSClientErrorSleep: v.GetDuration("SQS_CLIENT_ERROR_SLEEP"),

		OneshotCharger: ChargerConfig{
			LoopSleep:           v.GetDuration("ONESHOT_LOOP_SLEEP"),
			ErrorSleep:          v.GetDuration("ONESHOT_ERROR_SLEEP"),
			MinChargingInterval: v.GetDuration("ONESHOT_MIN_CHARGING_INTERVAL"),
			MinChargingAmount:   v.GetString("ONESHOT_MIN_CHARGING_AMOUNT"),
			RollingWindow:       v.GetDuration("ONESHOT_ROLLING_WINDOW"),
		},
		LongrunCharger: ChargerConfig{
			LoopSleep:           v.GetDuration("LONGRUN_LOOP_SLEEP"),
			ErrorSleep:          v.GetDuration("LONGRUN_ERROR_SLEEP"),
			MinChargingInterval: v.GetDuration("LONGRUN_MIN_CHARGING_INTERVAL"),
			MinChargingAmount:   v.GetString("LONGRUN_MIN_CHARGING_AMOUNT"),
			RollingWindow:       v.GetDuration("LONGRUN_ROLLING_WINDOW"),
		},
		StorageCharger: ChargerConfig{
			LoopSleep:           v.GetDuration("STORAGE_LOOP_SLEEP"),
			ErrorSleep:          v.GetDuration("STORAGE_ERROR_SLEEP"),
			MinChargingInterval: v.GetDuration("STORAGE_MIN_CHARGING_INTERVAL"),
			MinChargingAmount:   v.GetString("STORAGE_MIN_CHARGING_AMOUNT"),
			RollingWindow:       v.GetDuration("STORAGE_ROLLING_WINDOW"),
		},
		LongrunExpirationInterval: v.GetDuration("LONGRUN_EXPIRATION_INTERVAL"),

		EventPastWindow:   v.GetDuration("EVENT_PAST_WINDOW"),
		EventFutureWindow: v.GetDuration("EVENT_FUTURE_WINDOW"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("APP_NAME", "accounting")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("HTTP_PORT", 8000)
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("DB_POOL_SIZE", 30)
	v.SetDefault("DB_CONN_MAX_AGE", 5*time.Minute)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("BALANCE_CACHE_TTL", 2*time.Second)

	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("SQS_ENDPOINT", "")

	v.SetDefault("SQS_ONESHOT_QUEUE_NAME", "short-jobs.fifo")
	v.SetDefault("SQS_LONGRUN_QUEUE_NAME", "long-jobs.fifo")
	v.SetDefault("SQS_STORAGE_QUEUE_NAME", "storage.fifo")
	v.SetDefault("SQS_ONESHOT_INITIAL_DELAY", 0)
	v.SetDefault("SQS_LONGRUN_INITIAL_DELAY", 0)
	v.SetDefault("SQS_STORAGE_INITIAL_DELAY", 0)
	v.SetDefault("SQS_CLIENT_ERROR_SLEEP", 10*time.Second)

	v.SetDefault("ONESHOT_LOOP_SLEEP", 5*time.Second)
	v.SetDefault("ONESHOT_ERROR_SLEEP", 30*time.Second)
	v.SetDefault("ONESHOT_MIN_CHARGING_INTERVAL", 0)
	v.SetDefault("ONESHOT_MIN_CHARGING_AMOUNT", "0")
	v.SetDefault("ONESHOT_ROLLING_WINDOW", 7*24*time.Hour)

	v.SetDefault("LONGRUN_LOOP_SLEEP", 30*time.Second)
	v.SetDefault("LONGRUN_ERROR_SLEEP", 60*time.Second)
	v.SetDefault("LONGRUN_MIN_CHARGING_INTERVAL", 5*time.Minute)
	v.SetDefault("LONGRUN_MIN_CHARGING_AMOUNT", "0.01")
	v.SetDefault("LONGRUN_ROLLING_WINDOW", 30*24*time.Hour)
	v.SetDefault("LONGRUN_EXPIRATION_INTERVAL", time.Hour)

	v.SetDefault("STORAGE_LOOP_SLEEP", time.Minute)
	v.SetDefault("STORAGE_ERROR_SLEEP", 2*time.Minute)
	v.SetDefault("STORAGE_MIN_CHARGING_INTERVAL", time.Hour)
	v.SetDefault("STORAGE_MIN_CHARGING_AMOUNT", "0.01")
	v.SetDefault("STORAGE_ROLLING_WINDOW", 90*24*time.Hour)

	v.SetDefault("EVENT_PAST_WINDOW", 35*24*time.Hour)
	v.SetDefault("EVENT_FUTURE_WINDOW", 5*time.Minute)
}
