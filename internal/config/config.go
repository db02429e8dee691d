// Package config loads application configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// Tenant directory.
	DirectoryBaseURL string
	DirectoryToken   string
	DirectoryTimeout time.Duration

	// Invoicing provider.
	ProviderBaseURL string
	ProviderAppID   string
	ProviderSecret  string
	ProviderTimeout time.Duration

	// Ledger (ERP) access.
	LedgerTimeout time.Duration

	// Public base URL of this service, used to build the callback URL
	// handed to the provider.
	CallbackBaseURL string

	// Sync engine.
	SyncInterval       time.Duration
	SyncPageSize       int
	JurisdictionSuffix string

	// Correlation cache.
	CorrelationBackend string
	CorrelationTTL     time.Duration
	SweepInterval      time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
}

// Load reads configuration from environment variables and an optional
// .env file. Every key has a usable default so the service boots
// locally out of the box.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_SERVICE", "fapiaolink")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "fapiaolink")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 25)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 300)

	v.SetDefault("DIRECTORY_BASE_URL", "http://localhost:8090")
	v.SetDefault("DIRECTORY_TOKEN", "")
	v.SetDefault("DIRECTORY_TIMEOUT", "5s")

	v.SetDefault("PROVIDER_BASE_URL", "https://invoice.example.com")
	v.SetDefault("PROVIDER_APP_ID", "")
	v.SetDefault("PROVIDER_SECRET", "")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")

	v.SetDefault("LEDGER_TIMEOUT", "10s")

	v.SetDefault("CALLBACK_BASE_URL", "http://localhost:8080")

	v.SetDefault("SYNC_INTERVAL", "5m")
	v.SetDefault("SYNC_PAGE_SIZE", 1000)
	v.SetDefault("SYNC_JURISDICTION_SUFFIX", "CN")

	v.SetDefault("CORRELATION_BACKEND", "memory")
	v.SetDefault("CORRELATION_TTL", "24h")
	v.SetDefault("CORRELATION_SWEEP_INTERVAL", "1h")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	return Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: v.GetString("ENVIRONMENT"),
		HTTPAddr:    v.GetString("HTTP_ADDR"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		DBType:            v.GetString("DATABASE_TYPE"),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),

		DirectoryBaseURL: strings.TrimRight(v.GetString("DIRECTORY_BASE_URL"), "/"),
		DirectoryToken:   strings.TrimSpace(v.GetString("DIRECTORY_TOKEN")),
		DirectoryTimeout: v.GetDuration("DIRECTORY_TIMEOUT"),

		ProviderBaseURL: strings.TrimRight(v.GetString("PROVIDER_BASE_URL"), "/"),
		ProviderAppID:   strings.TrimSpace(v.GetString("PROVIDER_APP_ID")),
		ProviderSecret:  strings.TrimSpace(v.GetString("PROVIDER_SECRET")),
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),

		LedgerTimeout: v.GetDuration("LEDGER_TIMEOUT"),

		CallbackBaseURL: strings.TrimRight(v.GetString("CALLBACK_BASE_URL"), "/"),

		SyncInterval:       v.GetDuration("SYNC_INTERVAL"),
		SyncPageSize:       v.GetInt("SYNC_PAGE_SIZE"),
		JurisdictionSuffix: v.GetString("SYNC_JURISDICTION_SUFFIX"),

		CorrelationBackend: strings.ToLower(strings.TrimSpace(v.GetString("CORRELATION_BACKEND"))),
		CorrelationTTL:     v.GetDuration("CORRELATION_TTL"),
		SweepInterval:      v.GetDuration("CORRELATION_SWEEP_INTERVAL"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
	}
}
