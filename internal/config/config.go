/**
 * @description
 * This package handles configuration management for the market-service. It uses
 * Viper to read settings from environment variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration management.
 */

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

const minJWTSecretLength = 32

// Config holds all the configuration variables for the market-service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	StoreDriver              string `mapstructure:"STORE_DRIVER"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	SQLitePath               string `mapstructure:"SQLITE_PATH"`
	JWTSecret                string `mapstructure:"JWT_SECRET"`
	TokenTTLMinutes          int    `mapstructure:"TOKEN_TTL_MINUTES"`
	BcryptCost               int    `mapstructure:"BCRYPT_COST"`
	MarketDataBaseURL        string `mapstructure:"MARKETDATA_BASE_URL"`
	MarketDataCookieURL      string `mapstructure:"MARKETDATA_COOKIE_URL"`
	MarketDataTimeoutSeconds int    `mapstructure:"MARKETDATA_TIMEOUT_SECONDS"`
	PriceMaxAgeSeconds       int    `mapstructure:"PRICE_MAX_AGE_SECONDS"`
	SignalLookbackMonths     int    `mapstructure:"SIGNAL_LOOKBACK_MONTHS"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	LoginRateLimitPerMinute  int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	WatchlistSymbols         string `mapstructure:"WATCHLIST_SYMBOLS"`
	WatchlistRefreshSchedule string `mapstructure:"WATCHLIST_REFRESH_SCHEDULE"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel                 string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from environment variables, falling back to
// an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("SQLITE_PATH", "data/market.db")
	viper.SetDefault("TOKEN_TTL_MINUTES", 120)
	viper.SetDefault("BCRYPT_COST", 12)
	viper.SetDefault("MARKETDATA_BASE_URL", "https://query2.finance.yahoo.com")
	viper.SetDefault("MARKETDATA_COOKIE_URL", "https://fc.yahoo.com")
	viper.SetDefault("MARKETDATA_TIMEOUT_SECONDS", 10)
	viper.SetDefault("PRICE_MAX_AGE_SECONDS", 15)
	viper.SetDefault("SIGNAL_LOOKBACK_MONTHS", 12)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "market:rate_limit")
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("WATCHLIST_REFRESH_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind explicitly so Unmarshal sees env-only keys.
	for _, key := range []string{
		"SERVER_PORT", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
		"JWT_SECRET", "TOKEN_TTL_MINUTES", "BCRYPT_COST",
		"MARKETDATA_BASE_URL", "MARKETDATA_COOKIE_URL", "MARKETDATA_TIMEOUT_SECONDS",
		"PRICE_MAX_AGE_SECONDS", "SIGNAL_LOOKBACK_MONTHS",
		"REDIS_URL", "REDIS_RATE_LIMIT_PREFIX", "LOGIN_RATE_LIMIT_PER_MINUTE",
		"RABBITMQ_URL", "WATCHLIST_SYMBOLS", "WATCHLIST_REFRESH_SCHEDULE",
		"CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// Platform-provided PORT (Railway/Render) wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "market:rate_limit"
	}

	if config.TokenTTLMinutes <= 0 {
		config.TokenTTLMinutes = 120
	}
	if config.MarketDataTimeoutSeconds <= 0 {
		config.MarketDataTimeoutSeconds = 10
	}
	if config.PriceMaxAgeSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative price max age; disabling cache reads\" value=%d", config.PriceMaxAgeSeconds)
		config.PriceMaxAgeSeconds = 0
	}
	if config.SignalLookbackMonths <= 0 {
		config.SignalLookbackMonths = 12
	}
	if config.LoginRateLimitPerMinute <= 0 {
		config.LoginRateLimitPerMinute = 10
	}

	return
}

// Validate reports configuration that would make the service unusable.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

// TokenTTL is the validity window of issued session tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// MarketDataTimeout bounds every provider call.
func (c Config) MarketDataTimeout() time.Duration {
	return time.Duration(c.MarketDataTimeoutSeconds) * time.Second
}

// PriceMaxAge is how long a stored latest price may be served without re-fetching.
func (c Config) PriceMaxAge() time.Duration {
	return time.Duration(c.PriceMaxAgeSeconds) * time.Second
}

// Watchlist returns the configured watchlist symbols, trimmed, without blanks or duplicates.
func (c Config) Watchlist() []string {
	return splitList(c.WatchlistSymbols)
}

// AllowedOrigins returns the configured CORS origins.
func (c Config) AllowedOrigins() []string {
	origins := splitList(c.CORSAllowedOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func splitList(raw string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
