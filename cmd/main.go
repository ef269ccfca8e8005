package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/market-service/internal/api"
	"github.com/transfa/market-service/internal/app"
	"github.com/transfa/market-service/internal/config"
	"github.com/transfa/market-service/internal/security"
	"github.com/transfa/market-service/internal/store"
	"github.com/transfa/market-service/pkg/marketdata"
	"github.com/transfa/market-service/pkg/rabbitmq"
)

// maskURLForLog hides credentials in connection URLs before they are logged.
func maskURLForLog(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// repositories bundles the two stores and the function releasing them.
type repositories struct {
	users  store.UserRepository
	prices store.PriceRepository
	close  func()
}

func openRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (*repositories, error) {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.SQLitePath)
		return &repositories{users: db, prices: db, close: func() { db.Close() }}, nil
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	if err := store.EnsurePostgresSchema(ctx, dbpool); err != nil {
		dbpool.Close()
		return nil, err
	}
	logger.Info("database connection established", "url", maskURLForLog(cfg.DatabaseURL))

	return &repositories{
		users:  store.NewPostgresUserRepository(dbpool),
		prices: store.NewPostgresPriceRepository(dbpool),
		close:  dbpool.Close,
	}, nil
}

// connectRedis returns nil when Redis is not configured or unreachable; login
// throttling is then disabled.
func connectRedis(cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; login rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; login rate limiting disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; login rate limiting disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "url", maskURLForLog(cfg.RedisURL))
	return client
}

func connectPublisher(cfg config.Config, logger *slog.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; events will be logged only")
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("failed to connect to rabbitmq; events will be logged only", "url", maskURLForLog(cfg.RabbitMQURL), "error", err)
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	logger.Info("rabbitmq producer connected", "url", maskURLForLog(cfg.RabbitMQURL))
	return producer
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("unable to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer repos.close()

	var limiter api.RateLimiter
	if redisClient := connectRedis(cfg, logger); redisClient != nil {
		defer redisClient.Close()
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix+":credentials", cfg.LoginRateLimitPerMinute, time.Minute)
	}

	publisher := connectPublisher(cfg, logger)
	defer publisher.Close()

	tokens, err := security.NewTokenService(cfg.JWTSecret, cfg.TokenTTL())
	if err != nil {
		logger.Error("unable to create token service", "error", err)
		os.Exit(1)
	}
	hasher := security.NewPasswordHasher(cfg.BcryptCost)

	provider := marketdata.NewClient(cfg.MarketDataBaseURL, cfg.MarketDataCookieURL, cfg.MarketDataTimeout())

	authService, err := app.NewAuthService(repos.users, hasher, tokens, publisher, logger)
	if err != nil {
		logger.Error("unable to create auth service", "error", err)
		os.Exit(1)
	}
	priceService := app.NewPriceService(repos.prices, provider, publisher, logger, app.PriceServiceConfig{
		MaxAge:       cfg.PriceMaxAge(),
		FetchTimeout: cfg.MarketDataTimeout(),
	})
	signalEngine := app.NewSignalEngine(priceService, cfg.SignalLookbackMonths)

	scheduler := app.NewWatchlistScheduler(priceService, cfg.Watchlist(), cfg.WatchlistRefreshSchedule, cfg.MarketDataTimeout(), logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("unable to start watchlist scheduler", "error", err)
		os.Exit(1)
	}

	handlers := api.NewHandlers(authService, priceService, signalEngine, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		Tokens:         tokens,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server gracefully stopped")
}
