package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-verify-api/internal/config"
	"github.com/go-verify-api/internal/infrastructure/cipher"
	"github.com/go-verify-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-verify-api/internal/infrastructure/jwt"
	"github.com/go-verify-api/internal/infrastructure/ratelimit"
	transporthttp "github.com/go-verify-api/internal/transport/http"
	appmiddleware "github.com/go-verify-api/internal/transport/http/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.UsesDefaultEncryptionKey() {
		if cfg.IsProduction() {
			logger.Error("ENCRYPTION_KEY must be set in production")
			os.Exit(1)
		}
		logger.Warn("ENCRYPTION_KEY not set, using the built-in default key")
	}
	credCipher, err := cipher.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("cipher init failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("dynamodb client init failed", "err", err)
		os.Exit(1)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Operator JWT is optional; without keys the operator routes stay unmounted.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", "err", err)
	}

	deps := &transporthttp.Deps{
		ApplicationRepo:  dynamo.NewApplicationRepo(dynamoClient, cfg.DynamoTables.Applications),
		SubscriptionRepo: dynamo.NewSubscriptionRepo(dynamoClient, cfg.DynamoTables.ApplicationServices),
		VerificationRepo: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.VerificationRequests),
		IdentityLockRepo: dynamo.NewIdentityLockRepo(dynamoClient, cfg.DynamoTables.IdentityLocks),
		Cipher:           credCipher,
		JWTProvider:      jwtProvider,
		Limiter:          newLimiter(ctx, cfg, logger),
		Logger:           logger,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newLimiter prefers the shared Redis window when REDIS_ADDR is set.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) appmiddleware.Limiter {
	rl := cfg.RateLimit
	if rl.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(rl.RedisAddr, rl.RedisPassword, rl.RedisDB)
		if err == nil {
			logger.Info("rate limiting through redis", "addr", rl.RedisAddr, "max", rl.Max, "window", rl.Window.String())
			return ratelimit.NewRedisLimiter(client, rl.Max, rl.Window)
		}
		logger.Warn("redis limiter not available, falling back to in-process", "err", err)
	}
	return ratelimit.NewMemoryLimiter(ctx, rate.Limit(rl.RPS), rl.Burst)
}
