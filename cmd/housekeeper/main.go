// Command housekeeper exports verification requests past their retention
// horizon to S3. It runs once and exits; schedule it externally.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-verify-api/internal/application/housekeeping"
	"github.com/go-verify-api/internal/config"
	"github.com/go-verify-api/internal/infrastructure/dynamo"
	s3infra "github.com/go-verify-api/internal/infrastructure/s3"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("dynamodb client init failed", "err", err)
		os.Exit(1)
	}
	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		logger.Error("s3 client init failed", "err", err)
		os.Exit(1)
	}
	store := s3infra.NewStore(s3Client, cfg.S3ArchiveBucket)
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("archive bucket not available", "bucket", cfg.S3ArchiveBucket, "err", err)
		os.Exit(1)
	}

	svc := housekeeping.NewService(housekeeping.ServiceDeps{
		RequestRepo: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.VerificationRequests),
		Archive:     store,
	})
	report, err := svc.ArchiveExpired(ctx)
	if err != nil {
		logger.Error("housekeeping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("housekeeping finished", "archived", report.Archived, "location", report.Location)
}
