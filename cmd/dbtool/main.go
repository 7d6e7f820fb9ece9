package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"nearest-store-service/internal/adapters/repositories"
	"nearest-store-service/internal/config"
	"nearest-store-service/internal/platform/db"
	"nearest-store-service/internal/platform/obs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// dbtool initializes the Postgres schema and seeds the curated store catalog.
func main() {
	envErr := godotenv.Load()

	log, err := obs.NewLogger(config.Get("LOG_LEVEL", "info"), config.Get("LOG_FORMAT", "console"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if envErr != nil {
		log.Info("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	sqlDB, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatal("open database failed", zap.Error(err))
	}
	defer sqlDB.Close()

	seedPath := config.Get("SEED_PATH", "")
	if err := initAndSeed(ctx, sqlDB, seedPath, log); err != nil {
		log.Fatal("dbtool failed", zap.Error(err))
	}
}

func initAndSeed(ctx context.Context, sqlDB *sql.DB, seedPath string, log *zap.Logger) error {
	log.Info("Initializing database schema...")
	if err := repositories.InitSchema(ctx, sqlDB); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Info("Schema ready.")

	source := seedPath
	if source == "" {
		source = "embedded"
	}
	log.Info("Seeding stores...", zap.String("source", source))
	n, err := repositories.SeedStores(ctx, sqlDB, seedPath)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	log.Info("Seeding complete.", zap.Int("stores", n))

	return nil
}
