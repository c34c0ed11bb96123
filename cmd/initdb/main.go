package main

import (
	"os"

	"labeling-service/internal/config"
	"labeling-service/internal/dataset"
	"labeling-service/internal/labels"
	"labeling-service/internal/models"

	"go.uber.org/zap"
)

// initdb creates the bills/labels schema and bulk loads the bill dataset
// into the configured relational backend. Run once before the server.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting database initialization...")

	cfg, err := config.LoadConfig("configs/config.yml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	os.MkdirAll("./data", 0755)

	loader := dataset.NewLoader(cfg.Dataset.Path, cfg.Dataset.URL, cfg.Dataset.KeyMode, logger)
	bills, err := loader.Load()
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	var upsert func(*models.Bill) error

	switch cfg.Database.Type {
	case "postgres":
		db, err := labels.NewPostgresDB(cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := labels.MigratePostgres(db, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}

		store := labels.NewPostgresStore(db, logger)
		upsert = store.UpsertBill

	case "sqlite":
		store, err := labels.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal("Failed to open database", zap.Error(err))
		}
		defer store.Close()

		upsert = store.UpsertBill

	default:
		logger.Fatal("initdb supports the sqlite and postgres backends only",
			zap.String("type", cfg.Database.Type))
	}

	loaded := 0
	for _, bill := range bills.Bills() {
		if err := upsert(bill); err != nil {
			logger.Fatal("Failed to load bill", zap.String("unique_number", bill.ID), zap.Error(err))
		}
		loaded++
		if loaded%10000 == 0 {
			logger.Info("Loading bills...", zap.Int("loaded", loaded))
		}
	}

	logger.Info("Database initialization complete. You can now run the server.",
		zap.Int("bills", loaded))
}
