package main

import (
	"context"
	"os"
	"time"

	"ownerportal/internal/cli"
	"ownerportal/internal/roster/google"
	"ownerportal/internal/worker"
)

// One-shot import of the back-office roster workbook into the local registry.
// Run it to seed a fresh database or to force a refresh outside the worker's
// import policy.
func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	sheetsClient, err := google.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(sqliteRepo, sheetsClient, sheetsClient, sheetsClient, sheetsClient, cfg.SyncBatchSize)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger.Info("Importing roster from back-office workbook", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	if err := syncWorker.ForceImportRoster(ctx); err != nil {
		logger.Error("Roster import failed", "error", err)
		os.Exit(1)
	}

	count, err := sqliteRepo.CountHomeowners(ctx)
	if err != nil {
		logger.Error("Failed to count imported rows", "error", err)
		os.Exit(1)
	}

	logger.Info("Roster import complete", "homeowners", count)
}
