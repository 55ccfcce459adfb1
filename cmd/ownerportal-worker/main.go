package main

import (
	"context"
	"os"
	"time"

	"ownerportal/internal/amqp"
	"ownerportal/internal/cli"
	"ownerportal/internal/roster/google"
	"ownerportal/internal/services"
	"ownerportal/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger()

	logger.Info("Starting ownerportal-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// The worker owns the write-behind pipeline, so it always runs on the
	// local registry store
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	// Initialize Google Sheets client for sync operations (optional)
	var sheetsClient *google.Client
	if cfg.GoogleSpreadsheetID != "" {
		var err error
		sheetsClient, err = google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// Initialize AMQP client; without a reachable broker the worker polls the
	// sync columns instead
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, falling back to poll mode", "error", err)
		amqpClient = nil
	}
	if amqpClient != nil {
		defer amqpClient.Close()
	}

	// Snapshot capture works off the local registry, no sheet needed
	var snapshotService *services.SnapshotService
	if cfg.SnapshotInterval > 0 {
		snapshotService = services.NewSnapshotService(sqliteRepo, sqliteRepo, sqliteRepo, cfg.SnapshotInterval)
	}

	var syncProcessor *services.SyncProcessor

	cleanup := func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()

		if snapshotService != nil {
			if err := snapshotService.Stop(stopCtx); err != nil {
				logger.Error("Failed to stop snapshot service", "error", err)
			}
		}
		if syncProcessor != nil {
			if err := syncProcessor.Stop(stopCtx); err != nil {
				logger.Error("Failed to stop sync processor", "error", err)
			}
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, cleanup)

	if sheetsClient != nil {
		syncWorker := worker.NewSyncWorker(sqliteRepo, sheetsClient, sheetsClient, sheetsClient, sheetsClient, cfg.SyncBatchSize)

		// Drain rows that accumulated while the worker was down. This must
		// happen before any import: an import overwrites local rows with the
		// sheet's copy.
		logger.Info("Performing startup sync check...")
		if err := syncWorker.StartupSyncCheck(ctx); err != nil {
			logger.Error("Failed startup sync check", "error", err)
			// Don't exit - continue with normal operation
		}

		importPolicy, err := services.GetImportPolicy(cfg.RosterImportPolicy, cfg.RosterImportMaxAge)
		if err != nil {
			logger.Error("Invalid roster import policy", "error", err)
			os.Exit(1)
		}

		logger.Info("Checking roster freshness...", "policy", cfg.RosterImportPolicy)
		if err := syncWorker.ImportRosterIfNeeded(ctx, importPolicy); err != nil {
			logger.Error("Failed roster import check", "error", err)
			// Don't exit - continue with normal operation
		}

		if amqpClient != nil {
			// AMQP mode: consume change messages, with a periodic sweep as a
			// backup for lost messages
			go func() {
				if err := amqpClient.ConsumeRosterSync(ctx, syncWorker.HandleRosterSyncMessage); err != nil {
					if err != context.Canceled {
						logger.Error("Message consumption stopped", "error", err)
					}
				}
			}()

			go func() {
				ticker := time.NewTicker(cfg.SyncInterval)
				defer ticker.Stop()

				importTicker := time.NewTicker(24 * time.Hour)
				defer importTicker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := syncWorker.ProcessPendingRows(ctx); err != nil {
							logger.Error("Periodic sync failed", "error", err)
						}
					case <-importTicker.C:
						if err := syncWorker.PeriodicRosterImport(ctx, importPolicy); err != nil {
							logger.Error("Periodic roster import failed", "error", err)
						}
					}
				}
			}()
			logger.Info("Consuming roster sync messages", "queue", cfg.AMQPQueue)
		} else {
			// Poll mode: sweep pending rows on an interval without a broker
			procCfg := services.DefaultSyncProcessorConfig()
			procCfg.PollInterval = cfg.SyncInterval
			procCfg.BatchSize = cfg.SyncBatchSize

			syncProcessor = services.NewSyncProcessor(sqliteRepo, sheetsClient, sheetsClient, sheetsClient, procCfg)
			if err := syncProcessor.Start(ctx); err != nil {
				logger.Error("Failed to start sync processor", "error", err)
				os.Exit(1)
			}

			go func() {
				importTicker := time.NewTicker(24 * time.Hour)
				defer importTicker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-importTicker.C:
						if err := syncWorker.PeriodicRosterImport(ctx, importPolicy); err != nil {
							logger.Error("Periodic roster import failed", "error", err)
						}
					}
				}
			}()
			logger.Info("Polling for pending registry rows", "interval", cfg.SyncInterval.String())
		}
	} else {
		logger.Info("Skipping sheet sync operations - no client available")
	}

	if snapshotService != nil {
		if err := snapshotService.Start(ctx); err != nil {
			logger.Error("Failed to start snapshot service", "error", err)
			os.Exit(1)
		}
		logger.Info("Adoption snapshot capture enabled", "interval", cfg.SnapshotInterval.String())
	}

	cli.WaitForShutdown(ctx, done)
}
