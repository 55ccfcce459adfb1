package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ownerportal/internal/roster"
	"ownerportal/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of rows per table to push per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum push attempts before a row is marked as errored (default: 3)
	MaxRetries int

	// RetryInterval is how often errored rows go back into rotation (default: 1h)
	RetryInterval time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:  10 * time.Second,
		BatchSize:     10,
		MaxRetries:    3,
		RetryInterval: 1 * time.Hour,
	}
}

// SyncProcessor pushes pending registry rows to the back-office sheet by
// polling the sync columns. It is the broker-less alternative to the AMQP
// consumer: deployments without RabbitMQ run this loop instead.
type SyncProcessor struct {
	storage     *storage.SQLiteRepository
	owners      roster.HomeownerWriter
	users       roster.PortalUserWriter
	deactivator roster.PortalUserDeactivator
	config      SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor pushing to the given sheet ports
func NewSyncProcessor(
	storage *storage.SQLiteRepository,
	owners roster.HomeownerWriter,
	users roster.PortalUserWriter,
	deactivator roster.PortalUserDeactivator,
	config SyncProcessorConfig,
) *SyncProcessor {
	return &SyncProcessor{
		storage:     storage,
		owners:      owners,
		users:       users,
		deactivator: deactivator,
		config:      config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Give rows that errored out before the last shutdown another chance
	if n, err := p.storage.RetryFailedSyncs(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to re-queue errored rows", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Re-queued errored rows from previous run", "count", n)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Signal stop
	close(p.stopCh)

	// Wait for completion or context cancellation
	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// runLoop is the main processing loop
func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	retryTicker := time.NewTicker(p.config.RetryInterval)
	defer retryTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-retryTicker.C:
			p.requeueErrored(ctx)
		}
	}
}

// processBatch pushes one batch of pending rows from both registry tables
func (p *SyncProcessor) processBatch(ctx context.Context) {
	pendingOwners, err := p.storage.GetPendingHomeowners(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending homeowners", "error", err)
		return
	}
	pendingUsers, err := p.storage.GetPendingPortalUsers(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending portal users", "error", err)
		return
	}

	if len(pendingOwners) == 0 && len(pendingUsers) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch",
		"homeowners", len(pendingOwners),
		"portal_users", len(pendingUsers))

	for _, row := range pendingOwners {
		if p.shouldStop(ctx) {
			return
		}

		if err := p.pushHomeowner(ctx, row); err != nil {
			p.handleFailure(ctx, "homeowner", row, err,
				p.storage.RecordHomeownerSyncFailure)
		} else if err := p.storage.MarkHomeownerSynced(ctx, row.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark homeowner synced",
				"homeowner_id", row.ID, "error", err)
		}
	}

	for _, row := range pendingUsers {
		if p.shouldStop(ctx) {
			return
		}

		if err := p.pushPortalUser(ctx, row); err != nil {
			p.handleFailure(ctx, "portal user", row, err,
				p.storage.RecordPortalUserSyncFailure)
		} else if err := p.storage.MarkPortalUserSynced(ctx, row.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark portal user synced",
				"portal_user_id", row.ID, "error", err)
		}
	}
}

// shouldStop checks for a stop signal between rows
func (p *SyncProcessor) shouldStop(ctx context.Context) bool {
	select {
	case <-p.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// pushHomeowner appends a registry homeowner to the back-office sheet
func (p *SyncProcessor) pushHomeowner(ctx context.Context, row storage.PendingSyncRow) error {
	h, err := p.storage.GetHomeowner(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("load homeowner %d: %w", row.ID, err)
	}

	if _, err := p.owners.AppendHomeowner(ctx, *h); err != nil {
		return fmt.Errorf("append homeowner to sheet: %w", err)
	}

	slog.InfoContext(ctx, "Homeowner pushed to sheet", "homeowner_id", row.ID)
	return nil
}

// pushPortalUser propagates a portal-user row. Version 1 rows are new and get
// appended; later versions mean the account was deactivated, the only
// mutation the push supports.
func (p *SyncProcessor) pushPortalUser(ctx context.Context, row storage.PendingSyncRow) error {
	u, err := p.storage.GetPortalUser(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("load portal user %d: %w", row.ID, err)
	}

	if row.Version > 1 {
		if p.deactivator == nil {
			slog.WarnContext(ctx, "No sheet deactivator configured, skipping deactivation",
				"portal_user_id", row.ID)
			return nil // Not an error - just skip
		}
		if err := p.deactivator.DeactivatePortalUser(ctx, u.ID); err != nil {
			return fmt.Errorf("deactivate portal user on sheet: %w", err)
		}

		slog.InfoContext(ctx, "Portal user deactivation pushed to sheet", "portal_user_id", row.ID)
		return nil
	}

	if _, err := p.users.AppendPortalUser(ctx, *u); err != nil {
		return fmt.Errorf("append portal user to sheet: %w", err)
	}

	slog.InfoContext(ctx, "Portal user pushed to sheet", "portal_user_id", row.ID)
	return nil
}

// handleFailure records a failed push attempt with retry logic
func (p *SyncProcessor) handleFailure(ctx context.Context, what string, row storage.PendingSyncRow,
	pushErr error, record func(context.Context, int64, int) error) {
	slog.WarnContext(ctx, "Sheet push failed",
		"row", what,
		"id", row.ID,
		"attempt", row.Attempts+1,
		"error", pushErr)

	if err := record(ctx, row.ID, p.config.MaxRetries); err != nil {
		slog.ErrorContext(ctx, "Failed to record sync failure",
			"row", what, "id", row.ID, "error", err)
		return
	}

	if row.Attempts+1 >= p.config.MaxRetries {
		slog.ErrorContext(ctx, "Row failed permanently after max retries",
			"row", what,
			"id", row.ID,
			"attempts", row.Attempts+1)
	}
}

// requeueErrored puts rows that exhausted their attempts back into rotation
func (p *SyncProcessor) requeueErrored(ctx context.Context) {
	if _, err := p.storage.RetryFailedSyncs(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to re-queue errored rows", "error", err)
	}
}

// Stats returns current registry sync state
func (p *SyncProcessor) Stats(ctx context.Context) (storage.SyncStats, error) {
	return p.storage.GetSyncStats(ctx)
}

// RetryFailed puts all errored rows back into rotation and returns how many
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailedSyncs(ctx)
}
