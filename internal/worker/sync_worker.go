package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ownerportal/internal/amqp"
	"ownerportal/internal/core"
	"ownerportal/internal/roster"
	"ownerportal/internal/services"
	"ownerportal/internal/storage"
)

// Push failures move a row to the error state after this many attempts.
// The periodic sweep and the hourly requeue own retries from there.
const maxPushAttempts = 3

// RosterSource reads both roster collections from the back-office sheet.
type RosterSource interface {
	roster.HomeownerReader
	roster.PortalUserReader
}

// SyncWorker keeps the registry and the back-office sheet in step. It pushes
// local registrations out when sync messages arrive and pulls the sheet in
// when the import policy says the registry copy is stale.
type SyncWorker struct {
	storage     *storage.SQLiteRepository
	owners      roster.HomeownerWriter
	users       roster.PortalUserWriter
	deactivator roster.PortalUserDeactivator
	source      RosterSource
	batchSize   int
}

func NewSyncWorker(storage *storage.SQLiteRepository, owners roster.HomeownerWriter, users roster.PortalUserWriter, deactivator roster.PortalUserDeactivator, source RosterSource, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:     storage,
		owners:      owners,
		users:       users,
		deactivator: deactivator,
		source:      source,
		batchSize:   batchSize,
	}
}

// HandleRosterSyncMessage processes a single roster sync message from AMQP.
// Sheet failures are recorded on the row and retried by the pending sweep,
// so the message is consumed either way; only registry read errors requeue it.
func (w *SyncWorker) HandleRosterSyncMessage(ctx context.Context, msg *amqp.RosterSyncMessage) error {
	slog.InfoContext(ctx, "Processing roster sync message",
		"kind", msg.Kind,
		"id", msg.ID,
		"version", msg.Version)

	switch msg.Kind {
	case amqp.KindHomeowner:
		h, err := w.storage.GetHomeowner(ctx, msg.ID)
		if errors.Is(err, sql.ErrNoRows) {
			slog.WarnContext(ctx, "Homeowner vanished before sync, dropping message",
				"homeowner_id", msg.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get homeowner from storage: %w", err)
		}
		if err := w.pushHomeowner(ctx, *h); err != nil {
			slog.ErrorContext(ctx, "Failed to push homeowner, sweep will retry",
				"homeowner_id", msg.ID, "error", err)
		}
		return nil

	case amqp.KindPortalUser:
		u, err := w.storage.GetPortalUser(ctx, msg.ID)
		if errors.Is(err, sql.ErrNoRows) {
			slog.WarnContext(ctx, "Portal user vanished before sync, dropping message",
				"portal_user_id", msg.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get portal user from storage: %w", err)
		}
		if err := w.pushPortalUser(ctx, *u, msg.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to push portal user, sweep will retry",
				"portal_user_id", msg.ID, "error", err)
		}
		return nil

	default:
		// Drop unknown kinds instead of requeueing them forever
		slog.WarnContext(ctx, "Unknown roster sync kind, dropping message", "kind", msg.Kind)
		return nil
	}
}

// ProcessPendingRows pushes one batch of rows that have not reached the sheet
// yet. This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingRows(ctx context.Context) error {
	_, _, err := w.sweepPending(ctx, w.batchSize)
	return err
}

// StartupSyncCheck drains rows that accumulated while the worker was down.
// This is useful to recover from missed AMQP messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	// Get a larger batch for the startup drain
	total, synced, err := w.sweepPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending registry rows found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", total,
		"synced", synced,
		"errors", total-synced)

	return nil
}

// sweepPending pushes up to limit pending rows per collection and reports how
// many rows it saw and how many reached the sheet.
func (w *SyncWorker) sweepPending(ctx context.Context, limit int) (int, int, error) {
	pendingOwners, err := w.storage.GetPendingHomeowners(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending homeowners: %w", err)
	}
	pendingUsers, err := w.storage.GetPendingPortalUsers(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending portal users: %w", err)
	}

	total := len(pendingOwners) + len(pendingUsers)
	if total == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending registry rows",
		"homeowners", len(pendingOwners),
		"portal_users", len(pendingUsers))

	synced := 0
	for _, row := range pendingOwners {
		h, err := w.storage.GetHomeowner(ctx, row.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load pending homeowner",
				"homeowner_id", row.ID, "error", err)
			continue
		}
		if err := w.pushHomeowner(ctx, *h); err != nil {
			slog.ErrorContext(ctx, "Failed to push homeowner",
				"homeowner_id", row.ID, "error", err)
			continue
		}
		synced++
	}

	for _, row := range pendingUsers {
		u, err := w.storage.GetPortalUser(ctx, row.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load pending portal user",
				"portal_user_id", row.ID, "error", err)
			continue
		}
		if err := w.pushPortalUser(ctx, *u, row.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to push portal user",
				"portal_user_id", row.ID, "error", err)
			continue
		}
		synced++
	}

	return total, synced, nil
}

// ImportRosterIfNeeded refreshes the registry from the back-office sheet when
// the configured policy says the local copy is due. The policy sees the live
// homeowner count and the time of the last completed import.
func (w *SyncWorker) ImportRosterIfNeeded(ctx context.Context, policy services.ImportPolicy) error {
	count, err := w.storage.CountHomeowners(ctx)
	if err != nil {
		return fmt.Errorf("count homeowners: %w", err)
	}

	lastImport, err := w.storage.RosterLastImport(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Could not determine last import time, keeping current registry", "error", err)
		return nil
	}

	if !policy.ShouldImport(lastImport, time.Now(), count) {
		slog.InfoContext(ctx, "Registry roster copy is fresh",
			"homeowners", count,
			"last_import", lastImport.Format(time.RFC3339))
		return nil
	}

	slog.InfoContext(ctx, "Registry roster copy is due for import",
		"homeowners", count,
		"last_import", lastImport.Format(time.RFC3339))

	return w.importRoster(ctx)
}

// ForceImportRoster re-imports the roster from the sheet regardless of policy.
// This can be called manually or triggered by an admin endpoint.
func (w *SyncWorker) ForceImportRoster(ctx context.Context) error {
	slog.InfoContext(ctx, "Force importing roster from sheet")
	return w.importRoster(ctx)
}

// PeriodicRosterImport can be called periodically to refresh the registry.
// It respects the configured import policy.
func (w *SyncWorker) PeriodicRosterImport(ctx context.Context, policy services.ImportPolicy) error {
	return w.ImportRosterIfNeeded(ctx, policy)
}

// importRoster pulls both sheet collections into the registry. The sheet is
// the source of truth here: imported rows land already synced, and homeowners
// the sheet no longer lists are soft-deleted. Rows still waiting to be pushed
// are left alone.
func (w *SyncWorker) importRoster(ctx context.Context) error {
	sheetOwners, err := w.source.ListHomeowners(ctx)
	if err != nil {
		return fmt.Errorf("load homeowners from sheet: %w", err)
	}
	sheetUsers, err := w.source.ListPortalUsers(ctx)
	if err != nil {
		return fmt.Errorf("load portal users from sheet: %w", err)
	}

	importedOwners := 0
	seen := make(map[int64]struct{}, len(sheetOwners))
	for _, h := range sheetOwners {
		if err := w.storage.UpsertHomeowner(ctx, h); err != nil {
			slog.ErrorContext(ctx, "Failed to upsert homeowner",
				"homeowner_id", h.ID, "error", err)
			continue
		}
		seen[h.ID] = struct{}{}
		importedOwners++
	}

	// Prune synced rows the sheet dropped
	syncedIDs, err := w.storage.ListSyncedHomeownerIDs(ctx)
	if err != nil {
		return fmt.Errorf("list synced homeowners: %w", err)
	}
	pruned := 0
	for _, id := range syncedIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := w.storage.SoftDeleteHomeowner(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to prune homeowner",
				"homeowner_id", id, "error", err)
			continue
		}
		pruned++
	}

	importedUsers := 0
	for _, u := range sheetUsers {
		if err := w.storage.UpsertPortalUser(ctx, u); err != nil {
			slog.ErrorContext(ctx, "Failed to upsert portal user",
				"portal_user_id", u.ID, "error", err)
			continue
		}
		importedUsers++
	}

	if err := w.storage.RecordRosterImport(ctx, time.Now(), int64(importedOwners), int64(importedUsers)); err != nil {
		slog.WarnContext(ctx, "Failed to record roster import", "error", err)
	}

	slog.InfoContext(ctx, "Roster imported from sheet",
		"homeowners", importedOwners,
		"portal_users", importedUsers,
		"pruned", pruned)

	return nil
}

// pushHomeowner appends one homeowner to the sheet and updates the row's sync
// state either way.
func (w *SyncWorker) pushHomeowner(ctx context.Context, h core.Homeowner) error {
	ref, err := w.owners.AppendHomeowner(ctx, h)
	if err != nil {
		if markErr := w.storage.RecordHomeownerSyncFailure(ctx, h.ID, maxPushAttempts); markErr != nil {
			slog.ErrorContext(ctx, "Failed to record sync failure",
				"homeowner_id", h.ID, "error", markErr)
		}
		return fmt.Errorf("append homeowner to sheet: %w", err)
	}

	if err := w.storage.MarkHomeownerSynced(ctx, h.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark homeowner synced",
			"homeowner_id", h.ID, "error", err)
		// Don't return an error here - the push actually worked
	}

	slog.InfoContext(ctx, "Homeowner synced to sheet",
		"homeowner_id", h.ID,
		"sheet_ref", ref,
		"display_name", h.DisplayName())

	return nil
}

// pushPortalUser pushes one portal account to the sheet. Version 1 rows are
// new registrations and get appended; later versions carry a deactivation.
func (w *SyncWorker) pushPortalUser(ctx context.Context, u core.PortalUser, version int64) error {
	if version > 1 {
		if w.deactivator == nil {
			slog.WarnContext(ctx, "No sheet deactivator configured, skipping deactivation push",
				"portal_user_id", u.ID)
		} else if err := w.deactivator.DeactivatePortalUser(ctx, u.ID); err != nil {
			if markErr := w.storage.RecordPortalUserSyncFailure(ctx, u.ID, maxPushAttempts); markErr != nil {
				slog.ErrorContext(ctx, "Failed to record sync failure",
					"portal_user_id", u.ID, "error", markErr)
			}
			return fmt.Errorf("deactivate portal user on sheet: %w", err)
		}
	} else {
		if _, err := w.users.AppendPortalUser(ctx, u); err != nil {
			if markErr := w.storage.RecordPortalUserSyncFailure(ctx, u.ID, maxPushAttempts); markErr != nil {
				slog.ErrorContext(ctx, "Failed to record sync failure",
					"portal_user_id", u.ID, "error", markErr)
			}
			return fmt.Errorf("append portal user to sheet: %w", err)
		}
	}

	if err := w.storage.MarkPortalUserSynced(ctx, u.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark portal user synced",
			"portal_user_id", u.ID, "error", err)
	}

	slog.InfoContext(ctx, "Portal user synced to sheet",
		"portal_user_id", u.ID,
		"homeowner_id", u.HomeownerID,
		"version", version)

	return nil
}
