package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ownerportal/internal/core"

	_ "modernc.org/sqlite"
)

const metaKeyLastImport = "roster_last_import"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListHomeowners implements roster.HomeownerReader. Soft-deleted rows are
// excluded; the order follows the roster-assigned IDs.
func (r *SQLiteRepository) ListHomeowners(ctx context.Context) ([]core.Homeowner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, inactive
		 FROM homeowners WHERE deleted = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list homeowners: %w", err)
	}
	defer rows.Close()

	var owners []core.Homeowner
	for rows.Next() {
		var h core.Homeowner
		var inactive sql.NullBool
		if err := rows.Scan(&h.ID, &h.FirstName, &h.LastName, &h.Email, &inactive); err != nil {
			return nil, fmt.Errorf("scan homeowner: %w", err)
		}
		if inactive.Valid {
			h.Inactive = core.Bool(inactive.Bool)
		}
		owners = append(owners, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate homeowners: %w", err)
	}

	return owners, nil
}

// ListPortalUsers implements roster.PortalUserReader
func (r *SQLiteRepository) ListPortalUsers(ctx context.Context) ([]core.PortalUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, homeowner_id, email, active FROM portal_users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list portal users: %w", err)
	}
	defer rows.Close()

	var users []core.PortalUser
	for rows.Next() {
		var u core.PortalUser
		if err := rows.Scan(&u.ID, &u.HomeownerID, &u.Email, &u.Active); err != nil {
			return nil, fmt.Errorf("scan portal user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate portal users: %w", err)
	}

	return users, nil
}

// AppendHomeowner implements roster.HomeownerWriter. The row starts out
// pending and is pushed to the back-office sheet by the sync worker.
func (r *SQLiteRepository) AppendHomeowner(ctx context.Context, h core.Homeowner) (string, error) {
	if err := h.Validate(); err != nil {
		return "", fmt.Errorf("validate homeowner: %w", err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO homeowners (id, first_name, last_name, email, inactive)
		 VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.FirstName, h.LastName, h.Email, h.Inactive)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("homeowner %d already exists", h.ID)
		}
		return "", fmt.Errorf("insert homeowner: %w", err)
	}

	slog.InfoContext(ctx, "Homeowner saved to registry",
		"homeowner_id", h.ID,
		"display_name", h.DisplayName())

	return strconv.FormatInt(h.ID, 10), nil
}

// AppendPortalUser implements roster.PortalUserWriter. A zero ID lets the
// registry assign one.
func (r *SQLiteRepository) AppendPortalUser(ctx context.Context, u core.PortalUser) (string, error) {
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("validate portal user: %w", err)
	}

	var id int64
	if u.ID != 0 {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO portal_users (id, homeowner_id, email, active)
			 VALUES (?, ?, ?, ?)`,
			u.ID, u.HomeownerID, u.Email, u.Active)
		if err != nil {
			if isUniqueViolation(err) {
				return "", fmt.Errorf("portal account %d already exists", u.ID)
			}
			return "", fmt.Errorf("insert portal user: %w", err)
		}
		id = u.ID
	} else {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO portal_users (homeowner_id, email, active)
			 VALUES (?, ?, ?)`,
			u.HomeownerID, u.Email, u.Active)
		if err != nil {
			return "", fmt.Errorf("insert portal user: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return "", fmt.Errorf("portal user insert id: %w", err)
		}
	}

	slog.InfoContext(ctx, "Portal user saved to registry",
		"portal_user_id", id,
		"homeowner_id", u.HomeownerID)

	return strconv.FormatInt(id, 10), nil
}

// DeactivatePortalUser switches an account off and bumps its row version.
// The version bump re-queues the row so the worker propagates the change to
// the sheet; the new version is returned for the change notification.
func (r *SQLiteRepository) DeactivatePortalUser(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE portal_users
		 SET active = 0, sync_status = 'pending', sync_attempts = 0,
		     version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("deactivate portal user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate portal user rows: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("portal account %d not found", id)
	}

	var version int64
	err = r.db.QueryRowContext(ctx,
		`SELECT version FROM portal_users WHERE id = ?`, id).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read portal user version: %w", err)
	}

	slog.InfoContext(ctx, "Portal user deactivated in registry",
		"portal_user_id", id, "version", version)
	return version, nil
}

// GetHomeowner retrieves a single homeowner by roster ID
func (r *SQLiteRepository) GetHomeowner(ctx context.Context, id int64) (*core.Homeowner, error) {
	var h core.Homeowner
	var inactive sql.NullBool
	err := r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, inactive
		 FROM homeowners WHERE id = ? AND deleted = 0`, id).
		Scan(&h.ID, &h.FirstName, &h.LastName, &h.Email, &inactive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("homeowner %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("get homeowner: %w", err)
	}
	if inactive.Valid {
		h.Inactive = core.Bool(inactive.Bool)
	}
	return &h, nil
}

// GetPortalUser retrieves a single portal user by ID
func (r *SQLiteRepository) GetPortalUser(ctx context.Context, id int64) (*core.PortalUser, error) {
	var u core.PortalUser
	err := r.db.QueryRowContext(ctx,
		`SELECT id, homeowner_id, email, active FROM portal_users WHERE id = ?`, id).
		Scan(&u.ID, &u.HomeownerID, &u.Email, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portal user %d: %w", id, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("get portal user: %w", err)
	}
	return &u, nil
}

// UpsertHomeowner writes a row arriving from the back-office sheet. Imported
// rows are in sync with the sheet already, so they land as 'synced' and an
// earlier soft delete is undone.
func (r *SQLiteRepository) UpsertHomeowner(ctx context.Context, h core.Homeowner) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("validate homeowner: %w", err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO homeowners (id, first_name, last_name, email, inactive, sync_status)
		 VALUES (?, ?, ?, ?, ?, 'synced')
		 ON CONFLICT(id) DO UPDATE SET
		     first_name = excluded.first_name,
		     last_name = excluded.last_name,
		     email = excluded.email,
		     inactive = excluded.inactive,
		     deleted = 0,
		     sync_status = 'synced',
		     sync_attempts = 0,
		     updated_at = CURRENT_TIMESTAMP`,
		h.ID, h.FirstName, h.LastName, h.Email, h.Inactive)
	if err != nil {
		return fmt.Errorf("upsert homeowner: %w", err)
	}

	return nil
}

// UpsertPortalUser writes a portal account arriving from the back-office
// sheet. Sheet rows carry their own IDs.
func (r *SQLiteRepository) UpsertPortalUser(ctx context.Context, u core.PortalUser) error {
	if u.ID <= 0 {
		return fmt.Errorf("portal user id is required for upsert")
	}
	if err := u.Validate(); err != nil {
		return fmt.Errorf("validate portal user: %w", err)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portal_users (id, homeowner_id, email, active, sync_status)
		 VALUES (?, ?, ?, ?, 'synced')
		 ON CONFLICT(id) DO UPDATE SET
		     homeowner_id = excluded.homeowner_id,
		     email = excluded.email,
		     active = excluded.active,
		     sync_status = 'synced',
		     sync_attempts = 0,
		     updated_at = CURRENT_TIMESTAMP`,
		u.ID, u.HomeownerID, u.Email, u.Active)
	if err != nil {
		return fmt.Errorf("upsert portal user: %w", err)
	}

	return nil
}

// SoftDeleteHomeowner hides a homeowner that is gone from the roster.
// Already-deleted or unknown IDs are a no-op.
func (r *SQLiteRepository) SoftDeleteHomeowner(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE homeowners SET deleted = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("soft delete homeowner: %w", err)
	}
	return nil
}

// CountHomeowners returns the number of live homeowner rows
func (r *SQLiteRepository) CountHomeowners(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM homeowners WHERE deleted = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count homeowners: %w", err)
	}
	return count, nil
}

// ListSyncedHomeownerIDs returns the IDs of live rows that have reached the
// sheet. Import pruning only considers these: rows still waiting to be
// pushed are in transit, not absent.
func (r *SQLiteRepository) ListSyncedHomeownerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM homeowners WHERE deleted = 0 AND sync_status = 'synced' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list synced homeowner ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan synced homeowner id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synced homeowner ids: %w", err)
	}

	return ids, nil
}

// PendingSyncRow is the minimal row state the sync worker needs
type PendingSyncRow struct {
	ID        int64
	Version   int64
	Attempts  int
	UpdatedAt time.Time
}

// GetPendingHomeowners returns homeowner rows waiting to be pushed to the sheet
func (r *SQLiteRepository) GetPendingHomeowners(ctx context.Context, limit int) ([]PendingSyncRow, error) {
	return r.pendingRows(ctx,
		`SELECT id, version, sync_attempts, updated_at FROM homeowners
		 WHERE sync_status = 'pending' AND deleted = 0
		 ORDER BY updated_at LIMIT ?`, limit, "pending homeowners")
}

// GetPendingPortalUsers returns portal-user rows waiting to be pushed to the sheet
func (r *SQLiteRepository) GetPendingPortalUsers(ctx context.Context, limit int) ([]PendingSyncRow, error) {
	return r.pendingRows(ctx,
		`SELECT id, version, sync_attempts, updated_at FROM portal_users
		 WHERE sync_status = 'pending'
		 ORDER BY updated_at LIMIT ?`, limit, "pending portal users")
}

func (r *SQLiteRepository) pendingRows(ctx context.Context, query string, limit int, what string) ([]PendingSyncRow, error) {
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", what, err)
	}
	defer rows.Close()

	var pending []PendingSyncRow
	for rows.Next() {
		var p PendingSyncRow
		var updated sql.NullTime
		if err := rows.Scan(&p.ID, &p.Version, &p.Attempts, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		p.UpdatedAt = updated.Time
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}

	return pending, nil
}

// MarkHomeownerSynced marks a homeowner row as successfully pushed
func (r *SQLiteRepository) MarkHomeownerSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE homeowners SET sync_status = 'synced', sync_attempts = 0,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark homeowner synced: %w", err)
	}

	slog.InfoContext(ctx, "Homeowner marked as synced", "homeowner_id", id)
	return nil
}

// MarkPortalUserSynced marks a portal-user row as successfully pushed
func (r *SQLiteRepository) MarkPortalUserSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE portal_users SET sync_status = 'synced', sync_attempts = 0,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark portal user synced: %w", err)
	}

	slog.InfoContext(ctx, "Portal user marked as synced", "portal_user_id", id)
	return nil
}

// RecordHomeownerSyncFailure counts a failed push. The row stays pending
// until the attempt cap is reached, then moves to 'error' for manual retry.
func (r *SQLiteRepository) RecordHomeownerSyncFailure(ctx context.Context, id int64, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE homeowners SET
		     sync_attempts = sync_attempts + 1,
		     sync_status = CASE WHEN sync_attempts + 1 >= ? THEN 'error' ELSE 'pending' END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("record homeowner sync failure: %w", err)
	}

	slog.WarnContext(ctx, "Homeowner sync failure recorded", "homeowner_id", id)
	return nil
}

// RecordPortalUserSyncFailure counts a failed push for a portal-user row
func (r *SQLiteRepository) RecordPortalUserSyncFailure(ctx context.Context, id int64, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE portal_users SET
		     sync_attempts = sync_attempts + 1,
		     sync_status = CASE WHEN sync_attempts + 1 >= ? THEN 'error' ELSE 'pending' END,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("record portal user sync failure: %w", err)
	}

	slog.WarnContext(ctx, "Portal user sync failure recorded", "portal_user_id", id)
	return nil
}

// RetryFailedSyncs moves errored rows back to pending and returns how many
// rows were re-queued
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx,
		`UPDATE homeowners SET sync_status = 'pending', sync_attempts = 0,
		 updated_at = CURRENT_TIMESTAMP WHERE sync_status = 'error'`)
	if err != nil {
		return 0, fmt.Errorf("retry failed homeowner syncs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx,
		`UPDATE portal_users SET sync_status = 'pending', sync_attempts = 0,
		 updated_at = CURRENT_TIMESTAMP WHERE sync_status = 'error'`)
	if err != nil {
		return total, fmt.Errorf("retry failed portal user syncs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	if total > 0 {
		slog.InfoContext(ctx, "Errored rows re-queued for sync", "count", total)
	}

	return total, nil
}

// SyncStats summarizes registry sync state for health reporting
type SyncStats struct {
	HomeownersPending  int64
	HomeownersSynced   int64
	HomeownersError    int64
	PortalUsersPending int64
	PortalUsersSynced  int64
	PortalUsersError   int64
}

func (s SyncStats) Pending() int64 {
	return s.HomeownersPending + s.PortalUsersPending
}

func (s SyncStats) Errored() int64 {
	return s.HomeownersError + s.PortalUsersError
}

// GetSyncStats returns per-status row counts for both registry tables
func (r *SQLiteRepository) GetSyncStats(ctx context.Context) (SyncStats, error) {
	var stats SyncStats

	err := r.db.QueryRowContext(ctx,
		`SELECT
		     COUNT(CASE WHEN sync_status = 'pending' THEN 1 END),
		     COUNT(CASE WHEN sync_status = 'synced' THEN 1 END),
		     COUNT(CASE WHEN sync_status = 'error' THEN 1 END)
		 FROM homeowners WHERE deleted = 0`).
		Scan(&stats.HomeownersPending, &stats.HomeownersSynced, &stats.HomeownersError)
	if err != nil {
		return stats, fmt.Errorf("homeowner sync stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT
		     COUNT(CASE WHEN sync_status = 'pending' THEN 1 END),
		     COUNT(CASE WHEN sync_status = 'synced' THEN 1 END),
		     COUNT(CASE WHEN sync_status = 'error' THEN 1 END)
		 FROM portal_users`).
		Scan(&stats.PortalUsersPending, &stats.PortalUsersSynced, &stats.PortalUsersError)
	if err != nil {
		return stats, fmt.Errorf("portal user sync stats: %w", err)
	}

	return stats, nil
}

// RosterLastImport returns when the sheet was last imported, zero if never
func (r *SQLiteRepository) RosterLastImport(ctx context.Context) (time.Time, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_meta WHERE key = ?`, metaKeyLastImport).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get roster last import: %w", err)
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse roster last import %q: %w", value, err)
	}
	return t, nil
}

// RecordRosterImport stores the import time and row counts in sync_meta
func (r *SQLiteRepository) RecordRosterImport(ctx context.Context, at time.Time, homeowners, portalUsers int64) error {
	if err := r.setMeta(ctx, metaKeyLastImport, at.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := r.setMeta(ctx, "roster_last_import_homeowners", strconv.FormatInt(homeowners, 10)); err != nil {
		return err
	}
	if err := r.setMeta(ctx, "roster_last_import_portal_users", strconv.FormatInt(portalUsers, 10)); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Roster import recorded",
		"homeowners", homeowners,
		"portal_users", portalUsers)
	return nil
}

func (r *SQLiteRepository) setMeta(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set sync meta %s: %w", key, err)
	}
	return nil
}

// InsertStatsSnapshot stores a point-in-time adoption snapshot
func (r *SQLiteRepository) InsertStatsSnapshot(ctx context.Context, snap core.StatsSnapshot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stats_snapshots
		     (captured_at, total_eligible, with_portal_account, without_portal_account, adoption_rate_bps)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.CapturedAt.UTC(), snap.Stats.TotalEligible, snap.Stats.WithPortalAccount,
		snap.Stats.WithoutPortalAccount, snap.Stats.AdoptionRateBps)
	if err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Stats snapshot stored",
		"total_eligible", snap.Stats.TotalEligible,
		"with_portal_account", snap.Stats.WithPortalAccount)
	return nil
}

// ListStatsSnapshots returns the most recent snapshots, newest first
func (r *SQLiteRepository) ListStatsSnapshots(ctx context.Context, limit int) ([]core.StatsSnapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT captured_at, total_eligible, with_portal_account, without_portal_account, adoption_rate_bps
		 FROM stats_snapshots ORDER BY captured_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list stats snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []core.StatsSnapshot
	for rows.Next() {
		var snap core.StatsSnapshot
		var captured sql.NullTime
		if err := rows.Scan(&captured, &snap.Stats.TotalEligible, &snap.Stats.WithPortalAccount,
			&snap.Stats.WithoutPortalAccount, &snap.Stats.AdoptionRateBps); err != nil {
			return nil, fmt.Errorf("scan stats snapshot: %w", err)
		}
		snap.CapturedAt = captured.Time
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats snapshots: %w", err)
	}

	return snaps, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
