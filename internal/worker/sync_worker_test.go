package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"ownerportal/internal/amqp"
	"ownerportal/internal/core"
	"ownerportal/internal/services"
	"ownerportal/internal/storage"
)

// fakeSheet stands in for the back-office sheet on both sides: it serves
// srcOwners and srcUsers to imports and records what gets pushed to it.
type fakeSheet struct {
	srcOwners []core.Homeowner
	srcUsers  []core.PortalUser

	appendedOwners []core.Homeowner
	appendedUsers  []core.PortalUser
	deactivated    []int64
	listCalls      int
	err            error
}

func (f *fakeSheet) ListHomeowners(ctx context.Context) ([]core.Homeowner, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.srcOwners, nil
}

func (f *fakeSheet) ListPortalUsers(ctx context.Context) ([]core.PortalUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.srcUsers, nil
}

func (f *fakeSheet) AppendHomeowner(ctx context.Context, h core.Homeowner) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.appendedOwners = append(f.appendedOwners, h)
	return fmt.Sprintf("roster!A%d", len(f.appendedOwners)+1), nil
}

func (f *fakeSheet) AppendPortalUser(ctx context.Context, u core.PortalUser) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.appendedUsers = append(f.appendedUsers, u)
	return fmt.Sprintf("accounts!A%d", len(f.appendedUsers)+1), nil
}

func (f *fakeSheet) DeactivatePortalUser(ctx context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

func newWorkerRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close repository: %v", err)
		}
	})
	return repo
}

func newTestWorker(t *testing.T, sheet *fakeSheet) (*SyncWorker, *storage.SQLiteRepository) {
	t.Helper()
	repo := newWorkerRepo(t)
	return NewSyncWorker(repo, sheet, sheet, sheet, sheet, 10), repo
}

func TestSyncWorker_HandleRosterSyncMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes a new homeowner to the sheet", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, repo := newTestWorker(t, sheet)

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}

		msg := amqp.NewRosterSyncMessage(amqp.KindHomeowner, 1, 1)
		if err := w.HandleRosterSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleRosterSyncMessage: %v", err)
		}

		if len(sheet.appendedOwners) != 1 || sheet.appendedOwners[0].ID != 1 {
			t.Fatalf("appended owners = %+v, want homeowner 1", sheet.appendedOwners)
		}
		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.HomeownersSynced != 1 || stats.Pending() != 0 {
			t.Errorf("sync stats = %+v, want one synced homeowner and nothing pending", stats)
		}
	})

	t.Run("pushes a deactivation for later versions", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, repo := newTestWorker(t, sheet)

		if _, err := repo.AppendPortalUser(ctx, core.PortalUser{HomeownerID: 1, Active: true}); err != nil {
			t.Fatalf("AppendPortalUser: %v", err)
		}
		if err := repo.MarkPortalUserSynced(ctx, 1); err != nil {
			t.Fatalf("MarkPortalUserSynced: %v", err)
		}
		version, err := repo.DeactivatePortalUser(ctx, 1)
		if err != nil {
			t.Fatalf("DeactivatePortalUser: %v", err)
		}

		msg := amqp.NewRosterSyncMessage(amqp.KindPortalUser, 1, version)
		if err := w.HandleRosterSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleRosterSyncMessage: %v", err)
		}

		if len(sheet.deactivated) != 1 || sheet.deactivated[0] != 1 {
			t.Fatalf("deactivated = %v, want [1]", sheet.deactivated)
		}
		if len(sheet.appendedUsers) != 0 {
			t.Errorf("appended users = %+v, want none for a deactivation", sheet.appendedUsers)
		}
		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.PortalUsersSynced != 1 {
			t.Errorf("sync stats = %+v, want the deactivated account marked synced", stats)
		}
	})

	t.Run("vanished rows consume the message", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, _ := newTestWorker(t, sheet)

		msg := amqp.NewRosterSyncMessage(amqp.KindHomeowner, 99, 1)
		if err := w.HandleRosterSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleRosterSyncMessage for a missing row = %v, want nil", err)
		}
		if len(sheet.appendedOwners) != 0 {
			t.Errorf("appended owners = %+v, want none", sheet.appendedOwners)
		}
	})

	t.Run("unknown kinds are dropped", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, _ := newTestWorker(t, sheet)

		msg := amqp.NewRosterSyncMessage("building", 1, 1)
		if err := w.HandleRosterSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleRosterSyncMessage for an unknown kind = %v, want nil", err)
		}
	})

	t.Run("sheet failures leave the row for the sweep", func(t *testing.T) {
		sheet := &fakeSheet{err: errors.New("sheet down")}
		w, repo := newTestWorker(t, sheet)

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}

		msg := amqp.NewRosterSyncMessage(amqp.KindHomeowner, 1, 1)
		if err := w.HandleRosterSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleRosterSyncMessage = %v, want nil so the message is consumed", err)
		}

		pending, err := repo.GetPendingHomeowners(ctx, 10)
		if err != nil {
			t.Fatalf("GetPendingHomeowners: %v", err)
		}
		if len(pending) != 1 || pending[0].Attempts != 1 {
			t.Fatalf("pending rows = %+v, want homeowner 1 with one recorded attempt", pending)
		}
	})
}

func TestSyncWorker_StartupSyncCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("drains pending rows", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, repo := newTestWorker(t, sheet)

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}
		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 2, FirstName: "Bice", LastName: "Riva"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}
		if _, err := repo.AppendPortalUser(ctx, core.PortalUser{HomeownerID: 1, Active: true}); err != nil {
			t.Fatalf("AppendPortalUser: %v", err)
		}

		if err := w.StartupSyncCheck(ctx); err != nil {
			t.Fatalf("StartupSyncCheck: %v", err)
		}

		if len(sheet.appendedOwners) != 2 || len(sheet.appendedUsers) != 1 {
			t.Fatalf("appended = %d owners, %d users, want 2 and 1",
				len(sheet.appendedOwners), len(sheet.appendedUsers))
		}
		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.Pending() != 0 {
			t.Errorf("pending after startup check = %d, want 0", stats.Pending())
		}
	})

	t.Run("no pending rows is a no-op", func(t *testing.T) {
		sheet := &fakeSheet{}
		w, _ := newTestWorker(t, sheet)

		if err := w.StartupSyncCheck(ctx); err != nil {
			t.Fatalf("StartupSyncCheck on an empty registry: %v", err)
		}
		if len(sheet.appendedOwners) != 0 {
			t.Errorf("appended owners = %+v, want none", sheet.appendedOwners)
		}
	})
}

func TestSyncWorker_ProcessPendingRows(t *testing.T) {
	ctx := context.Background()
	sheet := &fakeSheet{}
	repo := newWorkerRepo(t)
	w := NewSyncWorker(repo, sheet, sheet, sheet, sheet, 1)

	if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
		t.Fatalf("AppendHomeowner: %v", err)
	}
	if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 2, FirstName: "Bice", LastName: "Riva"}); err != nil {
		t.Fatalf("AppendHomeowner: %v", err)
	}

	// Batch size 1, so a single sweep pushes only one row
	if err := w.ProcessPendingRows(ctx); err != nil {
		t.Fatalf("ProcessPendingRows: %v", err)
	}
	if len(sheet.appendedOwners) != 1 {
		t.Fatalf("appended owners after one sweep = %d, want 1", len(sheet.appendedOwners))
	}

	if err := w.ProcessPendingRows(ctx); err != nil {
		t.Fatalf("ProcessPendingRows: %v", err)
	}
	if len(sheet.appendedOwners) != 2 {
		t.Fatalf("appended owners after two sweeps = %d, want 2", len(sheet.appendedOwners))
	}
}

func TestSyncWorker_ImportRoster(t *testing.T) {
	ctx := context.Background()

	t.Run("imports sheet rows as already synced", func(t *testing.T) {
		sheet := &fakeSheet{
			srcOwners: []core.Homeowner{
				{ID: 1, FirstName: "Ada", LastName: "Conti"},
				{ID: 2, FirstName: "Bice", LastName: "Riva", Inactive: core.Bool(true)},
			},
			srcUsers: []core.PortalUser{
				{ID: 1, HomeownerID: 1, Active: true},
			},
		}
		w, repo := newTestWorker(t, sheet)

		if err := w.ForceImportRoster(ctx); err != nil {
			t.Fatalf("ForceImportRoster: %v", err)
		}

		owners, err := repo.ListHomeowners(ctx)
		if err != nil {
			t.Fatalf("ListHomeowners: %v", err)
		}
		if len(owners) != 2 {
			t.Fatalf("imported homeowners = %d, want 2", len(owners))
		}
		users, err := repo.ListPortalUsers(ctx)
		if err != nil {
			t.Fatalf("ListPortalUsers: %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("imported portal users = %d, want 1", len(users))
		}
		pending, err := repo.GetPendingHomeowners(ctx, 10)
		if err != nil {
			t.Fatalf("GetPendingHomeowners: %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("imported rows are pending = %+v, want none", pending)
		}
		last, err := repo.RosterLastImport(ctx)
		if err != nil {
			t.Fatalf("RosterLastImport: %v", err)
		}
		if last.IsZero() {
			t.Error("RosterLastImport is zero after an import")
		}
	})

	t.Run("prunes synced rows the sheet dropped", func(t *testing.T) {
		sheet := &fakeSheet{
			srcOwners: []core.Homeowner{{ID: 1, FirstName: "Ada", LastName: "Conti"}},
		}
		w, repo := newTestWorker(t, sheet)

		if err := repo.UpsertHomeowner(ctx, core.Homeowner{ID: 3, FirstName: "Carla", LastName: "Messi"}); err != nil {
			t.Fatalf("UpsertHomeowner: %v", err)
		}

		if err := w.ForceImportRoster(ctx); err != nil {
			t.Fatalf("ForceImportRoster: %v", err)
		}

		count, err := repo.CountHomeowners(ctx)
		if err != nil {
			t.Fatalf("CountHomeowners: %v", err)
		}
		if count != 1 {
			t.Fatalf("homeowners after import = %d, want only the sheet row", count)
		}
		if _, err := repo.GetHomeowner(ctx, 3); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("GetHomeowner(3) error = %v, want sql.ErrNoRows after pruning", err)
		}
	})

	t.Run("rows waiting to be pushed survive the import", func(t *testing.T) {
		sheet := &fakeSheet{
			srcOwners: []core.Homeowner{{ID: 1, FirstName: "Ada", LastName: "Conti"}},
		}
		w, repo := newTestWorker(t, sheet)

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 5, FirstName: "Dina", LastName: "Greco"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}

		if err := w.ForceImportRoster(ctx); err != nil {
			t.Fatalf("ForceImportRoster: %v", err)
		}

		if _, err := repo.GetHomeowner(ctx, 5); err != nil {
			t.Fatalf("GetHomeowner(5) after import: %v, want the unsynced row kept", err)
		}
		count, err := repo.CountHomeowners(ctx)
		if err != nil {
			t.Fatalf("CountHomeowners: %v", err)
		}
		if count != 2 {
			t.Errorf("homeowners after import = %d, want 2", count)
		}
	})

	t.Run("skips the import while the registry is fresh", func(t *testing.T) {
		sheet := &fakeSheet{
			srcOwners: []core.Homeowner{{ID: 1, FirstName: "Ada", LastName: "Conti"}},
		}
		w, repo := newTestWorker(t, sheet)

		if err := repo.UpsertHomeowner(ctx, core.Homeowner{ID: 2, FirstName: "Bice", LastName: "Riva"}); err != nil {
			t.Fatalf("UpsertHomeowner: %v", err)
		}
		if err := repo.RecordRosterImport(ctx, time.Now(), 1, 0); err != nil {
			t.Fatalf("RecordRosterImport: %v", err)
		}

		if err := w.ImportRosterIfNeeded(ctx, services.EmptyRegistryPolicy{}); err != nil {
			t.Fatalf("ImportRosterIfNeeded: %v", err)
		}
		if sheet.listCalls != 0 {
			t.Errorf("sheet reads = %d, want 0 when the registry is fresh", sheet.listCalls)
		}
	})

	t.Run("imports into an empty registry", func(t *testing.T) {
		sheet := &fakeSheet{
			srcOwners: []core.Homeowner{{ID: 1, FirstName: "Ada", LastName: "Conti"}},
		}
		w, repo := newTestWorker(t, sheet)

		if err := w.ImportRosterIfNeeded(ctx, services.EmptyRegistryPolicy{}); err != nil {
			t.Fatalf("ImportRosterIfNeeded: %v", err)
		}

		count, err := repo.CountHomeowners(ctx)
		if err != nil {
			t.Fatalf("CountHomeowners: %v", err)
		}
		if count != 1 {
			t.Errorf("homeowners after import = %d, want 1", count)
		}
		if sheet.listCalls != 1 {
			t.Errorf("sheet reads = %d, want 1", sheet.listCalls)
		}
	})

	t.Run("sheet failure aborts the import", func(t *testing.T) {
		sheet := &fakeSheet{err: errors.New("sheet down")}
		w, repo := newTestWorker(t, sheet)

		if err := w.ForceImportRoster(ctx); err == nil {
			t.Fatal("ForceImportRoster succeeded with a failing sheet")
		}
		count, err := repo.CountHomeowners(ctx)
		if err != nil {
			t.Fatalf("CountHomeowners: %v", err)
		}
		if count != 0 {
			t.Errorf("homeowners after failed import = %d, want 0", count)
		}
	})
}
