package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ownerportal/internal/core"
)

// fakeSheet implements the roster writer and deactivator ports in memory.
type fakeSheet struct {
	owners      []core.Homeowner
	users       []core.PortalUser
	deactivated []int64
	err         error
}

func (f *fakeSheet) AppendHomeowner(_ context.Context, h core.Homeowner) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.owners = append(f.owners, h)
	return "sheet-row", nil
}

func (f *fakeSheet) AppendPortalUser(_ context.Context, u core.PortalUser) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.users = append(f.users, u)
	return "sheet-row", nil
}

func (f *fakeSheet) DeactivatePortalUser(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.deactivated = append(f.deactivated, id)
	return nil
}

func TestNewSyncProcessor(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	processor := NewSyncProcessor(nil, nil, nil, nil, config)

	if processor == nil {
		t.Fatal("NewSyncProcessor should return non-nil processor")
	}
	if processor.storage != nil {
		t.Error("storage should be nil when passed nil")
	}
	if processor.owners != nil {
		t.Error("owners should be nil when passed nil")
	}
	if processor.deactivator != nil {
		t.Error("deactivator should be nil when passed nil")
	}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.RetryInterval != 1*time.Hour {
		t.Errorf("expected RetryInterval 1h, got %v", config.RetryInterval)
	}
}

func TestSyncProcessorConfig_CustomValues(t *testing.T) {
	config := SyncProcessorConfig{
		PollInterval:  5 * time.Second,
		BatchSize:     20,
		MaxRetries:    5,
		RetryInterval: 30 * time.Minute,
	}

	processor := NewSyncProcessor(nil, nil, nil, nil, config)

	if processor.config.PollInterval != 5*time.Second {
		t.Errorf("expected custom PollInterval 5s, got %v", processor.config.PollInterval)
	}
	if processor.config.BatchSize != 20 {
		t.Errorf("expected custom BatchSize 20, got %d", processor.config.BatchSize)
	}
	if processor.config.MaxRetries != 5 {
		t.Errorf("expected custom MaxRetries 5, got %d", processor.config.MaxRetries)
	}
	if processor.config.RetryInterval != 30*time.Minute {
		t.Errorf("expected custom RetryInterval 30m, got %v", processor.config.RetryInterval)
	}
}

func TestSyncProcessor_IsRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, nil, nil, DefaultSyncProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, nil, nil, DefaultSyncProcessorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mark as running without a real storage behind it
	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	// Second start should fail
	err := processor.Start(ctx)
	if err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, nil, nil, DefaultSyncProcessorConfig())

	// Stop when not running should not error
	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSyncProcessor_StartStop(t *testing.T) {
	repo := newTestStorage(t)
	sheet := &fakeSheet{}
	config := DefaultSyncProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	processor := NewSyncProcessor(repo, sheet, sheet, sheet, config)

	ctx := context.Background()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !processor.IsRunning() {
		t.Error("processor not running after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor still running after Stop")
	}
}

func TestSyncProcessor_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes pending rows and marks them synced", func(t *testing.T) {
		repo := newTestStorage(t)
		sheet := &fakeSheet{}
		processor := NewSyncProcessor(repo, sheet, sheet, sheet, DefaultSyncProcessorConfig())

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}
		if _, err := repo.AppendPortalUser(ctx, core.PortalUser{HomeownerID: 1, Email: "ada@example.com", Active: true}); err != nil {
			t.Fatalf("AppendPortalUser: %v", err)
		}

		processor.processBatch(ctx)

		if len(sheet.owners) != 1 || sheet.owners[0].ID != 1 {
			t.Errorf("sheet owners = %+v, want the registered homeowner", sheet.owners)
		}
		if len(sheet.users) != 1 || sheet.users[0].HomeownerID != 1 {
			t.Errorf("sheet users = %+v, want the registered account", sheet.users)
		}

		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.Pending() != 0 {
			t.Errorf("pending rows after batch = %d, want 0", stats.Pending())
		}
		if stats.HomeownersSynced != 1 || stats.PortalUsersSynced != 1 {
			t.Errorf("sync stats = %+v, want one synced row per table", stats)
		}
	})

	t.Run("deactivations push by version", func(t *testing.T) {
		repo := newTestStorage(t)
		sheet := &fakeSheet{}
		processor := NewSyncProcessor(repo, sheet, sheet, sheet, DefaultSyncProcessorConfig())

		if _, err := repo.AppendPortalUser(ctx, core.PortalUser{HomeownerID: 1, Active: true}); err != nil {
			t.Fatalf("AppendPortalUser: %v", err)
		}
		if err := repo.MarkPortalUserSynced(ctx, 1); err != nil {
			t.Fatalf("MarkPortalUserSynced: %v", err)
		}
		if _, err := repo.DeactivatePortalUser(ctx, 1); err != nil {
			t.Fatalf("DeactivatePortalUser: %v", err)
		}

		processor.processBatch(ctx)

		if len(sheet.deactivated) != 1 || sheet.deactivated[0] != 1 {
			t.Errorf("sheet deactivations = %v, want [1]", sheet.deactivated)
		}
		if len(sheet.users) != 0 {
			t.Errorf("sheet appends = %+v, want none for a version 2 row", sheet.users)
		}

		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.PortalUsersSynced != 1 || stats.Pending() != 0 {
			t.Errorf("sync stats = %+v, want the deactivated row synced", stats)
		}
	})

	t.Run("failed pushes error out after max retries", func(t *testing.T) {
		repo := newTestStorage(t)
		sheet := &fakeSheet{err: errors.New("sheet down")}
		config := DefaultSyncProcessorConfig()
		config.MaxRetries = 2
		processor := NewSyncProcessor(repo, sheet, sheet, sheet, config)

		if _, err := repo.AppendHomeowner(ctx, core.Homeowner{ID: 1, FirstName: "Ada", LastName: "Conti"}); err != nil {
			t.Fatalf("AppendHomeowner: %v", err)
		}

		processor.processBatch(ctx)
		processor.processBatch(ctx)

		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.HomeownersError != 1 {
			t.Errorf("errored homeowners = %d, want 1 after exhausting retries", stats.HomeownersError)
		}
		if stats.Pending() != 0 {
			t.Errorf("pending rows = %d, want 0", stats.Pending())
		}

		requeued, err := processor.RetryFailed(ctx)
		if err != nil {
			t.Fatalf("RetryFailed: %v", err)
		}
		if requeued != 1 {
			t.Errorf("requeued = %d, want 1", requeued)
		}

		stats, err = processor.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.HomeownersPending != 1 {
			t.Errorf("pending homeowners after retry = %d, want 1", stats.HomeownersPending)
		}
	})

	t.Run("missing deactivator skips the push", func(t *testing.T) {
		repo := newTestStorage(t)
		sheet := &fakeSheet{}
		processor := NewSyncProcessor(repo, sheet, sheet, nil, DefaultSyncProcessorConfig())

		if _, err := repo.AppendPortalUser(ctx, core.PortalUser{HomeownerID: 1, Active: true}); err != nil {
			t.Fatalf("AppendPortalUser: %v", err)
		}
		if err := repo.MarkPortalUserSynced(ctx, 1); err != nil {
			t.Fatalf("MarkPortalUserSynced: %v", err)
		}
		if _, err := repo.DeactivatePortalUser(ctx, 1); err != nil {
			t.Fatalf("DeactivatePortalUser: %v", err)
		}

		processor.processBatch(ctx)

		stats, err := repo.GetSyncStats(ctx)
		if err != nil {
			t.Fatalf("GetSyncStats: %v", err)
		}
		if stats.Pending() != 0 {
			t.Errorf("pending rows = %d, want 0 after the skip", stats.Pending())
		}
	})
}
