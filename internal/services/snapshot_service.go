package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ownerportal/internal/core"
	"ownerportal/internal/roster"
)

// SnapshotRecorder stores captured adoption snapshots.
type SnapshotRecorder interface {
	InsertStatsSnapshot(ctx context.Context, snap core.StatsSnapshot) error
}

// SnapshotService periodically captures portal adoption statistics over the
// whole roster, so the history endpoint can show a trend instead of a single
// point.
type SnapshotService struct {
	owners   roster.HomeownerReader
	users    roster.PortalUserReader
	recorder SnapshotRecorder
	interval time.Duration

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSnapshotService(owners roster.HomeownerReader, users roster.PortalUserReader,
	recorder SnapshotRecorder, interval time.Duration) *SnapshotService {
	return &SnapshotService{
		owners:   owners,
		users:    users,
		recorder: recorder,
		interval: interval,
	}
}

// CaptureSnapshot computes adoption statistics over every live homeowner and
// stores the result. Owners the roster marks inactive stay out of the counts.
func (s *SnapshotService) CaptureSnapshot(ctx context.Context, now time.Time) (core.StatsSnapshot, error) {
	owners, err := s.owners.ListHomeowners(ctx)
	if err != nil {
		return core.StatsSnapshot{}, &core.DataSourceError{Source: core.SourceHomeowners, Err: err}
	}
	users, err := s.users.ListPortalUsers(ctx)
	if err != nil {
		return core.StatsSnapshot{}, &core.DataSourceError{Source: core.SourcePortalUsers, Err: err}
	}

	// The whole roster is in scope, so the filter allows every listed owner
	ids := make([]int64, 0, len(owners))
	for _, h := range owners {
		ids = append(ids, h.ID)
	}

	eligible, err := core.EligibleHomeowners(owners, core.FilterCriteria{HomeownerIDs: ids})
	if err != nil {
		return core.StatsSnapshot{}, err
	}

	snap := core.StatsSnapshot{
		CapturedAt: now,
		Stats: core.AggregatePortalStats(eligible, users, core.AggregateOptions{
			IncludeAdoptionRate: true,
		}),
	}

	if err := s.recorder.InsertStatsSnapshot(ctx, snap); err != nil {
		return core.StatsSnapshot{}, fmt.Errorf("store snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Adoption snapshot captured",
		"total_eligible", snap.Stats.TotalEligible,
		"with_portal_account", snap.Stats.WithPortalAccount,
		"adoption_rate_bps", snap.Stats.AdoptionRateBps)

	return snap, nil
}

// Start begins the capture loop. Returns an error if already running or if
// no interval is configured.
func (s *SnapshotService) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("snapshot interval is not set")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshot service is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Snapshot service started", "interval", s.interval)
	return nil
}

// Stop gracefully stops the capture loop and waits for completion.
func (s *SnapshotService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		slog.InfoContext(ctx, "Snapshot service stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Snapshot service stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the capture loop is currently running
func (s *SnapshotService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SnapshotService) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Capture immediately on startup
	s.capture(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.capture(ctx)
		}
	}
}

func (s *SnapshotService) capture(ctx context.Context) {
	if _, err := s.CaptureSnapshot(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "Failed to capture adoption snapshot", "error", err)
	}
}
