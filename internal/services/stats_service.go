package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ownerportal/internal/core"
	"ownerportal/internal/roster"
)

// StatsConfig holds tuning for the statistics service
type StatsConfig struct {
	// FetchTimeout bounds each collection fetch (default: 7s, 0 disables the bound)
	FetchTimeout time.Duration

	// IncludeAdoptionRate adds the derived adoption rate to results (default: true)
	IncludeAdoptionRate bool
}

// DefaultStatsConfig returns sensible defaults
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		FetchTimeout:        7 * time.Second,
		IncludeAdoptionRate: true,
	}
}

// StatsService answers portal adoption questions over the roster. It keeps no
// per-request state: every call fetches fresh snapshots of both collections
// through the injected readers, so any backend that satisfies the roster
// ports can sit behind it.
type StatsService struct {
	owners roster.HomeownerReader
	users  roster.PortalUserReader
	config StatsConfig
}

func NewStatsService(owners roster.HomeownerReader, users roster.PortalUserReader, config StatsConfig) *StatsService {
	return &StatsService{
		owners: owners,
		users:  users,
		config: config,
	}
}

// GetPortalUserOverviewStatistics reports how many of the homeowners selected
// by filter hold an active portal account. The filter is checked before any
// data is touched; both collections are then fetched concurrently and joined
// in memory. A fetch failure surfaces as a DataSourceError carrying the
// cause, never as partial counts.
func (s *StatsService) GetPortalUserOverviewStatistics(ctx context.Context, filter core.FilterCriteria) (core.PortalOverviewStats, error) {
	if err := filter.Validate(); err != nil {
		return core.PortalOverviewStats{}, err
	}

	var (
		owners []core.Homeowner
		users  []core.PortalUser
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owners, err = s.fetchHomeowners(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.fetchPortalUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.PortalOverviewStats{}, err
	}

	eligible, err := core.EligibleHomeowners(owners, filter)
	if err != nil {
		return core.PortalOverviewStats{}, err
	}

	stats := core.AggregatePortalStats(eligible, users, core.AggregateOptions{
		IncludeAdoptionRate: s.config.IncludeAdoptionRate,
	})

	slog.DebugContext(ctx, "Portal overview computed",
		"filter_ids", len(filter.HomeownerIDs),
		"total_eligible", stats.TotalEligible,
		"with_portal_account", stats.WithPortalAccount)

	return stats, nil
}

// ListEligibleHomeowners returns the projected homeowners the filter selects,
// skipping owners the roster marks inactive. This is the query half of the
// overview statistics, exposed on its own.
func (s *StatsService) ListEligibleHomeowners(ctx context.Context, filter core.FilterCriteria) ([]core.EligibleHomeowner, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	owners, err := s.fetchHomeowners(ctx)
	if err != nil {
		return nil, err
	}

	return core.EligibleHomeowners(owners, filter)
}

func (s *StatsService) fetchHomeowners(ctx context.Context) ([]core.Homeowner, error) {
	ctx, cancel := s.fetchContext(ctx)
	defer cancel()

	owners, err := s.owners.ListHomeowners(ctx)
	if err != nil {
		return nil, sourceError(core.SourceHomeowners, err)
	}
	return owners, nil
}

func (s *StatsService) fetchPortalUsers(ctx context.Context) ([]core.PortalUser, error) {
	ctx, cancel := s.fetchContext(ctx)
	defer cancel()

	users, err := s.users.ListPortalUsers(ctx)
	if err != nil {
		return nil, sourceError(core.SourcePortalUsers, err)
	}
	return users, nil
}

func (s *StatsService) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.FetchTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.FetchTimeout)
}

// sourceError attributes a fetch failure to its collection. Errors that
// already carry an attribution pass through unchanged.
func sourceError(source string, err error) error {
	if core.IsDataSourceError(err) {
		return err
	}
	return &core.DataSourceError{Source: source, Err: err}
}
