package core

import "time"

type (
	// AggregateOptions controls which derived metrics the aggregation
	// computes. The three counters are always produced.
	AggregateOptions struct {
		IncludeAdoptionRate bool
	}

	// PortalOverviewStats summarizes portal adoption over an eligible set.
	// TotalEligible == WithPortalAccount + WithoutPortalAccount always holds;
	// an all-zero result is a valid answer, not an error. AdoptionRateBps is
	// in basis points (10000 = 100%) and stays zero unless requested.
	PortalOverviewStats struct {
		TotalEligible        int
		WithPortalAccount    int
		WithoutPortalAccount int
		AdoptionRateBps      int64
	}

	// StatsSnapshot is a PortalOverviewStats captured at a point in time,
	// kept for trend history.
	StatsSnapshot struct {
		CapturedAt time.Time
		Stats      PortalOverviewStats
	}
)

// AggregatePortalStats left-joins the eligible set against portal accounts.
// An owner counts as registered when at least one active account references
// them; owners with no account, or only deactivated ones, count as not
// registered. A missing match is normal data. Each eligible owner is counted
// exactly once however many accounts reference them.
func AggregatePortalStats(eligible []EligibleHomeowner, users []PortalUser, opts AggregateOptions) PortalOverviewStats {
	activeFor := make(map[int64]bool, len(users))
	for _, u := range users {
		if u.Active {
			activeFor[u.HomeownerID] = true
		}
	}

	stats := PortalOverviewStats{TotalEligible: len(eligible)}
	for _, h := range eligible {
		if activeFor[h.ID] {
			stats.WithPortalAccount++
		} else {
			stats.WithoutPortalAccount++
		}
	}

	if opts.IncludeAdoptionRate {
		stats.AdoptionRateBps = adoptionRateBps(stats.WithPortalAccount, stats.TotalEligible)
	}
	return stats
}

// adoptionRateBps divides with/total in basis points with half-up rounding.
// A zero total yields zero: an empty eligible set is a valid input.
func adoptionRateBps(with, total int) int64 {
	if total <= 0 {
		return 0
	}
	return (int64(with)*10000 + int64(total)/2) / int64(total)
}
