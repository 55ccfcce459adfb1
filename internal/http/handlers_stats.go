package http

import (
	"net/http"
	"time"

	"ownerportal/internal/core"
	"ownerportal/internal/log"
)

type overviewResponse struct {
	TotalEligible        int    `json:"total_eligible"`
	WithPortalAccount    int    `json:"with_portal_account"`
	WithoutPortalAccount int    `json:"without_portal_account"`
	AdoptionRateBps      *int64 `json:"adoption_rate_bps,omitempty"`
	AdoptionRate         string `json:"adoption_rate,omitempty"`
}

// handlePortalOverview answers how many of the filtered homeowners hold an
// active portal account. The filter selects owners by ID; owners the roster
// marks inactive never appear in the counts.
func (s *Server) handlePortalOverview(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	filter, err := ParseFilterCriteria(r)
	if err != nil {
		BadRequestError("malformed filter: " + err.Error()).Write(w)
		return
	}

	stats, err := s.cachedOverview(r.Context(), filter)
	if err != nil {
		s.writeStatsError(w, r, err, log.OpOverview)
		return
	}

	s.structured.LogStatsServed(r.Context(), len(filter.HomeownerIDs),
		stats.TotalEligible, stats.WithPortalAccount, stats.WithoutPortalAccount)

	resp := overviewResponse{
		TotalEligible:        stats.TotalEligible,
		WithPortalAccount:    stats.WithPortalAccount,
		WithoutPortalAccount: stats.WithoutPortalAccount,
	}
	if s.statsConf.IncludeAdoptionRate {
		bps := stats.AdoptionRateBps
		resp.AdoptionRateBps = &bps
		resp.AdoptionRate = formatPercent(bps)
	}
	NewResponse().JSON(resp).Write(w)
}

type eligibleEntry struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name"`
}

type eligibleResponse struct {
	Count      int             `json:"count"`
	Homeowners []eligibleEntry `json:"homeowners"`
}

// handleEligibleHomeowners lists the filtered homeowners the portal
// statistics would count, without the account join.
func (s *Server) handleEligibleHomeowners(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	filter, err := ParseFilterCriteria(r)
	if err != nil {
		BadRequestError("malformed filter: " + err.Error()).Write(w)
		return
	}

	eligible, err := s.cachedEligible(r.Context(), filter)
	if err != nil {
		s.writeStatsError(w, r, err, log.OpEligible)
		return
	}

	resp := eligibleResponse{
		Count:      len(eligible),
		Homeowners: make([]eligibleEntry, 0, len(eligible)),
	}
	for _, h := range eligible {
		resp.Homeowners = append(resp.Homeowners, eligibleEntry{
			ID:          h.ID,
			FirstName:   h.FirstName,
			LastName:    h.LastName,
			DisplayName: h.DisplayName,
		})
	}
	NewResponse().JSON(resp).Write(w)
}

type snapshotEntry struct {
	CapturedAt           string `json:"captured_at"`
	TotalEligible        int    `json:"total_eligible"`
	WithPortalAccount    int    `json:"with_portal_account"`
	WithoutPortalAccount int    `json:"without_portal_account"`
	AdoptionRateBps      int64  `json:"adoption_rate_bps"`
}

// handleStatsHistory lists stored adoption snapshots, newest first.
func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	if s.history == nil {
		NotImplementedError("snapshot history requires the sqlite backend").Write(w)
		return
	}

	limit := ParseLimitParam(r.URL.Query(), 30, 365)
	snaps, err := s.history.ListStatsSnapshots(r.Context(), limit)
	if err != nil {
		s.structured.LogError(r.Context(), "Snapshot history read failed", err,
			log.ComponentStats, log.OpSnapshot, log.NewFields())
		InternalServerError("snapshot history read failed").Write(w)
		return
	}

	entries := make([]snapshotEntry, 0, len(snaps))
	for _, snap := range snaps {
		entries = append(entries, snapshotEntry{
			CapturedAt:           snap.CapturedAt.Format(time.RFC3339),
			TotalEligible:        snap.Stats.TotalEligible,
			WithPortalAccount:    snap.Stats.WithPortalAccount,
			WithoutPortalAccount: snap.Stats.WithoutPortalAccount,
			AdoptionRateBps:      snap.Stats.AdoptionRateBps,
		})
	}
	NewResponse().JSON(map[string]interface{}{
		"count":     len(entries),
		"snapshots": entries,
	}).Write(w)
}

// writeStatsError maps domain errors onto API statuses: malformed filters are
// the caller's fault, data source failures point upstream. The cause is
// forwarded verbatim so operators see what actually broke.
func (s *Server) writeStatsError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case core.IsInvalidFilterError(err):
		BadRequestError(err.Error()).Write(w)
	case core.IsDataSourceError(err):
		s.structured.LogError(r.Context(), "Statistics data source failed", err,
			log.ComponentStats, op, log.NewFields())
		BadGatewayError(err.Error()).Write(w)
	default:
		s.structured.LogError(r.Context(), "Statistics request failed", err,
			log.ComponentStats, op, log.NewFields())
		InternalServerError("statistics request failed").Write(w)
	}
}
