package http

import (
	"net/http"
	"sync/atomic"

	"ownerportal/internal/core"
	"ownerportal/internal/log"
)

type homeownerEntry struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Inactive  *bool  `json:"inactive,omitempty"`
}

// handleHomeowners dispatches the homeowner collection routes.
func (s *Server) handleHomeowners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListHomeowners(w, r)
	case http.MethodPost:
		s.handleRegisterHomeowner(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

// handleListHomeowners returns the full roster, inactive owners included.
// The list is the raw registry view, not the eligibility projection.
func (s *Server) handleListHomeowners(w http.ResponseWriter, r *http.Request) {
	owners, err := s.registry.ListHomeowners(r.Context())
	if err != nil {
		s.structured.LogError(r.Context(), "Homeowner list failed", err,
			log.ComponentRoster, log.OpList, log.NewFields())
		BadGatewayError("homeowner roster unavailable").Write(w)
		return
	}

	entries := make([]homeownerEntry, 0, len(owners))
	for _, h := range owners {
		entries = append(entries, homeownerEntry{
			ID:        h.ID,
			FirstName: h.FirstName,
			LastName:  h.LastName,
			Email:     h.Email,
			Inactive:  h.Inactive,
		})
	}
	NewResponse().JSON(map[string]interface{}{
		"count":      len(entries),
		"homeowners": entries,
	}).Write(w)
}

type registerHomeownerRequest struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Inactive  *bool  `json:"inactive"`
}

// handleRegisterHomeowner adds an owner to the roster. The caller supplies
// the ID: homeowner identity comes from the property records, the registry
// does not mint it. An omitted inactive flag stays unknown.
func (s *Server) handleRegisterHomeowner(w http.ResponseWriter, r *http.Request) {
	var req registerHomeownerRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		BadRequestError("request body must be a JSON homeowner: " + err.Error()).Write(w)
		return
	}

	h := core.Homeowner{
		ID:        req.ID,
		FirstName: sanitizeInput(req.FirstName),
		LastName:  sanitizeInput(req.LastName),
		Email:     sanitizeInput(req.Email),
		Inactive:  req.Inactive,
	}
	if err := h.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ref, err := s.registry.AppendHomeowner(r.Context(), h)
	if err != nil {
		if isAlreadyExists(err) {
			ConflictError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Homeowner registration failed", err,
			log.ComponentRoster, log.OpRegister, log.NewFields().WithHomeowner(h.ID))
		InternalServerError("homeowner registration failed").Write(w)
		return
	}

	// Track successful registration and drop stale query answers
	atomic.AddInt64(&s.appMetrics.totalRegistrations, 1)
	s.purgeQueryCaches()

	s.logger.InfoContext(r.Context(), "Homeowner registered",
		log.FieldHomeownerID, h.ID,
		log.FieldRowRef, ref,
		log.FieldOperation, log.OpRegister)

	NewResponse().Status(http.StatusCreated).JSON(map[string]interface{}{
		"id":  h.ID,
		"ref": ref,
	}).Write(w)
}
