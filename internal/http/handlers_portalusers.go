package http

import (
	"net/http"
	"sync/atomic"

	"ownerportal/internal/core"
	"ownerportal/internal/log"
)

type portalUserEntry struct {
	ID          int64  `json:"id"`
	HomeownerID int64  `json:"homeowner_id"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

// handlePortalUsers dispatches the portal account collection routes.
func (s *Server) handlePortalUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListPortalUsers(w, r)
	case http.MethodPost:
		s.handleRegisterPortalUser(w, r)
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

func (s *Server) handleListPortalUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.registry.ListPortalUsers(r.Context())
	if err != nil {
		s.structured.LogError(r.Context(), "Portal account list failed", err,
			log.ComponentRoster, log.OpList, log.NewFields())
		BadGatewayError("portal account roster unavailable").Write(w)
		return
	}

	entries := make([]portalUserEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, portalUserEntry{
			ID:          u.ID,
			HomeownerID: u.HomeownerID,
			Email:       u.Email,
			Active:      u.Active,
		})
	}
	NewResponse().JSON(map[string]interface{}{
		"count":        len(entries),
		"portal_users": entries,
	}).Write(w)
}

type registerPortalUserRequest struct {
	ID          int64  `json:"id"`
	HomeownerID int64  `json:"homeowner_id"`
	Email       string `json:"email"`
}

// handleRegisterPortalUser links a new self-service account to a homeowner.
// A zero ID lets the registry assign one. Registered accounts start active;
// switching one off is a separate operation.
func (s *Server) handleRegisterPortalUser(w http.ResponseWriter, r *http.Request) {
	var req registerPortalUserRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		BadRequestError("request body must be a JSON portal account: " + err.Error()).Write(w)
		return
	}

	u := core.PortalUser{
		ID:          req.ID,
		HomeownerID: req.HomeownerID,
		Email:       sanitizeInput(req.Email),
		Active:      true,
	}
	if err := u.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ref, err := s.registry.AppendPortalUser(r.Context(), u)
	if err != nil {
		if isAlreadyExists(err) {
			ConflictError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Portal account registration failed", err,
			log.ComponentRoster, log.OpRegister, log.NewFields().WithHomeowner(u.HomeownerID))
		InternalServerError("portal account registration failed").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.totalRegistrations, 1)
	s.purgeQueryCaches()

	s.logger.InfoContext(r.Context(), "Portal account registered",
		log.FieldHomeownerID, u.HomeownerID,
		log.FieldRowRef, ref,
		log.FieldOperation, log.OpRegister)

	NewResponse().Status(http.StatusCreated).JSON(map[string]interface{}{
		"homeowner_id": u.HomeownerID,
		"ref":          ref,
	}).Write(w)
}

type deactivateRequest struct {
	ID int64 `json:"id"`
}

// handleDeactivatePortalUser switches an account off. The homeowner stays on
// the roster and counts as unregistered from here on.
func (s *Server) handleDeactivatePortalUser(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodPost, http.MethodDelete); resp != nil {
		resp.Write(w)
		return
	}

	var req deactivateRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		BadRequestError("request body must name a portal account: " + err.Error()).Write(w)
		return
	}
	if req.ID <= 0 {
		UnprocessableEntityError("portal account id must be positive").Write(w)
		return
	}

	if err := s.registry.DeactivatePortalUser(r.Context(), req.ID); err != nil {
		if isNotFound(err) {
			NotFoundError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Portal account deactivation failed", err,
			log.ComponentRoster, log.OpDeactivate, log.NewFields().WithPortalUser(req.ID))
		InternalServerError("portal account deactivation failed").Write(w)
		return
	}

	s.purgeQueryCaches()

	s.logger.InfoContext(r.Context(), "Portal account deactivated",
		log.FieldPortalUserID, req.ID,
		log.FieldOperation, log.OpDeactivate)

	NewResponse().JSON(map[string]interface{}{
		"id":     req.ID,
		"active": false,
	}).Write(w)
}
