package core

import (
	"errors"
	"strings"
)

type (
	// Homeowner is a roster entry for a property owner. The Inactive flag is
	// tri-state: the roster can mark an owner inactive, mark them active, or
	// say nothing at all (nil). Only an explicit "inactive" excludes the
	// owner from queries.
	Homeowner struct {
		ID        int64
		FirstName string
		LastName  string
		Email     string
		Inactive  *bool
	}

	// PortalUser is a self-service portal account linked to a homeowner.
	// A homeowner with no account is normal data, not an error.
	PortalUser struct {
		ID          int64 // Registry ID, zero before the first insert
		HomeownerID int64
		Email       string
		Active      bool
	}

	// FilterCriteria selects the homeowners a caller is asking about.
	// The ID list is a required set: nil means the caller never built one,
	// while an empty list legitimately selects nothing.
	FilterCriteria struct {
		HomeownerIDs []int64
	}

	// EligibleHomeowner is the projection produced by the query pipeline.
	EligibleHomeowner struct {
		ID          int64
		FirstName   string
		LastName    string
		DisplayName string
	}
)

var (
	ErrInvalidHomeownerID  = errors.New("homeowner id must be positive")
	ErrInvalidPortalUserID = errors.New("portal user id must not be negative")
	ErrEmptyName           = errors.New("homeowner name must not be empty")
	ErrNameTooLong         = errors.New("name too long (max 100 characters)")
	ErrInvalidEmail        = errors.New("email must contain @")
)

// Bool returns a pointer to v, for building tri-state flags.
func Bool(v bool) *bool { return &v }

// IsInactive reports whether the roster explicitly marks the owner inactive.
// An unknown flag counts as not inactive.
func (h Homeowner) IsInactive() bool {
	return h.Inactive != nil && *h.Inactive
}

// DisplayName joins the name parts, tolerating a missing one.
func (h Homeowner) DisplayName() string {
	first := strings.TrimSpace(h.FirstName)
	last := strings.TrimSpace(h.LastName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

func (h Homeowner) Validate() error {
	if h.ID <= 0 {
		return ErrInvalidHomeownerID
	}
	if strings.TrimSpace(h.FirstName) == "" && strings.TrimSpace(h.LastName) == "" {
		return ErrEmptyName
	}
	if len(h.FirstName) > 100 || len(h.LastName) > 100 {
		return ErrNameTooLong
	}
	if h.Email != "" && !strings.Contains(h.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

func (u PortalUser) Validate() error {
	if u.ID < 0 {
		return ErrInvalidPortalUserID
	}
	if u.HomeownerID <= 0 {
		return ErrInvalidHomeownerID
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
