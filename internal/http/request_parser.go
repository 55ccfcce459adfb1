// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data. The statistics endpoints accept either a JSON document or
// form-encoded fields, so API clients and plain curl calls both work.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ownerportal/internal/core"
)

// maxBodyBytes caps request bodies. Filter lists are bounded in practice.
const maxBodyBytes = 1 << 20 // 1MB

// filterDocument is the JSON shape of a statistics filter.
type filterDocument struct {
	HomeownerIDs []int64 `json:"homeowner_ids"`
}

// ParseFilterCriteria reads the homeowner filter from the request body.
// JSON bodies use {"homeowner_ids": [...]}, form bodies a comma separated
// homeowner_ids field. An absent field stays nil, so validation can tell
// "the caller never built a filter" apart from "an empty one".
func ParseFilterCriteria(r *http.Request) (core.FilterCriteria, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.FilterCriteria{}, err
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return core.FilterCriteria{}, nil
	}

	// Try JSON first if content looks like JSON
	if trimmed[0] == '{' {
		var doc filterDocument
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return core.FilterCriteria{}, err
		}
		return core.FilterCriteria{HomeownerIDs: doc.HomeownerIDs}, nil
	}

	// Fall back to form parsing
	form, err := url.ParseQuery(trimmed)
	if err != nil {
		return core.FilterCriteria{}, err
	}
	if !form.Has("homeowner_ids") {
		return core.FilterCriteria{}, nil
	}
	ids, err := parseIDList(form.Get("homeowner_ids"))
	if err != nil {
		return core.FilterCriteria{}, err
	}
	return core.FilterCriteria{HomeownerIDs: ids}, nil
}

// parseIDList splits a comma separated ID list. An empty string is a valid
// empty list, not an error.
func parseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, errors.New("homeowner_ids must be a comma separated list of integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DecodeJSONBody decodes a JSON request body into dst, rejecting empty and
// oversized bodies.
func DecodeJSONBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(body, dst)
}

// ParseLimitParam reads a limit query parameter, falling back to def when the
// value is absent or malformed and clamping to max.
func ParseLimitParam(query url.Values, def, max int) int {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *ResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *ResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET is a convenience function for GET-only handlers.
func RequireGET(r *http.Request) *ResponseBuilder {
	return RequireMethod(r, http.MethodGet)
}
