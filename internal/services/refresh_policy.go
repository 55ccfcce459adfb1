// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for roster import dueness.
// Each policy encapsulates one rule for deciding when the registry should
// re-import the back-office roster sheet.

package services

import (
	"fmt"
	"time"
)

// Import policy names accepted by GetImportPolicy.
const (
	PolicyEmpty  = "empty"
	PolicyAge    = "age"
	PolicyAlways = "always"
)

// ImportPolicy is the strategy interface for deciding whether a roster import
// should run.
type ImportPolicy interface {
	// ShouldImport returns true if the registry should re-import the roster
	// sheet, given the last import time and the current registry size.
	ShouldImport(lastImport, now time.Time, homeowners int64) bool
}

// EmptyRegistryPolicy imports only while the registry holds no homeowners.
// Once seeded, the registry is never touched again.
type EmptyRegistryPolicy struct{}

func (EmptyRegistryPolicy) ShouldImport(_, _ time.Time, homeowners int64) bool {
	return homeowners == 0
}

// MaxAgePolicy imports when the registry copy of the roster is stale.
type MaxAgePolicy struct {
	MaxAge time.Duration
}

// ShouldImport returns true if no import ever ran, the registry is empty, or
// the last import is older than MaxAge.
func (p MaxAgePolicy) ShouldImport(lastImport, now time.Time, homeowners int64) bool {
	if homeowners == 0 {
		return true
	}
	if lastImport.IsZero() {
		return true
	}
	return now.Sub(lastImport) >= p.MaxAge
}

// AlwaysPolicy imports on every check.
type AlwaysPolicy struct{}

func (AlwaysPolicy) ShouldImport(_, _ time.Time, _ int64) bool {
	return true
}

// importPolicies maps policy names to their constructors. The maxAge argument
// only matters to the age policy.
var importPolicies = map[string]func(maxAge time.Duration) ImportPolicy{
	PolicyEmpty:  func(time.Duration) ImportPolicy { return EmptyRegistryPolicy{} },
	PolicyAge:    func(maxAge time.Duration) ImportPolicy { return MaxAgePolicy{MaxAge: maxAge} },
	PolicyAlways: func(time.Duration) ImportPolicy { return AlwaysPolicy{} },
}

// GetImportPolicy returns the policy registered under name.
// Returns an error if the name is not recognized.
func GetImportPolicy(name string, maxAge time.Duration) (ImportPolicy, error) {
	build, ok := importPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown import policy: %s", name)
	}
	return build(maxAge), nil
}

// RegisterImportPolicy registers a custom policy constructor under name,
// allowing new freshness rules without touching the existing ones.
func RegisterImportPolicy(name string, build func(maxAge time.Duration) ImportPolicy) {
	importPolicies[name] = build
}
