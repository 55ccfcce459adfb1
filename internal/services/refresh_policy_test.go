package services

import (
	"testing"
	"time"
)

func TestEmptyRegistryPolicy_ShouldImport(t *testing.T) {
	policy := EmptyRegistryPolicy{}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastImport time.Time
		homeowners int64
		want       bool
	}{
		{
			name:       "empty registry - import",
			lastImport: time.Time{},
			homeowners: 0,
			want:       true,
		},
		{
			name:       "seeded registry - no import",
			lastImport: now.Add(-30 * 24 * time.Hour),
			homeowners: 12,
			want:       false,
		},
		{
			name:       "seeded but never recorded - no import",
			lastImport: time.Time{},
			homeowners: 1,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.ShouldImport(tt.lastImport, now, tt.homeowners)
			if got != tt.want {
				t.Errorf("EmptyRegistryPolicy.ShouldImport() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxAgePolicy_ShouldImport(t *testing.T) {
	policy := MaxAgePolicy{MaxAge: 7 * 24 * time.Hour}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastImport time.Time
		homeowners int64
		want       bool
	}{
		{
			name:       "never imported - import",
			lastImport: time.Time{},
			homeowners: 12,
			want:       true,
		},
		{
			name:       "empty registry - import",
			lastImport: now.Add(-time.Hour),
			homeowners: 0,
			want:       true,
		},
		{
			name:       "imported 3 days ago - no import",
			lastImport: now.Add(-3 * 24 * time.Hour),
			homeowners: 12,
			want:       false,
		},
		{
			name:       "imported exactly 7 days ago - import",
			lastImport: now.Add(-7 * 24 * time.Hour),
			homeowners: 12,
			want:       true,
		},
		{
			name:       "imported 10 days ago - import",
			lastImport: now.Add(-10 * 24 * time.Hour),
			homeowners: 12,
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.ShouldImport(tt.lastImport, now, tt.homeowners)
			if got != tt.want {
				t.Errorf("MaxAgePolicy.ShouldImport() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlwaysPolicy_ShouldImport(t *testing.T) {
	policy := AlwaysPolicy{}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	if !policy.ShouldImport(time.Time{}, now, 0) {
		t.Error("AlwaysPolicy.ShouldImport() = false for an empty registry, want true")
	}
	if !policy.ShouldImport(now.Add(-time.Minute), now, 500) {
		t.Error("AlwaysPolicy.ShouldImport() = false for a fresh import, want true")
	}
}

func TestGetImportPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		wantErr bool
	}{
		{"empty", PolicyEmpty, false},
		{"age", PolicyAge, false},
		{"always", PolicyAlways, false},
		{"unknown", "hourly", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := GetImportPolicy(tt.policy, 24*time.Hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetImportPolicy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && policy == nil {
				t.Error("GetImportPolicy() returned nil policy")
			}
		})
	}
}

func TestGetImportPolicy_AgeParameter(t *testing.T) {
	policy, err := GetImportPolicy(PolicyAge, 48*time.Hour)
	if err != nil {
		t.Fatalf("GetImportPolicy() error = %v", err)
	}

	aged, ok := policy.(MaxAgePolicy)
	if !ok {
		t.Fatalf("GetImportPolicy(%q) returned %T, want MaxAgePolicy", PolicyAge, policy)
	}
	if aged.MaxAge != 48*time.Hour {
		t.Errorf("MaxAge = %v, want 48h", aged.MaxAge)
	}
}

func TestRegisterImportPolicy(t *testing.T) {
	customName := "never"
	RegisterImportPolicy(customName, func(time.Duration) ImportPolicy {
		return EmptyRegistryPolicy{} // Stands in for a custom rule
	})

	policy, err := GetImportPolicy(customName, 0)
	if err != nil {
		t.Errorf("GetImportPolicy() after register error = %v", err)
	}
	if policy == nil {
		t.Error("GetImportPolicy() returned nil after registration")
	}

	// Cleanup - remove the custom policy to avoid affecting other tests
	delete(importPolicies, customName)
}
