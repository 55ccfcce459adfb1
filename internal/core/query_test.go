package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestFilterCriteriaValidate(t *testing.T) {
	if err := (FilterCriteria{HomeownerIDs: []int64{1, 2}}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (FilterCriteria{HomeownerIDs: []int64{}}).Validate(); err != nil {
		t.Fatalf("empty set is valid, got %v", err)
	}

	cases := []FilterCriteria{
		{},                             // nil set
		{HomeownerIDs: []int64{0}},     // zero id
		{HomeownerIDs: []int64{5, -2}}, // negative id
	}
	for i, f := range cases {
		err := f.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !IsInvalidFilterError(err) {
			t.Fatalf("case %d: expected InvalidFilterError, got %T", i, err)
		}
	}
}

func TestEligibleHomeownersExcludesInactive(t *testing.T) {
	owners := []Homeowner{
		{ID: 1, FirstName: "A", Inactive: nil},        // unknown stays in
		{ID: 2, FirstName: "B", Inactive: Bool(true)}, // excluded
	}
	got, err := EligibleHomeowners(owners, FilterCriteria{HomeownerIDs: []int64{1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []EligibleHomeowner{{ID: 1, FirstName: "A", DisplayName: "A"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EligibleHomeowners() = %+v, want %+v", got, want)
	}
}

func TestEligibleHomeownersHonorsFilter(t *testing.T) {
	owners := []Homeowner{
		{ID: 1, FirstName: "A"},
		{ID: 2, FirstName: "B", Inactive: Bool(false)},
		{ID: 3, FirstName: "C"},
	}

	got, err := EligibleHomeowners(owners, FilterCriteria{HomeownerIDs: []int64{2, 99}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("expected only owner 2, got %+v", got)
	}

	// every result must come from the filter set
	filter := FilterCriteria{HomeownerIDs: []int64{1, 3}}
	got, err = EligibleHomeowners(owners, filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allow := filter.IDSet()
	for _, e := range got {
		if _, ok := allow[e.ID]; !ok {
			t.Fatalf("owner %d not in filter set", e.ID)
		}
	}
}

func TestEligibleHomeownersEmptyFilterSelectsNothing(t *testing.T) {
	owners := []Homeowner{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}
	got, err := EligibleHomeowners(owners, FilterCriteria{HomeownerIDs: []int64{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty filter must select nothing, got %+v", got)
	}
}

func TestEligibleHomeownersDuplicateFilterIDs(t *testing.T) {
	owners := []Homeowner{{ID: 1, FirstName: "A"}, {ID: 2, FirstName: "B"}}
	got, err := EligibleHomeowners(owners, FilterCriteria{HomeownerIDs: []int64{1, 1, 1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("duplicate filter ids must not duplicate output, got %d rows", len(got))
	}
	seen := map[int64]bool{}
	for _, e := range got {
		if seen[e.ID] {
			t.Fatalf("owner %d appears twice", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestEligibleHomeownersRejectsDuplicateSourceRows(t *testing.T) {
	owners := []Homeowner{
		{ID: 1, FirstName: "A"},
		{ID: 1, FirstName: "A again"},
	}
	_, err := EligibleHomeowners(owners, FilterCriteria{HomeownerIDs: []int64{1}})
	if err == nil {
		t.Fatalf("expected error for duplicate source rows")
	}
	if !IsDataSourceError(err) {
		t.Fatalf("expected DataSourceError, got %T", err)
	}
	if !errors.Is(err, ErrDuplicateHomeowner) {
		t.Fatalf("expected ErrDuplicateHomeowner in chain, got %v", err)
	}
	var dse *DataSourceError
	if errors.As(err, &dse) && dse.Source != SourceHomeowners {
		t.Fatalf("Source = %q, want %q", dse.Source, SourceHomeowners)
	}
}

func TestEligibleHomeownersInvalidFilterBeforeSourceCheck(t *testing.T) {
	// a nil filter must be reported even when the snapshot is also corrupt
	owners := []Homeowner{{ID: 1}, {ID: 1}}
	_, err := EligibleHomeowners(owners, FilterCriteria{})
	if !IsInvalidFilterError(err) {
		t.Fatalf("expected InvalidFilterError first, got %v", err)
	}
}

func TestEligibleHomeownersDeterministic(t *testing.T) {
	owners := []Homeowner{
		{ID: 3, FirstName: "C"},
		{ID: 1, FirstName: "A"},
		{ID: 2, FirstName: "B", Inactive: Bool(true)},
	}
	filter := FilterCriteria{HomeownerIDs: []int64{1, 2, 3}}

	first, err := EligibleHomeowners(owners, filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := EligibleHomeowners(owners, filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same snapshot produced different results: %+v vs %+v", first, second)
	}
	// output follows roster order
	if first[0].ID != 3 || first[1].ID != 1 {
		t.Fatalf("expected roster order [3 1], got %+v", first)
	}
}
