package core

import "fmt"

// Validate checks that the criteria are well formed. A nil ID list is
// malformed (a set is always required, possibly empty), and IDs must be
// positive. Matching nothing is not a validation failure.
func (f FilterCriteria) Validate() error {
	if f.HomeownerIDs == nil {
		return &InvalidFilterError{Reason: "homeowner id set is required"}
	}
	for _, id := range f.HomeownerIDs {
		if id <= 0 {
			return &InvalidFilterError{Reason: fmt.Sprintf("homeowner id must be positive, got %d", id)}
		}
	}
	return nil
}

// IDSet returns the filter as a set. Duplicates in the caller's list collapse
// here, which is what keeps them from duplicating query output.
func (f FilterCriteria) IDSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(f.HomeownerIDs))
	for _, id := range f.HomeownerIDs {
		set[id] = struct{}{}
	}
	return set
}

// EligibleHomeowners runs the query pipeline over a roster snapshot:
// validate the filter, reject duplicate source rows, drop owners explicitly
// marked inactive, keep the allow-listed ones, project the rest. Each stage
// materializes its output so the stages stay testable in isolation.
//
// The pipeline iterates the roster, not the filter list, so output order
// follows the snapshot and is deterministic for a given input.
func EligibleHomeowners(owners []Homeowner, filter FilterCriteria) ([]EligibleHomeowner, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := checkUniqueOwners(owners); err != nil {
		return nil, err
	}
	return project(allowListed(notInactive(owners), filter.IDSet())), nil
}

func checkUniqueOwners(owners []Homeowner) error {
	seen := make(map[int64]struct{}, len(owners))
	for _, h := range owners {
		if _, dup := seen[h.ID]; dup {
			return &DataSourceError{
				Source: SourceHomeowners,
				Err:    fmt.Errorf("%w: id %d", ErrDuplicateHomeowner, h.ID),
			}
		}
		seen[h.ID] = struct{}{}
	}
	return nil
}

func notInactive(owners []Homeowner) []Homeowner {
	kept := make([]Homeowner, 0, len(owners))
	for _, h := range owners {
		if h.IsInactive() {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func allowListed(owners []Homeowner, allow map[int64]struct{}) []Homeowner {
	kept := make([]Homeowner, 0, len(owners))
	for _, h := range owners {
		if _, ok := allow[h.ID]; !ok {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func project(owners []Homeowner) []EligibleHomeowner {
	out := make([]EligibleHomeowner, 0, len(owners))
	for _, h := range owners {
		out = append(out, EligibleHomeowner{
			ID:          h.ID,
			FirstName:   h.FirstName,
			LastName:    h.LastName,
			DisplayName: h.DisplayName(),
		})
	}
	return out
}
