package core

import (
	"errors"
	"fmt"
)

// Data source names used in DataSourceError and in logging.
const (
	SourceHomeowners  = "homeowners"
	SourcePortalUsers = "portal_users"
)

// ErrDuplicateHomeowner marks a source collection that lists the same
// homeowner ID more than once. Duplicates are a data-integrity violation
// and are rejected, never silently collapsed.
var ErrDuplicateHomeowner = errors.New("duplicate homeowner id in source data")

// InvalidFilterError reports filter criteria that are malformed, as opposed
// to criteria that simply match nothing. It is raised before any data is
// fetched.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return "invalid filter criteria: " + e.Reason
}

// IsInvalidFilterError reports whether err is, or wraps, an InvalidFilterError.
func IsInvalidFilterError(err error) bool {
	var target *InvalidFilterError
	return errors.As(err, &target)
}

// DataSourceError reports that a backing collection could not be fetched, or
// that the fetched data is corrupt. The cause is carried unchanged; callers
// never receive partial statistics alongside one.
type DataSourceError struct {
	Source string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s data source: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// IsDataSourceError reports whether err is, or wraps, a DataSourceError.
func IsDataSourceError(err error) bool {
	var target *DataSourceError
	return errors.As(err, &target)
}
