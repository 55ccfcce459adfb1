package backend

import (
	"context"

	"ownerportal/internal/core"
	"ownerportal/internal/roster"
)

// Backend represents a unified registry backend that provides all necessary operations
type Backend interface {
	roster.HomeownerReader
	roster.PortalUserReader
	roster.HomeownerWriter
	roster.PortalUserWriter
	roster.PortalUserDeactivator
}

// HistoryStore reads persisted statistics snapshots. Only the sqlite backend
// provides one; the other backends leave it nil.
type HistoryStore interface {
	ListStatsSnapshots(ctx context.Context, limit int) ([]core.StatsSnapshot, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional extras
type BackendResult struct {
	Backend Backend
	History HistoryStore
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	RosterSheetName          string
	PortalSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Memory backend specific
	SeedDataDir string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
