package backend

import (
	"fmt"
	"os"

	"ownerportal/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		// SQLite configuration
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		// Google Sheets configuration
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		RosterSheetName:          appConfig.RosterSheetName,
		PortalSheetName:          appConfig.PortalSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,

		// Memory backend seeds from flat files
		SeedDataDir: appConfig.SeedDataDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		// AMQP is optional, so we don't validate it

	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.RosterSheetName == "" {
			return fmt.Errorf("roster sheet name is required for sheets backend")
		}
		if c.PortalSheetName == "" {
			return fmt.Errorf("portal sheet name is required for sheets backend")
		}

		// Must have credentials from a file, inline JSON, or the ambient
		// GOOGLE_APPLICATION_CREDENTIALS variable the client also honors
		hasAccountFile := c.GoogleServiceAccountFile != ""
		hasAccountJSON := c.GoogleServiceAccountJSON != ""
		hasAmbientCreds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
		if !hasAccountFile && !hasAccountJSON && !hasAmbientCreds {
			return fmt.Errorf("either GoogleServiceAccountFile or GoogleServiceAccountJSON must be provided for sheets backend")
		}

	case MemoryBackend:
		// Memory backend doesn't require additional validation
		// SeedDataDir will default to "data" if empty
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
