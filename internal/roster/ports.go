package roster

import (
	"context"

	"ownerportal/internal/core"
)

// Ports for outbound roster adapters.
type (
	// HomeownerReader returns a snapshot of the homeowner collection.
	HomeownerReader interface {
		ListHomeowners(ctx context.Context) ([]core.Homeowner, error)
	}

	// PortalUserReader returns a snapshot of the portal account collection.
	PortalUserReader interface {
		ListPortalUsers(ctx context.Context) ([]core.PortalUser, error)
	}

	HomeownerWriter interface {
		AppendHomeowner(ctx context.Context, h core.Homeowner) (rowRef string, err error)
	}

	PortalUserWriter interface {
		AppendPortalUser(ctx context.Context, u core.PortalUser) (rowRef string, err error)
	}

	// PortalUserDeactivator switches an existing portal account off without
	// removing its record.
	PortalUserDeactivator interface {
		DeactivatePortalUser(ctx context.Context, id int64) error
	}
)
