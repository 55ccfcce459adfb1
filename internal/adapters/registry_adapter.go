package adapters

import (
	"context"

	"ownerportal/internal/core"
	"ownerportal/internal/services"
	"ownerportal/internal/storage"
)

// RegistryAdapter adapts SQLiteRepository and RosterService to implement the roster.* interfaces.
// Reads go straight to the local store; writes go through the service so the
// sync worker hears about them.
type RegistryAdapter struct {
	storage *storage.SQLiteRepository
	service *services.RosterService
}

func NewRegistryAdapter(storage *storage.SQLiteRepository, service *services.RosterService) *RegistryAdapter {
	return &RegistryAdapter{
		storage: storage,
		service: service,
	}
}

// ListHomeowners implements roster.HomeownerReader
func (a *RegistryAdapter) ListHomeowners(ctx context.Context) ([]core.Homeowner, error) {
	return a.storage.ListHomeowners(ctx)
}

// ListPortalUsers implements roster.PortalUserReader
func (a *RegistryAdapter) ListPortalUsers(ctx context.Context) ([]core.PortalUser, error) {
	return a.storage.ListPortalUsers(ctx)
}

// AppendHomeowner implements roster.HomeownerWriter
func (a *RegistryAdapter) AppendHomeowner(ctx context.Context, h core.Homeowner) (string, error) {
	return a.service.RegisterHomeowner(ctx, h)
}

// AppendPortalUser implements roster.PortalUserWriter
func (a *RegistryAdapter) AppendPortalUser(ctx context.Context, u core.PortalUser) (string, error) {
	return a.service.RegisterPortalUser(ctx, u)
}

// DeactivatePortalUser implements roster.PortalUserDeactivator
func (a *RegistryAdapter) DeactivatePortalUser(ctx context.Context, id int64) error {
	return a.service.DeactivatePortalUser(ctx, id)
}
