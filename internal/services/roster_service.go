package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"ownerportal/internal/amqp"
	"ownerportal/internal/core"
	"ownerportal/internal/storage"
)

// SyncPublisher emits change notifications for registry rows. The AMQP client
// implements it; with a nil publisher the rows wait for the poll-based
// processor instead.
type SyncPublisher interface {
	PublishRosterSync(ctx context.Context, kind string, id, version int64) error
}

// RosterService orchestrates registry writes across SQLite and AMQP
type RosterService struct {
	storage   *storage.SQLiteRepository
	publisher SyncPublisher
}

func NewRosterService(storage *storage.SQLiteRepository, publisher SyncPublisher) *RosterService {
	return &RosterService{
		storage:   storage,
		publisher: publisher,
	}
}

// RegisterHomeowner saves a homeowner locally and notifies the sync worker
func (s *RosterService) RegisterHomeowner(ctx context.Context, h core.Homeowner) (string, error) {
	// Save to SQLite first (fast, reliable)
	ref, err := s.storage.AppendHomeowner(ctx, h)
	if err != nil {
		return "", fmt.Errorf("save homeowner: %w", err)
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse homeowner ref", "ref", ref, "error", err)
		return ref, nil // Return anyway, the registry save succeeded
	}

	// Publish async sync message (non-blocking, version 1 for a new row)
	if err := s.publishSync(ctx, amqp.KindHomeowner, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish roster sync message",
			"kind", amqp.KindHomeowner, "id", id, "error", err)
		// Don't fail the request - the row is saved locally
	}

	return ref, nil
}

// RegisterPortalUser saves a portal account locally and notifies the sync worker
func (s *RosterService) RegisterPortalUser(ctx context.Context, u core.PortalUser) (string, error) {
	ref, err := s.storage.AppendPortalUser(ctx, u)
	if err != nil {
		return "", fmt.Errorf("save portal user: %w", err)
	}

	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse portal user ref", "ref", ref, "error", err)
		return ref, nil
	}

	if err := s.publishSync(ctx, amqp.KindPortalUser, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish roster sync message",
			"kind", amqp.KindPortalUser, "id", id, "error", err)
	}

	return ref, nil
}

// DeactivatePortalUser switches an account off locally and notifies the sync
// worker with the bumped row version
func (s *RosterService) DeactivatePortalUser(ctx context.Context, id int64) error {
	version, err := s.storage.DeactivatePortalUser(ctx, id)
	if err != nil {
		return fmt.Errorf("deactivate portal account: %w", err)
	}

	if err := s.publishSync(ctx, amqp.KindPortalUser, id, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish roster sync message",
			"kind", amqp.KindPortalUser, "id", id, "error", err)
		// The row stays pending, the poll sweep picks it up
	}

	return nil
}

func (s *RosterService) publishSync(ctx context.Context, kind string, id, version int64) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Sync publisher not configured, row waits for the poll worker",
			"kind", kind, "id", id)
		return nil
	}

	return s.publisher.PublishRosterSync(ctx, kind, id, version)
}

// Close closes the registry store and the message publisher
func (s *RosterService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close roster service: %v", errs)
	}

	return nil
}
