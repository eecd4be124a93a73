package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// PresenceService keeps the viewer registry and announces joins and leaves.
// A user with several connections on one ticket joins once and leaves when
// the last of them goes away.
type PresenceService struct {
	registry    ports.ViewerRegistry
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
}

var _ ports.PresenceService = (*PresenceService)(nil)

// NewPresenceService creates a new presence service
func NewPresenceService(registry ports.ViewerRegistry, broadcaster ports.EventBroadcaster, logger *slog.Logger) *PresenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceService{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger.With("component", "presence_service"),
	}
}

// View registers the connection as viewing the ticket and returns the
// current viewer set, one entry per user.
func (s *PresenceService) View(ctx context.Context, connectionID string, ticketID int64, viewer domain.Viewer) ([]domain.Viewer, error) {
	before, err := s.registry.List(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list viewers: %w", err)
	}

	if err := s.registry.Add(ctx, ticketID, connectionID, viewer); err != nil {
		return nil, fmt.Errorf("add viewer: %w", err)
	}

	if !containsUser(before, viewer.UserID) {
		s.broadcast(ticketID, domain.EventViewerJoined, domain.ViewerJoinedPayload{TicketID: ticketID, Viewer: viewer})
	}

	after, err := s.registry.List(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list viewers: %w", err)
	}
	return domain.UniqueViewers(after), nil
}

// Leave drops the connection's entry. Unknown entries are ignored.
func (s *PresenceService) Leave(ctx context.Context, connectionID string, ticketID int64) error {
	removed, err := s.registry.Remove(ctx, ticketID, connectionID)
	if err != nil {
		return fmt.Errorf("remove viewer: %w", err)
	}
	if removed == nil {
		return nil
	}

	remaining, err := s.registry.List(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list viewers: %w", err)
	}
	if !containsUser(remaining, removed.UserID) {
		s.broadcast(ticketID, domain.EventViewerLeft, domain.ViewerLeftPayload{TicketID: ticketID, UserID: removed.UserID})
	}
	return nil
}

func (s *PresenceService) broadcast(ticketID int64, event domain.EventType, payload any) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		s.logger.Error("failed to build presence event", "event", event, "error", err)
		return
	}
	env.Room = domain.TicketRoom(ticketID)
	if err := s.broadcaster.Broadcast(env); err != nil {
		s.logger.Warn("failed to broadcast presence event", "event", event, "ticket_id", ticketID, "error", err)
	}
}

func containsUser(viewers []domain.Viewer, userID string) bool {
	for _, v := range viewers {
		if v.UserID == userID {
			return true
		}
	}
	return false
}
