package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

// TicketRepository persists tickets.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
}

// MessageRepository persists conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
}

// WorklogRepository persists worklog sessions. Create fails with
// ErrWorklogAlreadyActive when the pair already has an open session.
type WorklogRepository interface {
	Create(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error)
	GetActive(ctx context.Context, ticketID int64, agentID uuid.UUID) (*domain.Worklog, error)
	Close(ctx context.Context, w *domain.Worklog) (*domain.Worklog, error)
	ListByTicketAndAgent(ctx context.Context, ticketID int64, agentID uuid.UUID) ([]*domain.Worklog, error)
}

// ViewerRegistry stores one presence entry per (ticket, connection).
type ViewerRegistry interface {
	Add(ctx context.Context, ticketID int64, connectionID string, viewer domain.Viewer) error
	// Remove deletes the connection's entry and returns the viewer it held.
	Remove(ctx context.Context, ticketID int64, connectionID string) (*domain.Viewer, error)
	// List returns every entry, one per connection.
	List(ctx context.Context, ticketID int64) ([]domain.Viewer, error)
}

// SLAPolicySource provides the configured SLA policies.
type SLAPolicySource interface {
	Policies() []domain.SLAPolicy
}
