package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

// AuthorizationService defines the port for checking actor permissions.
type AuthorizationService interface {
	Can(actor domain.Actor, permission string) bool
}

// CreateTicketParams defines the required input for creating a new ticket.
type CreateTicketParams struct {
	Title        string
	Description  string
	Priority     domain.TicketPriority
	CustomerName string
	Actor        domain.Actor
}

// UpdateStatusParams defines the input for changing a ticket's status.
type UpdateStatusParams struct {
	TicketID int64
	Status   domain.TicketStatus
	Actor    domain.Actor
}

// AssignTicketParams defines the input for assigning a ticket.
type AssignTicketParams struct {
	TicketID   int64
	AssigneeID uuid.UUID
	Actor      domain.Actor
}

// TicketService defines the ticket operations the collaboration view needs.
type TicketService interface {
	CreateTicket(ctx context.Context, params CreateTicketParams) (*domain.Ticket, error)
	GetTicketDetail(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketDetail, error)
	UpdateStatus(ctx context.Context, params UpdateStatusParams) (*domain.Ticket, error)
	AssignTicket(ctx context.Context, params AssignTicketParams) (*domain.Ticket, error)
	Shutdown()
}

// SendMessageParams is a send_message request together with its sender.
type SendMessageParams struct {
	Actor   domain.Actor
	Request domain.SendMessagePayload
}

// MessageService persists conversation messages and fans them out.
type MessageService interface {
	SendMessage(ctx context.Context, params SendMessageParams) (*domain.Message, error)
}

// PresenceService tracks which agents view which tickets.
type PresenceService interface {
	View(ctx context.Context, connectionID string, ticketID int64, viewer domain.Viewer) ([]domain.Viewer, error)
	Leave(ctx context.Context, connectionID string, ticketID int64) error
}

// StopWorklogParams defines the input for stopping a worklog session.
type StopWorklogParams struct {
	TicketID int64
	ReasonID string
	Reason   string
	Actor    domain.Actor
}

// WorklogService defines the work-time tracking operations.
type WorklogService interface {
	Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.Worklog, error)
	Stop(ctx context.Context, params StopWorklogParams) (*domain.Worklog, error)
	Summary(ctx context.Context, ticketID int64, actor domain.Actor) (domain.TimerState, error)
	StopReasons() []domain.StopReason
}

// SLAService computes SLA timers for a conversation.
type SLAService interface {
	Timers(ctx context.Context, conversationID uuid.UUID, actor domain.Actor) ([]domain.SLATimer, error)
}

// EventBroadcaster fans an envelope out to every connection in its room.
type EventBroadcaster interface {
	Broadcast(env domain.Envelope) error
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder receives operational counters from the use cases.
type Recorder interface {
	MessagePersisted()
	WorklogTransition(action string)
	SLAEvaluated(status string)
}
