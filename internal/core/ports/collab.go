package ports

import (
	"context"

	"github.com/lorrc/ticket-collab/internal/core/domain"
)

// Channel is the client's persistent event connection to the gateway.
// Events delivers inbound envelopes plus local channel:* lifecycle events.
type Channel interface {
	ConnectionID() string
	Events() <-chan domain.Envelope
	Emit(ctx context.Context, event domain.EventType, payload any) error
	// Request sends an envelope with an ack id and waits for the reply.
	Request(ctx context.Context, event domain.EventType, payload any) (domain.Envelope, error)
}

// TicketReader fetches the full ticket representation.
type TicketReader interface {
	GetTicket(ctx context.Context, ticketID int64) (*domain.TicketDetail, error)
}

// WorklogClient drives the gateway's worklog endpoints.
type WorklogClient interface {
	StartWorklog(ctx context.Context, ticketID int64) error
	StopWorklog(ctx context.Context, ticketID int64, reasonID, reason string) error
	GetWorklogs(ctx context.Context, ticketID int64) (*domain.TimerState, error)
}

// SLAClient reads SLA timers.
type SLAClient interface {
	GetSLATimers(ctx context.Context, conversationID string) ([]domain.SLATimer, error)
}
