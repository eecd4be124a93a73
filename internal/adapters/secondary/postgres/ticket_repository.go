package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

const ticketColumns = `id, conversation_id, title, description, status, priority, customer_name,
assignee_id, created_at, updated_at, first_response_at, resolved_at, closed_at`

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t        domain.Ticket
		status   string
		priority string
	)
	err := row.Scan(
		&t.ID,
		&t.ConversationID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&t.CustomerName,
		&t.AssigneeID,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.FirstResponseAt,
		&t.ResolvedAt,
		&t.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.Priority = domain.TicketPriority(priority)
	return &t, nil
}

// Create persists a new ticket entity.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
INSERT INTO tickets (conversation_id, title, description, status, priority, customer_name, assignee_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + ticketColumns

	conversationID := ticket.ConversationID
	if conversationID == uuid.Nil {
		conversationID = uuid.New()
	}
	status := ticket.Status
	if status == "" {
		status = domain.StatusOpen
	}
	createdAt := ticket.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		conversationID,
		ticket.Title,
		ticket.Description,
		string(status),
		string(ticket.Priority),
		ticket.CustomerName,
		ticket.AssigneeID,
		createdAt,
	)
	return scanTicket(row)
}

// GetByID retrieves a single ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	return scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByConversationID retrieves the ticket owning a conversation.
func (r *TicketRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE conversation_id = $1`
	return scanTicket(GetDBTX(ctx, r.pool).QueryRow(ctx, query, conversationID))
}

// Update writes the mutable fields of a ticket back.
func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
UPDATE tickets
SET title = $2,
    description = $3,
    status = $4,
    priority = $5,
    customer_name = $6,
    assignee_id = $7,
    updated_at = COALESCE($8, now()),
    first_response_at = $9,
    resolved_at = $10,
    closed_at = $11
WHERE id = $1
RETURNING ` + ticketColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.CustomerName,
		ticket.AssigneeID,
		ticket.UpdatedAt,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	)
	return scanTicket(row)
}
