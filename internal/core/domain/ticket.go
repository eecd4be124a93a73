package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
)

// Validation limits for tickets.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 10000
)

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusOpen     TicketStatus = "open"
	StatusPending  TicketStatus = "pending"
	StatusResolved TicketStatus = "resolved"
	StatusClosed   TicketStatus = "closed"
)

// IsValid reports whether s is a known ticket status.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether work on the ticket is finished.
// Worklog timers never run on a terminal ticket.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// TicketPriority represents the urgency of a ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// IsValid reports whether p is a known priority.
func (p TicketPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// validTransitions defines the allowed ticket lifecycle moves.
var validTransitions = map[TicketStatus][]TicketStatus{
	StatusOpen:     {StatusPending, StatusResolved, StatusClosed},
	StatusPending:  {StatusOpen, StatusResolved, StatusClosed},
	StatusResolved: {StatusOpen, StatusClosed},
	StatusClosed:   {StatusOpen},
}

// Ticket is the core domain entity.
type Ticket struct {
	ID              int64
	ConversationID  uuid.UUID
	Title           string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	CustomerName    string
	AssigneeID      *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
}

// TicketParams holds the input for creating a ticket.
type TicketParams struct {
	Title        string
	Description  string
	Priority     TicketPriority
	CustomerName string
}

// NewTicket is a factory function to create a valid new ticket.
func NewTicket(params TicketParams) (*Ticket, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, apperrors.ErrTitleRequired
	}
	if len(title) > MaxTitleLength {
		return nil, apperrors.ErrTitleTooLong
	}
	if len(params.Description) > MaxDescriptionLength {
		return nil, apperrors.ErrDescriptionTooLong
	}

	priority := params.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		return nil, apperrors.ErrInvalidPriority
	}

	return &Ticket{
		ConversationID: uuid.New(),
		Title:          title,
		Description:    params.Description,
		Status:         StatusOpen,
		Priority:       priority,
		CustomerName:   params.CustomerName,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (t *Ticket) CanTransitionTo(next TicketStatus) bool {
	for _, s := range validTransitions[t.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// UpdateStatus changes the ticket's status, enforcing lifecycle rules.
func (t *Ticket) UpdateStatus(next TicketStatus) error {
	if !next.IsValid() {
		return apperrors.ErrInvalidStatus
	}
	if !t.CanTransitionTo(next) {
		return apperrors.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.Status = next
	t.UpdatedAt = &now

	switch next {
	case StatusResolved:
		t.ResolvedAt = &now
	case StatusClosed:
		t.ClosedAt = &now
		if t.ResolvedAt == nil {
			t.ResolvedAt = &now
		}
	case StatusOpen:
		// Reopening clears the completion marks so SLA clocks run again.
		t.ResolvedAt = nil
		t.ClosedAt = nil
	}
	return nil
}

// Assign sets or changes the assignee of the ticket.
func (t *Ticket) Assign(assigneeID uuid.UUID) error {
	if t.Status == StatusClosed {
		return apperrors.ErrCannotAssignClosed
	}
	t.AssigneeID = &assigneeID
	now := time.Now().UTC()
	t.UpdatedAt = &now
	return nil
}

// IsAssignedTo checks if the ticket is assigned to the given user.
func (t *Ticket) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// RecordResponse marks the first agent response time if not already set.
func (t *Ticket) RecordResponse(at time.Time) bool {
	if t.FirstResponseAt != nil {
		return false
	}
	at = at.UTC()
	t.FirstResponseAt = &at
	return true
}

// TicketSnapshot matches the API response shape for tickets.
type TicketSnapshot struct {
	ID              int64      `json:"id"`
	ConversationID  string     `json:"conversationId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	CustomerName    string     `json:"customerName"`
	AssigneeID      *string    `json:"assigneeId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt"`
	FirstResponseAt *time.Time `json:"firstResponseAt"`
	ResolvedAt      *time.Time `json:"resolvedAt"`
	ClosedAt        *time.Time `json:"closedAt"`
}

// NewTicketSnapshot builds a ticket snapshot from a domain ticket.
func NewTicketSnapshot(ticket *Ticket) TicketSnapshot {
	var assigneeID *string
	if ticket.AssigneeID != nil {
		value := ticket.AssigneeID.String()
		assigneeID = &value
	}

	return TicketSnapshot{
		ID:              ticket.ID,
		ConversationID:  ticket.ConversationID.String(),
		Title:           ticket.Title,
		Description:     ticket.Description,
		Status:          string(ticket.Status),
		Priority:        string(ticket.Priority),
		CustomerName:    ticket.CustomerName,
		AssigneeID:      assigneeID,
		CreatedAt:       ticket.CreatedAt.UTC(),
		UpdatedAt:       ticket.UpdatedAt,
		FirstResponseAt: ticket.FirstResponseAt,
		ResolvedAt:      ticket.ResolvedAt,
		ClosedAt:        ticket.ClosedAt,
	}
}

// TicketStatus returns the snapshot status as a typed value.
func (s TicketSnapshot) TicketStatus() TicketStatus {
	return TicketStatus(s.Status)
}

// AssignedToOther reports whether the ticket belongs to an agent other than
// userID. Unassigned tickets are not read-only for anyone.
func (s TicketSnapshot) AssignedToOther(userID string) bool {
	return s.AssigneeID != nil && *s.AssigneeID != userID
}

// AssignedTo reports whether userID is the ticket's assignee.
func (s TicketSnapshot) AssignedTo(userID string) bool {
	return s.AssigneeID != nil && *s.AssigneeID == userID
}

// TicketDetail is the full resync representation: GET /tickets/{id}.
type TicketDetail struct {
	Ticket   TicketSnapshot `json:"ticket"`
	Messages []Message      `json:"messages"`
}
