package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/mocks"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/lorrc/ticket-collab/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ticketFixture struct {
	tickets     *mocks.MockTicketRepository
	messages    *mocks.MockMessageRepository
	authz       *mocks.MockAuthorizationService
	broadcaster *mocks.MockEventBroadcaster
	svc         *services.TicketService
}

func newTicketFixture() *ticketFixture {
	f := &ticketFixture{
		tickets:     mocks.NewMockTicketRepository(),
		messages:    mocks.NewMockMessageRepository(),
		authz:       mocks.NewMockAuthorizationService(),
		broadcaster: mocks.NewMockEventBroadcaster(),
	}
	f.svc = services.NewTicketService(f.tickets, f.messages, f.authz, f.broadcaster, nil)
	return f
}

func openTicket(id int64) *domain.Ticket {
	return &domain.Ticket{
		ID:             id,
		ConversationID: uuid.New(),
		Title:          "Printer on fire",
		Status:         domain.StatusOpen,
		Priority:       domain.PriorityHigh,
		CreatedAt:      time.Now().UTC().Add(-time.Hour),
	}
}

func ticketUpdatedIn(room string) any {
	return mock.MatchedBy(func(env domain.Envelope) bool {
		return env.Event == domain.EventTicketUpdated && env.Room == room
	})
}

func TestTicketService_CreateTicket(t *testing.T) {
	ctx := context.Background()
	actor := domain.Actor{ID: uuid.New(), Name: "Cora", Role: domain.SenderCustomer}

	t.Run("success", func(t *testing.T) {
		f := newTicketFixture()
		f.authz.On("Can", actor, services.PermTicketsCreate).Return(true)
		f.tickets.On("Create", ctx, mock.MatchedBy(func(tk *domain.Ticket) bool {
			return tk.Title == "Printer on fire" && tk.CustomerName == "Cora" && tk.Status == domain.StatusOpen
		})).Return(openTicket(1), nil)

		ticket, err := f.svc.CreateTicket(ctx, ports.CreateTicketParams{
			Title:    "Printer on fire",
			Priority: domain.PriorityHigh,
			Actor:    actor,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1), ticket.ID)
		f.authz.AssertExpectations(t)
		f.tickets.AssertExpectations(t)
	})

	t.Run("forbidden when no permission", func(t *testing.T) {
		f := newTicketFixture()
		f.authz.On("Can", actor, services.PermTicketsCreate).Return(false)

		ticket, err := f.svc.CreateTicket(ctx, ports.CreateTicketParams{Title: "x", Actor: actor})

		assert.Nil(t, ticket)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		f.tickets.AssertNotCalled(t, "Create")
	})

	t.Run("validation error for empty title", func(t *testing.T) {
		f := newTicketFixture()
		f.authz.On("Can", actor, services.PermTicketsCreate).Return(true)

		_, err := f.svc.CreateTicket(ctx, ports.CreateTicketParams{Title: "  ", Actor: actor})

		assert.ErrorIs(t, err, apperrors.ErrTitleRequired)
		f.tickets.AssertNotCalled(t, "Create")
	})
}

func TestTicketService_GetTicketDetail(t *testing.T) {
	ctx := context.Background()
	agent := domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.SenderAgent}

	t.Run("returns ticket with messages", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(7)
		msgs := []domain.Message{{ID: "m1", ConversationID: ticket.ConversationID.String(), Content: "hi"}}
		f.authz.On("Can", agent, services.PermTicketsRead).Return(true)
		f.tickets.On("GetByID", ctx, int64(7)).Return(ticket, nil)
		f.messages.On("ListByConversation", ctx, ticket.ConversationID).Return(msgs, nil)

		detail, err := f.svc.GetTicketDetail(ctx, 7, agent)

		require.NoError(t, err)
		assert.Equal(t, int64(7), detail.Ticket.ID)
		assert.Equal(t, "open", detail.Ticket.Status)
		assert.Equal(t, msgs, detail.Messages)
	})

	t.Run("empty conversation is an empty list", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(7)
		f.authz.On("Can", agent, services.PermTicketsRead).Return(true)
		f.tickets.On("GetByID", ctx, int64(7)).Return(ticket, nil)
		f.messages.On("ListByConversation", ctx, ticket.ConversationID).Return(nil, nil)

		detail, err := f.svc.GetTicketDetail(ctx, 7, agent)

		require.NoError(t, err)
		assert.NotNil(t, detail.Messages)
		assert.Empty(t, detail.Messages)
	})

	t.Run("not found", func(t *testing.T) {
		f := newTicketFixture()
		f.authz.On("Can", agent, services.PermTicketsRead).Return(true)
		f.tickets.On("GetByID", ctx, int64(99)).Return(nil, apperrors.ErrTicketNotFound)

		_, err := f.svc.GetTicketDetail(ctx, 99, agent)

		assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
		f.messages.AssertNotCalled(t, "ListByConversation")
	})
}

func TestTicketService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	agent := domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.SenderAgent}

	t.Run("valid transition broadcasts ticket:updated", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(3)
		f.authz.On("Can", agent, services.PermTicketsUpdateStatus).Return(true)
		f.tickets.On("GetByID", ctx, int64(3)).Return(ticket, nil)
		f.tickets.On("Update", ctx, ticket).Return(ticket, nil)
		f.broadcaster.On("Broadcast", ticketUpdatedIn("ticket:3")).Return(nil).Once()

		updated, err := f.svc.UpdateStatus(ctx, ports.UpdateStatusParams{TicketID: 3, Status: domain.StatusResolved, Actor: agent})
		f.svc.Shutdown()

		require.NoError(t, err)
		assert.Equal(t, domain.StatusResolved, updated.Status)
		assert.NotNil(t, updated.ResolvedAt)
		f.broadcaster.AssertExpectations(t)
	})

	t.Run("invalid transition", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(3)
		ticket.Status = domain.StatusClosed
		f.authz.On("Can", agent, services.PermTicketsUpdateStatus).Return(true)
		f.tickets.On("GetByID", ctx, int64(3)).Return(ticket, nil)

		_, err := f.svc.UpdateStatus(ctx, ports.UpdateStatusParams{TicketID: 3, Status: domain.StatusPending, Actor: agent})

		assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition)
		f.tickets.AssertNotCalled(t, "Update")
		f.broadcaster.AssertNotCalled(t, "Broadcast")
	})

	t.Run("broadcast failure does not fail the update", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(3)
		f.authz.On("Can", agent, services.PermTicketsUpdateStatus).Return(true)
		f.tickets.On("GetByID", ctx, int64(3)).Return(ticket, nil)
		f.tickets.On("Update", ctx, ticket).Return(ticket, nil)
		f.broadcaster.On("Broadcast", mock.Anything).Return(errors.New("hub full"))

		_, err := f.svc.UpdateStatus(ctx, ports.UpdateStatusParams{TicketID: 3, Status: domain.StatusPending, Actor: agent})
		f.svc.Shutdown()

		assert.NoError(t, err)
	})
}

func TestTicketService_AssignTicket(t *testing.T) {
	ctx := context.Background()
	admin := domain.Actor{ID: uuid.New(), Name: "Root", Role: domain.SenderAdmin}
	assignee := uuid.New()

	t.Run("assigns and broadcasts", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(5)
		f.authz.On("Can", admin, services.PermTicketsAssign).Return(true)
		f.tickets.On("GetByID", ctx, int64(5)).Return(ticket, nil)
		f.tickets.On("Update", ctx, ticket).Return(ticket, nil)
		f.broadcaster.On("Broadcast", mock.MatchedBy(func(env domain.Envelope) bool {
			var p domain.TicketUpdatedPayload
			return env.Decode(&p) == nil && p.AssigneeID != nil && *p.AssigneeID == assignee.String()
		})).Return(nil)

		updated, err := f.svc.AssignTicket(ctx, ports.AssignTicketParams{TicketID: 5, AssigneeID: assignee, Actor: admin})
		f.svc.Shutdown()

		require.NoError(t, err)
		assert.True(t, updated.IsAssignedTo(assignee))
		f.broadcaster.AssertExpectations(t)
	})

	t.Run("closed ticket cannot be assigned", func(t *testing.T) {
		f := newTicketFixture()
		ticket := openTicket(5)
		ticket.Status = domain.StatusClosed
		f.authz.On("Can", admin, services.PermTicketsAssign).Return(true)
		f.tickets.On("GetByID", ctx, int64(5)).Return(ticket, nil)

		_, err := f.svc.AssignTicket(ctx, ports.AssignTicketParams{TicketID: 5, AssigneeID: assignee, Actor: admin})

		assert.ErrorIs(t, err, apperrors.ErrCannotAssignClosed)
	})
}
