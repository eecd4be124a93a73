package http_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:             7,
		ConversationID: uuid.MustParse("c0ffee00-0000-4000-8000-000000000001"),
		Title:          "Printer on fire",
		Status:         domain.StatusOpen,
		Priority:       domain.PriorityHigh,
		CustomerName:   "Cora",
		CreatedAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTicketHandler_Get(t *testing.T) {
	t.Run("returns ticket and messages", func(t *testing.T) {
		f := newRouterFixture(t)
		ticket := sampleTicket()
		detail := &domain.TicketDetail{
			Ticket:   domain.NewTicketSnapshot(ticket),
			Messages: []domain.Message{{ID: "m1", Content: "hello", Status: domain.MessageSent}},
		}
		f.tickets.On("GetTicketDetail", mock.Anything, int64(7), agent).Return(detail, nil)

		rec := f.do(t, http.MethodGet, "/api/v1/tickets/7", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var got domain.TicketDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, int64(7), got.Ticket.ID)
		assert.Equal(t, "open", got.Ticket.Status)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "m1", got.Messages[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		f := newRouterFixture(t)
		f.tickets.On("GetTicketDetail", mock.Anything, int64(9), agent).Return(nil, apperrors.ErrTicketNotFound)

		rec := f.do(t, http.MethodGet, "/api/v1/tickets/9", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "TICKET_NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/tickets/abc", "")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		f.tickets.AssertNotCalled(t, "GetTicketDetail")
	})
}

func TestTicketHandler_Create(t *testing.T) {
	t.Run("creates", func(t *testing.T) {
		f := newRouterFixture(t)
		f.tickets.On("CreateTicket", mock.Anything, mock.MatchedBy(func(p ports.CreateTicketParams) bool {
			return p.Title == "Printer on fire" && p.Priority == domain.PriorityHigh && p.Actor == agent
		})).Return(sampleTicket(), nil)

		rec := f.do(t, http.MethodPost, "/api/v1/tickets", `{"title":"Printer on fire","priority":"high"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var got domain.TicketSnapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "c0ffee00-0000-4000-8000-000000000001", got.ConversationID)
	})

	t.Run("validation", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/tickets", `{"title":"","priority":"someday"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "title")
		assert.Contains(t, rec.Body.String(), "priority")
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/tickets", `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)
	})
}

func TestTicketHandler_UpdateStatus(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		f := newRouterFixture(t)
		resolved := sampleTicket()
		resolved.Status = domain.StatusResolved
		f.tickets.On("UpdateStatus", mock.Anything, ports.UpdateStatusParams{
			TicketID: 7,
			Status:   domain.StatusResolved,
			Actor:    agent,
		}).Return(resolved, nil)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/status", `{"status":"resolved"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"resolved"`)
	})

	t.Run("invalid transition", func(t *testing.T) {
		f := newRouterFixture(t)
		f.tickets.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil, apperrors.ErrInvalidStatusTransition)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/status", `{"status":"open"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_STATUS_TRANSITION", decodeError(t, rec).Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/status", `{"status":"archived"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		f.tickets.AssertNotCalled(t, "UpdateStatus")
	})
}

func TestTicketHandler_Assign(t *testing.T) {
	t.Run("assigns", func(t *testing.T) {
		f := newRouterFixture(t)
		assignee := uuid.New()
		assigned := sampleTicket()
		assigned.AssigneeID = &assignee
		f.tickets.On("AssignTicket", mock.Anything, ports.AssignTicketParams{
			TicketID:   7,
			AssigneeID: assignee,
			Actor:      agent,
		}).Return(assigned, nil)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/assignee", `{"assigneeId":"`+assignee.String()+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), assignee.String())
	})

	t.Run("forbidden", func(t *testing.T) {
		f := newRouterFixture(t)
		f.tickets.On("AssignTicket", mock.Anything, mock.Anything).Return(nil, apperrors.ErrForbidden)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/assignee", `{"assigneeId":"`+uuid.NewString()+`"}`)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid assignee", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodPatch, "/api/v1/tickets/7/assignee", `{"assigneeId":"bob"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
