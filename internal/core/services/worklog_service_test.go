package services_test

import (
	"context"
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

var testStopReasons = []domain.StopReason{
	{ID: "break", Label: "Break"},
	{ID: "meeting", Label: "Meeting"},
}

type worklogFixture struct {
	tickets  *mocks.MockTicketRepository
	worklogs *mocks.MockWorklogRepository
	recorder *countingRecorder
	svc      *services.WorklogService
}

func newWorklogFixture() *worklogFixture {
	f := &worklogFixture{
		tickets:  mocks.NewMockTicketRepository(),
		worklogs: mocks.NewMockWorklogRepository(),
		recorder: &countingRecorder{},
	}
	f.svc = services.NewWorklogService(f.tickets, f.worklogs, services.NewAuthorizationService(nil),
		testStopReasons, f.recorder, nil)
	return f
}

func TestWorklogService_Start(t *testing.T) {
	ctx := context.Background()
	agent := domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.SenderAgent}

	t.Run("opens a session", func(t *testing.T) {
		f := newWorklogFixture()
		f.tickets.On("GetByID", ctx, int64(7)).Return(openTicket(7), nil)
		f.worklogs.On("Create", ctx, mock.MatchedBy(func(w *domain.Worklog) bool {
			return w.TicketID == 7 && w.AgentID == agent.ID && w.IsActive()
		})).Return(&domain.Worklog{ID: uuid.New(), TicketID: 7, AgentID: agent.ID, StartedAt: time.Now()}, nil)

		w, err := f.svc.Start(ctx, 7, agent)

		require.NoError(t, err)
		assert.True(t, w.IsActive())
		assert.Equal(t, []string{"start"}, f.recorder.transitions)
	})

	t.Run("already active", func(t *testing.T) {
		f := newWorklogFixture()
		f.tickets.On("GetByID", ctx, int64(7)).Return(openTicket(7), nil)
		f.worklogs.On("Create", ctx, mock.Anything).Return(nil, apperrors.ErrWorklogAlreadyActive)

		_, err := f.svc.Start(ctx, 7, agent)

		assert.ErrorIs(t, err, apperrors.ErrWorklogAlreadyActive)
		assert.Empty(t, f.recorder.transitions)
	})

	t.Run("terminal ticket", func(t *testing.T) {
		for _, status := range []domain.TicketStatus{domain.StatusResolved, domain.StatusClosed} {
			f := newWorklogFixture()
			ticket := openTicket(7)
			ticket.Status = status
			f.tickets.On("GetByID", ctx, int64(7)).Return(ticket, nil)

			_, err := f.svc.Start(ctx, 7, agent)

			assert.ErrorIs(t, err, apperrors.ErrTicketNotWorkable, string(status))
			f.worklogs.AssertNotCalled(t, "Create")
		}
	})

	t.Run("assigned to another agent", func(t *testing.T) {
		f := newWorklogFixture()
		ticket := openTicket(7)
		other := uuid.New()
		ticket.AssigneeID = &other
		f.tickets.On("GetByID", ctx, int64(7)).Return(ticket, nil)

		_, err := f.svc.Start(ctx, 7, agent)

		assert.ErrorIs(t, err, apperrors.ErrTicketReadOnly)
	})

	t.Run("customers cannot track time", func(t *testing.T) {
		f := newWorklogFixture()

		_, err := f.svc.Start(ctx, 7, domain.Actor{ID: uuid.New(), Role: domain.SenderCustomer})

		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		f.tickets.AssertNotCalled(t, "GetByID")
	})
}

func TestWorklogService_Stop(t *testing.T) {
	ctx := context.Background()
	agent := domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.SenderAgent}

	activeLog := func() *domain.Worklog {
		return &domain.Worklog{ID: uuid.New(), TicketID: 7, AgentID: agent.ID, StartedAt: time.Now().UTC().Add(-2 * time.Minute)}
	}

	t.Run("reason id resolves to its label", func(t *testing.T) {
		f := newWorklogFixture()
		f.worklogs.On("GetActive", ctx, int64(7), agent.ID).Return(activeLog(), nil)
		f.worklogs.On("Close", ctx, mock.MatchedBy(func(w *domain.Worklog) bool {
			return !w.IsActive() && *w.StopReason == "Break" && *w.ReasonID == "break" && w.DurationSeconds >= 120
		})).Return(func() *domain.Worklog { w := activeLog(); w.Close(time.Now(), "break", "Break"); return w }(), nil)

		w, err := f.svc.Stop(ctx, ports.StopWorklogParams{TicketID: 7, ReasonID: "break", Actor: agent})

		require.NoError(t, err)
		assert.False(t, w.IsActive())
		assert.Equal(t, []string{"stop"}, f.recorder.transitions)
		f.worklogs.AssertExpectations(t)
	})

	t.Run("free text reason for lifecycle auto stop", func(t *testing.T) {
		f := newWorklogFixture()
		f.worklogs.On("GetActive", ctx, int64(7), agent.ID).Return(activeLog(), nil)
		f.worklogs.On("Close", ctx, mock.MatchedBy(func(w *domain.Worklog) bool {
			return *w.StopReason == domain.StopReasonTicketClosed && w.ReasonID == nil
		})).Return(activeLog(), nil)

		_, err := f.svc.Stop(ctx, ports.StopWorklogParams{TicketID: 7, Reason: domain.StopReasonTicketClosed, Actor: agent})

		require.NoError(t, err)
		f.worklogs.AssertExpectations(t)
	})

	t.Run("reason required", func(t *testing.T) {
		f := newWorklogFixture()

		_, err := f.svc.Stop(ctx, ports.StopWorklogParams{TicketID: 7, Actor: agent})

		assert.ErrorIs(t, err, apperrors.ErrStopReasonRequired)
	})

	t.Run("unknown reason id", func(t *testing.T) {
		f := newWorklogFixture()

		_, err := f.svc.Stop(ctx, ports.StopWorklogParams{TicketID: 7, ReasonID: "nap", Actor: agent})

		assert.ErrorIs(t, err, apperrors.ErrUnknownStopReason)
	})

	t.Run("nothing running", func(t *testing.T) {
		f := newWorklogFixture()
		f.worklogs.On("GetActive", ctx, int64(7), agent.ID).Return(nil, apperrors.ErrNoActiveWorklog)

		_, err := f.svc.Stop(ctx, ports.StopWorklogParams{TicketID: 7, Reason: "done", Actor: agent})

		assert.ErrorIs(t, err, apperrors.ErrNoActiveWorklog)
	})
}

func TestWorklogService_Summary(t *testing.T) {
	ctx := context.Background()
	agent := domain.Actor{ID: uuid.New(), Name: "Ada", Role: domain.SenderAgent}
	f := newWorklogFixture()

	ended := time.Now().UTC().Add(-time.Hour)
	logs := []*domain.Worklog{
		{ID: uuid.New(), StartedAt: ended.Add(-30 * time.Minute), EndedAt: &ended, DurationSeconds: 1800},
		{ID: uuid.New(), StartedAt: time.Now().UTC().Add(-time.Minute)},
	}
	f.tickets.On("GetByID", ctx, int64(7)).Return(openTicket(7), nil)
	f.worklogs.On("ListByTicketAndAgent", ctx, int64(7), agent.ID).Return(logs, nil)

	state, err := f.svc.Summary(ctx, 7, agent)

	require.NoError(t, err)
	assert.Equal(t, int64(1800), state.TotalSeconds)
	require.NotNil(t, state.ActiveLog)
	assert.Len(t, state.HistoryLogs, 1)
}

func TestWorklogService_StopReasons(t *testing.T) {
	f := newWorklogFixture()

	reasons := f.svc.StopReasons()
	reasons[0].Label = "changed"

	assert.Equal(t, "Break", f.svc.StopReasons()[0].Label)
}
