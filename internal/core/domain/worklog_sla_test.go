package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorklog_Close(t *testing.T) {
	w := domain.NewWorklog(7, uuid.New())
	require.True(t, w.IsActive())

	end := w.StartedAt.Add(125 * time.Second)
	w.Close(end, "", domain.AutoStopReason(domain.StatusClosed))

	assert.False(t, w.IsActive())
	assert.Equal(t, int64(125), w.DurationSeconds)
	require.NotNil(t, w.StopReason)
	assert.Equal(t, "Ticket Closed", *w.StopReason)
	assert.Nil(t, w.ReasonID)

	// History is immutable.
	w.Close(end.Add(time.Hour), "break", "")
	assert.Equal(t, int64(125), w.DurationSeconds)
	assert.Nil(t, w.ReasonID)
}

func TestAutoStopReason(t *testing.T) {
	assert.Equal(t, "Ticket Resolved", domain.AutoStopReason(domain.StatusResolved))
	assert.Equal(t, "Ticket Closed", domain.AutoStopReason(domain.StatusClosed))
}

func TestNewTimerState(t *testing.T) {
	agent := uuid.New()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	done1 := &domain.Worklog{ID: uuid.New(), TicketID: 7, AgentID: agent, StartedAt: start}
	done1.Close(start.Add(10*time.Minute), "", "lunch")
	done2 := &domain.Worklog{ID: uuid.New(), TicketID: 7, AgentID: agent, StartedAt: start.Add(time.Hour)}
	done2.Close(start.Add(time.Hour+5*time.Minute), "break", "")
	active := &domain.Worklog{ID: uuid.New(), TicketID: 7, AgentID: agent, StartedAt: start.Add(2 * time.Hour)}

	state := domain.NewTimerState([]*domain.Worklog{done1, done2, active})

	require.NotNil(t, state.ActiveLog)
	assert.Equal(t, active.ID.String(), state.ActiveLog.ID)
	assert.Equal(t, int64(15*60), state.TotalSeconds)
	assert.Len(t, state.HistoryLogs, 2)
	assert.Equal(t, int64(15*60+30), state.ElapsedSeconds(start.Add(2*time.Hour+30*time.Second)))

	empty := domain.NewTimerState(nil)
	assert.Nil(t, empty.ActiveLog)
	assert.Zero(t, empty.ElapsedSeconds(time.Now()))
}

func TestEvaluateRisk(t *testing.T) {
	timers := func(statuses ...domain.RiskStatus) []domain.SLATimer {
		out := make([]domain.SLATimer, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, domain.SLATimer{DisplayStatus: s})
		}
		return out
	}

	tests := []struct {
		name   string
		timers []domain.SLATimer
		want   domain.RiskStatus
		ok     bool
	}{
		{"empty", nil, "", false},
		{"on track", timers(domain.RiskOnTrack), domain.RiskOnTrack, true},
		{"breached wins", timers(domain.RiskOnTrack, domain.RiskBreached, domain.RiskCritical), domain.RiskBreached, true},
		{"critical over at risk", timers(domain.RiskAtRisk, domain.RiskCritical), domain.RiskCritical, true},
		{"at risk over paused", timers(domain.RiskPaused, domain.RiskAtRisk), domain.RiskAtRisk, true},
		{"paused over on track", timers(domain.RiskOnTrack, domain.RiskPaused), domain.RiskPaused, true},
		{"unknown ignored", timers("mystery", domain.RiskOnTrack), domain.RiskOnTrack, true},
		{"only unknown", timers("mystery"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := domain.EvaluateRisk(tt.timers)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSLAPolicy_Evaluate(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	policy := domain.SLAPolicy{
		Name:        "first response",
		Metric:      domain.MetricFirstResponse,
		Targets:     map[domain.TicketPriority]time.Duration{domain.PriorityHigh: time.Hour},
		AtRiskPct:   75,
		CriticalPct: 90,
	}
	ticket := func(status domain.TicketStatus) *domain.Ticket {
		return &domain.Ticket{Status: status, Priority: domain.PriorityHigh, CreatedAt: created}
	}

	tests := []struct {
		name    string
		ticket  *domain.Ticket
		elapsed time.Duration
		want    domain.RiskStatus
		pct     float64
	}{
		{"on track", ticket(domain.StatusOpen), 30 * time.Minute, domain.RiskOnTrack, 50},
		{"at risk", ticket(domain.StatusOpen), 45 * time.Minute, domain.RiskAtRisk, 75},
		{"critical", ticket(domain.StatusOpen), 57 * time.Minute, domain.RiskCritical, 95},
		{"breached", ticket(domain.StatusOpen), 61 * time.Minute, domain.RiskBreached, 101.7},
		{"paused while pending", ticket(domain.StatusPending), 57 * time.Minute, domain.RiskPaused, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timer, ok := policy.Evaluate(tt.ticket, created.Add(tt.elapsed))
			require.True(t, ok)
			assert.Equal(t, tt.want, timer.DisplayStatus)
			assert.InDelta(t, tt.pct, timer.PercentageElapsed, 0.05)
			assert.Equal(t, int64(3600), timer.TargetSeconds)
		})
	}

	t.Run("met metric keeps its final percentage", func(t *testing.T) {
		tk := ticket(domain.StatusOpen)
		tk.RecordResponse(created.Add(30 * time.Minute))

		timer, ok := policy.Evaluate(tk, created.Add(5*time.Hour))
		require.True(t, ok)
		assert.Equal(t, domain.RiskOnTrack, timer.DisplayStatus)
		assert.InDelta(t, 50, timer.PercentageElapsed, 0.05)
	})

	t.Run("uncovered priority", func(t *testing.T) {
		tk := ticket(domain.StatusOpen)
		tk.Priority = domain.PriorityLow
		_, ok := policy.Evaluate(tk, created)
		assert.False(t, ok)
	})
}
