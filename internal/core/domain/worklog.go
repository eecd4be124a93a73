package domain

import (
	"time"

	"github.com/google/uuid"
)

// Synthetic stop reasons used when the ticket lifecycle ends a session.
const (
	StopReasonTicketResolved = "Ticket Resolved"
	StopReasonTicketClosed   = "Ticket Closed"
)

// AutoStopReason returns the synthetic stop reason for a terminal status.
func AutoStopReason(status TicketStatus) string {
	if status == StatusClosed {
		return StopReasonTicketClosed
	}
	return StopReasonTicketResolved
}

// Worklog is one contiguous interval of tracked work on a ticket by an agent.
type Worklog struct {
	ID              uuid.UUID
	TicketID        int64
	AgentID         uuid.UUID
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int64
	ReasonID        *string
	StopReason      *string
}

// NewWorklog opens a session starting now.
func NewWorklog(ticketID int64, agentID uuid.UUID) *Worklog {
	return &Worklog{
		ID:        uuid.New(),
		TicketID:  ticketID,
		AgentID:   agentID,
		StartedAt: time.Now().UTC(),
	}
}

// IsActive reports whether the session is still running.
func (w *Worklog) IsActive() bool {
	return w.EndedAt == nil
}

// Close ends the session at the given time. Closing an ended session is a
// no-op so history stays immutable.
func (w *Worklog) Close(at time.Time, reasonID, reason string) {
	if w.EndedAt != nil {
		return
	}
	at = at.UTC()
	if at.Before(w.StartedAt) {
		at = w.StartedAt
	}
	w.EndedAt = &at
	w.DurationSeconds = int64(at.Sub(w.StartedAt) / time.Second)
	if reasonID != "" {
		w.ReasonID = &reasonID
	}
	if reason != "" {
		w.StopReason = &reason
	}
}

// WorklogSession is the wire shape of a worklog.
type WorklogSession struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	DurationSeconds int64      `json:"durationSeconds"`
	ReasonID        *string    `json:"reasonId,omitempty"`
	StopReason      *string    `json:"stopReason,omitempty"`
}

// NewWorklogSession converts a domain worklog to its wire shape.
func NewWorklogSession(w *Worklog) WorklogSession {
	return WorklogSession{
		ID:              w.ID.String(),
		StartedAt:       w.StartedAt,
		EndedAt:         w.EndedAt,
		DurationSeconds: w.DurationSeconds,
		ReasonID:        w.ReasonID,
		StopReason:      w.StopReason,
	}
}

// TimerState is the authoritative worklog view for one (agent, ticket):
// GET /worklogs. TotalSeconds covers ended sessions only.
type TimerState struct {
	ActiveLog    *WorklogSession  `json:"activeLog"`
	TotalSeconds int64            `json:"totalSeconds"`
	HistoryLogs  []WorklogSession `json:"historyLogs"`
}

// NewTimerState derives the timer state from all sessions of a pair.
func NewTimerState(logs []*Worklog) TimerState {
	state := TimerState{HistoryLogs: make([]WorklogSession, 0, len(logs))}
	for _, w := range logs {
		if w.IsActive() {
			if state.ActiveLog == nil {
				session := NewWorklogSession(w)
				state.ActiveLog = &session
			}
			continue
		}
		state.TotalSeconds += w.DurationSeconds
		state.HistoryLogs = append(state.HistoryLogs, NewWorklogSession(w))
	}
	return state
}

// ElapsedSeconds returns completed time plus the live elapsed time of the
// active session at now.
func (s TimerState) ElapsedSeconds(now time.Time) int64 {
	total := s.TotalSeconds
	if s.ActiveLog != nil {
		live := int64(now.Sub(s.ActiveLog.StartedAt) / time.Second)
		if live > 0 {
			total += live
		}
	}
	return total
}

// StopReason is a selectable reason for manually stopping a timer.
type StopReason struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
