package collab

import (
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
)

// Phase is the state of a worklog timer.
type Phase int

const (
	// PhaseStoppedAuto is eligible for automatic start.
	PhaseStoppedAuto Phase = iota
	// PhaseStoppedManual was stopped by the agent and only restarts manually.
	PhaseStoppedManual
	PhaseRunning
)

func (p Phase) String() string {
	switch p {
	case PhaseStoppedManual:
		return "STOPPED_MANUAL"
	case PhaseRunning:
		return "RUNNING"
	default:
		return "STOPPED_AUTO"
	}
}

// ActionKind is the REST call a timer transition needs.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionStart
	ActionStop
)

func (k ActionKind) String() string {
	switch k {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	default:
		return "none"
	}
}

// Action is a worklog side effect to perform against the server. The timer
// waits for Complete before it issues the next one.
type Action struct {
	Kind     ActionKind
	TicketID int64
	ReasonID string
	Reason   string
	// Manual is set for agent-initiated actions.
	Manual bool
}

// WorklogTimer decides when tracked work starts and stops for one agent on
// one ticket. It never talks to the server itself: transitions return an
// Action that the caller performs and then reports through Complete.
type WorklogTimer struct {
	ticketID int64
	agentID  string

	phase   Phase
	state   domain.TimerState
	loaded  bool
	pending *Action
	display int64
	ticket  *domain.TicketSnapshot
	// suppressed holds the automatic action the server last rejected. It is
	// not issued again while the ticket keeps the same status and assignee.
	suppressed *suppression
}

type suppression struct {
	kind     ActionKind
	status   string
	assignee string
}

func (s suppression) matches(kind ActionKind, t *domain.TicketSnapshot) bool {
	return s.kind == kind && s.status == t.Status && s.assignee == assigneeOf(t)
}

func assigneeOf(t *domain.TicketSnapshot) string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

// NewWorklogTimer creates a stopped timer. It stays inert until the first
// server state is applied.
func NewWorklogTimer(ticketID int64, agentID string) *WorklogTimer {
	return &WorklogTimer{ticketID: ticketID, agentID: agentID}
}

// ObserveTicket records the latest ticket and returns the automatic action
// it calls for, if any.
func (w *WorklogTimer) ObserveTicket(t domain.TicketSnapshot) (Action, bool) {
	w.ticket = &t
	if w.suppressed != nil && (w.suppressed.status != t.Status || w.suppressed.assignee != assigneeOf(&t)) {
		w.suppressed = nil
	}
	return w.next()
}

// ManualStart requests a start on behalf of the agent. Starting a running
// timer is a no-op and returns an ActionNone.
func (w *WorklogTimer) ManualStart() (Action, error) {
	if w.pending != nil {
		if w.pending.Kind == ActionStart {
			return Action{}, nil
		}
		return Action{}, apperrors.ErrWorklogBusy
	}
	if w.phase == PhaseRunning {
		return Action{}, nil
	}
	if w.ticket != nil {
		if w.ticket.AssignedToOther(w.agentID) {
			return Action{}, apperrors.ErrTicketReadOnly
		}
		if w.ticket.TicketStatus().IsTerminal() {
			return Action{}, apperrors.ErrTicketNotWorkable
		}
	}
	return w.begin(Action{Kind: ActionStart, TicketID: w.ticketID, Manual: true}), nil
}

// ManualStop requests a stop with the agent's reason. Stopping a timer that
// is not running is a no-op.
func (w *WorklogTimer) ManualStop(reasonID, reason string) (Action, error) {
	if reasonID == "" && reason == "" {
		return Action{}, apperrors.ErrStopReasonRequired
	}
	if w.pending != nil {
		if w.pending.Kind == ActionStop {
			return Action{}, nil
		}
		return Action{}, apperrors.ErrWorklogBusy
	}
	if w.phase != PhaseRunning {
		return Action{}, nil
	}
	return w.begin(Action{
		Kind:     ActionStop,
		TicketID: w.ticketID,
		ReasonID: reasonID,
		Reason:   reason,
		Manual:   true,
	}), nil
}

// Complete reports the outcome of the pending action. A failed action leaves
// the phase untouched, and a failed automatic action is not issued again
// until the ticket's status or assignee changes or the agent acts.
func (w *WorklogTimer) Complete(a Action, err error) {
	if w.pending == nil || w.pending.Kind != a.Kind {
		return
	}
	w.pending = nil
	if err != nil {
		if !a.Manual && w.ticket != nil {
			w.suppressed = &suppression{kind: a.Kind, status: w.ticket.Status, assignee: assigneeOf(w.ticket)}
		}
		return
	}
	w.suppressed = nil
	switch a.Kind {
	case ActionStart:
		w.phase = PhaseRunning
	case ActionStop:
		if a.Manual {
			w.phase = PhaseStoppedManual
		} else {
			w.phase = PhaseStoppedAuto
		}
	}
}

// Apply replaces local state with the server's view and re-derives the
// displayed duration. It returns the automatic action the new state calls
// for, if any.
func (w *WorklogTimer) Apply(state domain.TimerState, now time.Time) (Action, bool) {
	w.state = state
	w.loaded = true
	switch {
	case state.ActiveLog != nil:
		w.phase = PhaseRunning
	case w.phase == PhaseRunning:
		w.phase = PhaseStoppedAuto
	}
	w.display = state.ElapsedSeconds(now)
	return w.next()
}

// Tick advances the displayed duration by one second while running.
func (w *WorklogTimer) Tick() {
	if w.phase == PhaseRunning {
		w.display++
	}
}

// Phase returns the current phase.
func (w *WorklogTimer) Phase() Phase {
	return w.phase
}

// ManualStopped reports whether the agent stopped the timer explicitly.
func (w *WorklogTimer) ManualStopped() bool {
	return w.phase == PhaseStoppedManual
}

// DisplaySeconds returns the accumulated duration shown to the agent.
func (w *WorklogTimer) DisplaySeconds() int64 {
	return w.display
}

// State returns the last server state applied.
func (w *WorklogTimer) State() domain.TimerState {
	return w.state
}

// Pending reports whether an action is in flight.
func (w *WorklogTimer) Pending() bool {
	return w.pending != nil
}

// Suppressed reports whether a rejected automatic action is being held back.
func (w *WorklogTimer) Suppressed() bool {
	return w.suppressed != nil
}

// Loaded reports whether server state has been applied at least once.
func (w *WorklogTimer) Loaded() bool {
	return w.loaded
}

func (w *WorklogTimer) next() (Action, bool) {
	if w.pending != nil || !w.loaded || w.ticket == nil {
		return Action{}, false
	}
	status := w.ticket.TicketStatus()

	switch w.phase {
	case PhaseRunning:
		if status.IsTerminal() && !w.held(ActionStop) {
			return w.begin(Action{
				Kind:     ActionStop,
				TicketID: w.ticketID,
				Reason:   domain.AutoStopReason(status),
			}), true
		}
	case PhaseStoppedAuto:
		if !status.IsTerminal() && w.ticket.AssignedTo(w.agentID) && !w.held(ActionStart) {
			return w.begin(Action{Kind: ActionStart, TicketID: w.ticketID}), true
		}
	}
	return Action{}, false
}

func (w *WorklogTimer) held(kind ActionKind) bool {
	return w.suppressed != nil && w.suppressed.matches(kind, w.ticket)
}

func (w *WorklogTimer) begin(a Action) Action {
	if a.Manual {
		w.suppressed = nil
	}
	w.pending = &a
	return a
}
