package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// WorklogService implements work-time tracking. The one active session per
// (agent, ticket) rule is enforced by the repository.
type WorklogService struct {
	ticketRepo  ports.TicketRepository
	worklogRepo ports.WorklogRepository
	authzSvc    ports.AuthorizationService
	reasons     []domain.StopReason
	recorder    ports.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.WorklogService = (*WorklogService)(nil)

// NewWorklogService creates a new worklog service
func NewWorklogService(
	ticketRepo ports.TicketRepository,
	worklogRepo ports.WorklogRepository,
	authzSvc ports.AuthorizationService,
	reasons []domain.StopReason,
	recorder ports.Recorder,
	logger *slog.Logger,
) *WorklogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorklogService{
		ticketRepo:  ticketRepo,
		worklogRepo: worklogRepo,
		authzSvc:    authzSvc,
		reasons:     append([]domain.StopReason(nil), reasons...),
		recorder:    recorderOrNoop(recorder),
		logger:      logger.With("component", "worklog_service"),
		now:         time.Now,
	}
}

// Start opens a session for the actor. Resolved and closed tickets cannot
// be worked, and neither can a ticket assigned to someone else.
func (s *WorklogService) Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.Worklog, error) {
	if !s.authzSvc.Can(actor, PermWorklogsTrack) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.ErrTicketNotWorkable
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID != actor.ID {
		return nil, apperrors.ErrTicketReadOnly
	}

	created, err := s.worklogRepo.Create(ctx, domain.NewWorklog(ticketID, actor.ID))
	if err != nil {
		return nil, err
	}

	s.recorder.WorklogTransition("start")
	s.logger.InfoContext(ctx, "worklog started", "ticket_id", ticketID, "agent_id", actor.ID, "worklog_id", created.ID)
	return created, nil
}

// Stop closes the actor's active session. A configured reason id supplies
// the label when no free-text reason is given.
func (s *WorklogService) Stop(ctx context.Context, params ports.StopWorklogParams) (*domain.Worklog, error) {
	if !s.authzSvc.Can(params.Actor, PermWorklogsTrack) {
		return nil, apperrors.ErrForbidden
	}

	reason := params.Reason
	if params.ReasonID != "" {
		label, ok := s.lookupReason(params.ReasonID)
		if !ok {
			return nil, apperrors.ErrUnknownStopReason
		}
		if reason == "" {
			reason = label
		}
	}
	if reason == "" {
		return nil, apperrors.ErrStopReasonRequired
	}

	active, err := s.worklogRepo.GetActive(ctx, params.TicketID, params.Actor.ID)
	if err != nil {
		return nil, err
	}

	active.Close(s.now(), params.ReasonID, reason)
	closed, err := s.worklogRepo.Close(ctx, active)
	if err != nil {
		return nil, err
	}

	s.recorder.WorklogTransition("stop")
	s.logger.InfoContext(ctx, "worklog stopped",
		"ticket_id", params.TicketID,
		"agent_id", params.Actor.ID,
		"duration_seconds", closed.DurationSeconds,
		"reason", reason,
	)
	return closed, nil
}

// Summary returns the authoritative timer state of the actor on a ticket.
func (s *WorklogService) Summary(ctx context.Context, ticketID int64, actor domain.Actor) (domain.TimerState, error) {
	if !s.authzSvc.Can(actor, PermWorklogsTrack) {
		return domain.TimerState{}, apperrors.ErrForbidden
	}

	if _, err := s.ticketRepo.GetByID(ctx, ticketID); err != nil {
		return domain.TimerState{}, err
	}

	logs, err := s.worklogRepo.ListByTicketAndAgent(ctx, ticketID, actor.ID)
	if err != nil {
		return domain.TimerState{}, err
	}
	return domain.NewTimerState(logs), nil
}

// StopReasons lists the selectable manual stop reasons.
func (s *WorklogService) StopReasons() []domain.StopReason {
	return append([]domain.StopReason(nil), s.reasons...)
}

func (s *WorklogService) lookupReason(id string) (string, bool) {
	for _, r := range s.reasons {
		if r.ID == id {
			return r.Label, true
		}
	}
	return "", false
}
