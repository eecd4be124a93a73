package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// SLAService applies the configured policies to a conversation's ticket.
type SLAService struct {
	ticketRepo ports.TicketRepository
	policies   ports.SLAPolicySource
	authzSvc   ports.AuthorizationService
	recorder   ports.Recorder
	now        func() time.Time
}

var _ ports.SLAService = (*SLAService)(nil)

// NewSLAService creates a new SLA service
func NewSLAService(
	ticketRepo ports.TicketRepository,
	policies ports.SLAPolicySource,
	authzSvc ports.AuthorizationService,
	recorder ports.Recorder,
) *SLAService {
	return &SLAService{
		ticketRepo: ticketRepo,
		policies:   policies,
		authzSvc:   authzSvc,
		recorder:   recorderOrNoop(recorder),
		now:        time.Now,
	}
}

// Timers returns one timer per policy covering the ticket's priority.
func (s *SLAService) Timers(ctx context.Context, conversationID uuid.UUID, actor domain.Actor) ([]domain.SLATimer, error) {
	if !s.authzSvc.Can(actor, PermSLARead) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := s.ticketRepo.GetByConversationID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTicketNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, err
	}

	now := s.now()
	timers := make([]domain.SLATimer, 0)
	for _, policy := range s.policies.Policies() {
		timer, ok := policy.Evaluate(ticket, now)
		if !ok {
			continue
		}
		s.recorder.SLAEvaluated(string(timer.DisplayStatus))
		timers = append(timers, timer)
	}
	return timers, nil
}
