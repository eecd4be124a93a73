package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// TicketService implements the ticket operations of the collaboration view
type TicketService struct {
	ticketRepo  ports.TicketRepository
	messageRepo ports.MessageRepository
	authzSvc    ports.AuthorizationService
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	wg          sync.WaitGroup
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a new ticket service
func NewTicketService(
	ticketRepo ports.TicketRepository,
	messageRepo ports.MessageRepository,
	authzSvc ports.AuthorizationService,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
) *TicketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketService{
		ticketRepo:  ticketRepo,
		messageRepo: messageRepo,
		authzSvc:    authzSvc,
		broadcaster: broadcaster,
		logger:      logger.With("component", "ticket_service"),
	}
}

// CreateTicket handles the use case for opening a new ticket
func (s *TicketService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	if !s.authzSvc.Can(params.Actor, PermTicketsCreate) {
		return nil, apperrors.ErrForbidden
	}

	customerName := params.CustomerName
	if customerName == "" && params.Actor.Role == domain.SenderCustomer {
		customerName = params.Actor.Name
	}

	ticket, err := domain.NewTicket(domain.TicketParams{
		Title:        params.Title,
		Description:  params.Description,
		Priority:     params.Priority,
		CustomerName: customerName,
	})
	if err != nil {
		return nil, err
	}

	return s.ticketRepo.Create(ctx, ticket)
}

// GetTicketDetail returns the ticket together with its full conversation.
// It is the resync source of the agent view.
func (s *TicketService) GetTicketDetail(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketDetail, error) {
	if !s.authzSvc.Can(actor, PermTicketsRead) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListByConversation(ctx, ticket.ConversationID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return &domain.TicketDetail{
		Ticket:   domain.NewTicketSnapshot(ticket),
		Messages: messages,
	}, nil
}

// UpdateStatus changes a ticket's status with lifecycle enforcement
func (s *TicketService) UpdateStatus(ctx context.Context, params ports.UpdateStatusParams) (*domain.Ticket, error) {
	if !s.authzSvc.Can(params.Actor, PermTicketsUpdateStatus) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := s.ticketRepo.GetByID(ctx, params.TicketID)
	if err != nil {
		return nil, err
	}

	if err := ticket.UpdateStatus(params.Status); err != nil {
		return nil, err
	}

	updated, err := s.ticketRepo.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.broadcastTicketUpdated(updated)
	return updated, nil
}

// AssignTicket assigns a ticket to an agent
func (s *TicketService) AssignTicket(ctx context.Context, params ports.AssignTicketParams) (*domain.Ticket, error) {
	if !s.authzSvc.Can(params.Actor, PermTicketsAssign) {
		return nil, apperrors.ErrForbidden
	}

	ticket, err := s.ticketRepo.GetByID(ctx, params.TicketID)
	if err != nil {
		return nil, err
	}

	if err := ticket.Assign(params.AssigneeID); err != nil {
		return nil, err
	}

	updated, err := s.ticketRepo.Update(ctx, ticket)
	if err != nil {
		return nil, err
	}

	s.broadcastTicketUpdated(updated)
	return updated, nil
}

// broadcastTicketUpdated tells every viewer of the ticket to refetch it.
func (s *TicketService) broadcastTicketUpdated(ticket *domain.Ticket) {
	snapshot := domain.NewTicketSnapshot(ticket)
	env, err := domain.NewEnvelope(domain.EventTicketUpdated, domain.TicketUpdatedPayload{
		TicketID:   ticket.ID,
		Status:     snapshot.Status,
		AssigneeID: snapshot.AssigneeID,
	})
	if err != nil {
		s.logger.Error("failed to build ticket update", "ticket_id", ticket.ID, "error", err)
		return
	}
	env.Room = domain.TicketRoom(ticket.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.broadcaster.Broadcast(env); err != nil {
			s.logger.Warn("failed to broadcast ticket update", "ticket_id", ticket.ID, "error", err)
		}
	}()
}

// Shutdown waits for pending broadcasts.
func (s *TicketService) Shutdown() {
	s.wg.Wait()
}
