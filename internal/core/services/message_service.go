package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// MessageService persists conversation messages and fans them out to the
// conversation room.
type MessageService struct {
	ticketRepo  ports.TicketRepository
	messageRepo ports.MessageRepository
	txManager   ports.TransactionManager
	authzSvc    ports.AuthorizationService
	broadcaster ports.EventBroadcaster
	recorder    ports.Recorder
	logger      *slog.Logger
}

var _ ports.MessageService = (*MessageService)(nil)

// NewMessageService creates a new message service
func NewMessageService(
	ticketRepo ports.TicketRepository,
	messageRepo ports.MessageRepository,
	txManager ports.TransactionManager,
	authzSvc ports.AuthorizationService,
	broadcaster ports.EventBroadcaster,
	recorder ports.Recorder,
	logger *slog.Logger,
) *MessageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageService{
		ticketRepo:  ticketRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		authzSvc:    authzSvc,
		broadcaster: broadcaster,
		recorder:    recorderOrNoop(recorder),
		logger:      logger.With("component", "message_service"),
	}
}

// SendMessage validates and stores a message, records the first staff
// response on the ticket and broadcasts receive_message tagged with the
// sender's connection id. Sender identity always comes from the actor.
func (s *MessageService) SendMessage(ctx context.Context, params ports.SendMessageParams) (*domain.Message, error) {
	actor := params.Actor
	req := params.Request

	if !s.authzSvc.Can(actor, PermMessagesSend) {
		return nil, apperrors.ErrForbidden
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, apperrors.ErrConversationNotFound
	}

	ticket, err := s.ticketRepo.GetByConversationID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTicketNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, err
	}

	if actor.Role == domain.SenderAgent && ticket.AssigneeID != nil && *ticket.AssigneeID != actor.ID {
		return nil, apperrors.ErrTicketReadOnly
	}

	var replyTo *uuid.UUID
	if req.ReplyToID != nil && *req.ReplyToID != "" {
		id, err := uuid.Parse(*req.ReplyToID)
		if err != nil {
			return nil, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "replyToId must be a message id")
		}
		replyTo = &id
	}

	senderName := actor.Name
	if senderName == "" {
		senderName = req.SenderName
	}

	msg, err := domain.NewMessage(domain.MessageParams{
		ConversationID: conversationID,
		Content:        req.Content,
		SenderType:     actor.Role,
		SenderID:       actor.ID,
		SenderName:     senderName,
		Metadata:       req.Metadata,
		ReplyTo:        replyTo,
	})
	if err != nil {
		return nil, err
	}

	var saved *domain.Message
	err = s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		created, err := s.messageRepo.Create(ctx, msg)
		if err != nil {
			return err
		}
		saved = created

		if actor.IsStaff() && ticket.RecordResponse(created.CreatedAt) {
			if _, err := s.ticketRepo.Update(ctx, ticket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.MessagePersisted()
	s.broadcastMessage(saved, req.ConnectionID)
	return saved, nil
}

func (s *MessageService) broadcastMessage(msg *domain.Message, connectionID string) {
	env, err := domain.NewEnvelope(domain.EventReceiveMessage, domain.ReceiveMessagePayload{
		Message:      *msg,
		ConnectionID: connectionID,
	})
	if err != nil {
		s.logger.Error("failed to build message broadcast", "message_id", msg.ID, "error", err)
		return
	}
	env.Room = domain.ConversationRoom(msg.ConversationID)

	if err := s.broadcaster.Broadcast(env); err != nil {
		s.logger.Warn("failed to broadcast message", "message_id", msg.ID, "error", err)
	}
}
