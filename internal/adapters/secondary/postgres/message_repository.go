package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

const messageColumns = `id, conversation_id, content, sender_type, sender_id, sender_name, metadata, reply_to, created_at`

// MessageRepository stores conversation messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

var _ ports.MessageRepository = (*MessageRepository)(nil)

// NewMessageRepository creates a new message repository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		id             uuid.UUID
		conversationID uuid.UUID
		senderID       uuid.UUID
		senderType     string
		metadata       []byte
		replyTo        *uuid.UUID
		m              domain.Message
	)
	if err := row.Scan(&id, &conversationID, &m.Content, &senderType, &senderID, &m.SenderName, &metadata, &replyTo, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.ID = id.String()
	m.ConversationID = conversationID.String()
	m.SenderID = senderID.String()
	m.SenderType = domain.SenderType(senderType)
	m.Status = domain.MessageSent
	if len(metadata) > 0 {
		m.Metadata = metadata
	}
	if replyTo != nil {
		value := replyTo.String()
		m.ReplyTo = &value
	}
	return &m, nil
}

// Create persists a message. The conversation must belong to a ticket.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	const query = `
INSERT INTO messages (id, conversation_id, content, sender_type, sender_id, sender_name, metadata, reply_to, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + messageColumns

	id, err := uuid.Parse(msg.ID)
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	conversationID, err := uuid.Parse(msg.ConversationID)
	if err != nil {
		return nil, apperrors.ErrConversationNotFound
	}
	senderID, err := uuid.Parse(msg.SenderID)
	if err != nil {
		return nil, fmt.Errorf("sender id: %w", err)
	}

	var replyTo *uuid.UUID
	if msg.ReplyTo != nil {
		parsed, err := uuid.Parse(*msg.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply to: %w", err)
		}
		replyTo = &parsed
	}

	var metadata []byte
	if len(msg.Metadata) > 0 {
		metadata = msg.Metadata
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		id, conversationID, msg.Content, string(msg.SenderType), senderID, msg.SenderName, metadata, replyTo, createdAt)
	created, err := scanMessage(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, err
	}
	return created, nil
}

// ListByConversation returns the conversation in insertion order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	const query = `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY seq`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}
