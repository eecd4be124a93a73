package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
)

// MaxMessageLength bounds the content of a single conversation message.
const MaxMessageLength = 20000

// TempIDPrefix marks identifiers generated locally for optimistic messages.
const TempIDPrefix = "tmp-"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderAgent    SenderType = "agent"
	SenderAdmin    SenderType = "admin"
	SenderCustomer SenderType = "customer"
)

// IsValid reports whether t is a known sender type.
func (t SenderType) IsValid() bool {
	switch t {
	case SenderAgent, SenderAdmin, SenderCustomer:
		return true
	}
	return false
}

// IsStaff reports whether the sender works the ticket (agent or admin).
func (t SenderType) IsStaff() bool {
	return t == SenderAgent || t == SenderAdmin
}

// MessageStatus is the delivery state of a message as seen by its author.
type MessageStatus string

const (
	MessageSending MessageStatus = "sending"
	MessageSent    MessageStatus = "sent"
)

// Message is one entry of a ticket conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Content        string          `json:"content"`
	SenderType     SenderType      `json:"senderType"`
	SenderID       string          `json:"senderId"`
	SenderName     string          `json:"senderName"`
	CreatedAt      time.Time       `json:"createdAt"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ReplyTo        *string         `json:"replyTo,omitempty"`
	Status         MessageStatus   `json:"status"`

	// Delayed is a display hint set when a send has waited longer than the
	// soft confirmation timeout. It never affects delivery.
	Delayed bool `json:"-"`
}

// IsOptimistic reports whether the message still carries a local id.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// NewTempID generates an identifier for an optimistic message.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// MessageParams holds the input for persisting a new message.
type MessageParams struct {
	ConversationID uuid.UUID
	Content        string
	SenderType     SenderType
	SenderID       uuid.UUID
	SenderName     string
	Metadata       json.RawMessage
	ReplyTo        *uuid.UUID
}

// NewMessage validates params and builds a message ready for persistence.
func NewMessage(params MessageParams) (*Message, error) {
	content := strings.TrimSpace(params.Content)
	if content == "" && len(params.Metadata) == 0 {
		return nil, apperrors.ErrMessageContentEmpty
	}
	if len(params.Content) > MaxMessageLength {
		return nil, apperrors.ErrMessageTooLong
	}
	if !params.SenderType.IsValid() {
		return nil, apperrors.ErrInvalidSenderType
	}

	var replyTo *string
	if params.ReplyTo != nil {
		value := params.ReplyTo.String()
		replyTo = &value
	}

	return &Message{
		ID:             uuid.NewString(),
		ConversationID: params.ConversationID.String(),
		Content:        params.Content,
		SenderType:     params.SenderType,
		SenderID:       params.SenderID.String(),
		SenderName:     params.SenderName,
		CreatedAt:      time.Now().UTC(),
		Metadata:       params.Metadata,
		ReplyTo:        replyTo,
		Status:         MessageSent,
	}, nil
}

// NeedsDateDivider reports whether a date divider belongs between two
// consecutive messages: true when their calendar dates differ in loc.
func NeedsDateDivider(prev, cur time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	py, pm, pd := prev.In(loc).Date()
	cy, cm, cd := cur.In(loc).Date()
	return py != cy || pm != cm || pd != cd
}
