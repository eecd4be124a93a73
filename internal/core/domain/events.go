package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EventType names an envelope on the collaboration channel.
type EventType string

// Outbound (client → gateway) events.
const (
	EventSubscribeConversation EventType = "conversation:subscribe"
	EventSendMessage           EventType = "send_message"
	EventViewTicket            EventType = "ticket:view"
	EventPing                  EventType = "ping"
)

// Inbound (gateway → client) events.
const (
	EventReceiveMessage EventType = "receive_message"
	EventMessageSent    EventType = "message_sent"
	EventMessageError   EventType = "message_error"
	EventViewers        EventType = "ticket:viewers"
	EventViewerJoined   EventType = "ticket:viewer:joined"
	EventViewerLeft     EventType = "ticket:viewer:left"
	EventTicketUpdated  EventType = "ticket:updated"
	EventSubscribed     EventType = "conversation:subscribed"
	EventError          EventType = "error"
	EventPong           EventType = "pong"
)

// Connection lifecycle events raised locally by the client transport. They
// never travel over the wire.
const (
	EventChannelConnected    EventType = "channel:connected"
	EventChannelReconnected  EventType = "channel:reconnected"
	EventChannelDisconnected EventType = "channel:disconnected"
	EventChannelDegraded     EventType = "channel:degraded"
)

// Envelope is one JSON frame on the channel. A request carries an AckID and
// its reply reuses it.
type Envelope struct {
	Event   EventType       `json:"event"`
	AckID   string          `json:"ackId,omitempty"`
	Room    string          `json:"-"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(event EventType, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// ConversationRoom is the hub room of a conversation's message stream.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// TicketRoom is the hub room of a ticket's presence and lifecycle events.
func TicketRoom(ticketID int64) string {
	return "ticket:" + strconv.FormatInt(ticketID, 10)
}

// SubscribePayload joins a conversation's event scope.
type SubscribePayload struct {
	ConversationID string `json:"conversationId"`
	TicketID       int64  `json:"ticketId"`
}

// SendMessagePayload is the outbound send_message request.
type SendMessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Content        string          `json:"content"`
	SenderID       string          `json:"senderId"`
	SenderType     SenderType      `json:"senderType"`
	SenderName     string          `json:"senderName"`
	ConnectionID   string          `json:"connectionId"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ReplyToID      *string         `json:"replyToId,omitempty"`
}

// MessageSentPayload acknowledges a persisted message.
type MessageSentPayload struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// MessageErrorPayload reports a rejected send.
type MessageErrorPayload struct {
	Message string `json:"message"`
}

// ReceiveMessagePayload is a broadcast message plus its origin connection.
type ReceiveMessagePayload struct {
	Message
	ConnectionID string `json:"connectionId"`
}

// ViewTicketPayload announces that a user is viewing a ticket.
type ViewTicketPayload struct {
	TicketID int64 `json:"ticketId"`
	Viewer
}

// ViewersPayload acknowledges ticket:view with the current viewer set.
type ViewersPayload struct {
	TicketID int64    `json:"ticketId"`
	Viewers  []Viewer `json:"viewers"`
}

// ViewerJoinedPayload is broadcast when a user starts viewing a ticket.
type ViewerJoinedPayload struct {
	TicketID int64 `json:"ticketId"`
	Viewer
}

// ViewerLeftPayload is broadcast when a user's last view of a ticket ends.
type ViewerLeftPayload struct {
	TicketID int64  `json:"ticketId"`
	UserID   string `json:"userId"`
}

// TicketUpdatedPayload hints that the ticket's REST representation changed.
type TicketUpdatedPayload struct {
	TicketID   int64   `json:"ticketId"`
	Status     string  `json:"status"`
	AssigneeID *string `json:"assigneeId"`
}

// ErrorPayload reports a rejected request that has no dedicated error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
