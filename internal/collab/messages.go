package collab

import (
	"encoding/json"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
)

// Draft is the agent's unsent input. It is handed back when a send fails so
// the agent can retry.
type Draft struct {
	Content   string
	Metadata  json.RawMessage
	ReplyToID *string
}

// Author identifies the local agent writing into a conversation.
type Author struct {
	UserID     string
	Name       string
	Avatar     string
	SenderType domain.SenderType
}

// Viewer returns the author's presence identity.
func (a Author) Viewer() domain.Viewer {
	return domain.Viewer{UserID: a.UserID, UserName: a.Name, UserAvatar: a.Avatar}
}

// MessageItem is a message prepared for display.
type MessageItem struct {
	domain.Message
	// DateDivider is set when the message starts a new calendar day.
	DateDivider bool
}

// MessageLog reconciles optimistic local messages with confirmations and
// broadcasts for one conversation. Display order is processing order.
// MessageLog is not safe for concurrent use; the owning Session serializes
// access.
type MessageLog struct {
	conversationID string
	connectionID   string
	author         Author
	now            func() time.Time

	messages []domain.Message
	index    map[string]int
	drafts   map[string]Draft
	// confirmed holds ids confirmed through this log that a resync snapshot
	// has not yet reported.
	confirmed map[string]struct{}
	// arrived maps received ids to the arrival counter value they got.
	arrived map[string]uint64
	seq     uint64
}

// NewMessageLog creates an empty log for a conversation.
func NewMessageLog(conversationID, connectionID string, author Author, now func() time.Time) *MessageLog {
	if now == nil {
		now = time.Now
	}
	return &MessageLog{
		conversationID: conversationID,
		connectionID:   connectionID,
		author:         author,
		now:            now,
		index:          make(map[string]int),
		drafts:         make(map[string]Draft),
		confirmed:      make(map[string]struct{}),
		arrived:        make(map[string]uint64),
	}
}

// ConversationID returns the conversation this log tracks.
func (l *MessageLog) ConversationID() string {
	return l.conversationID
}

// Mark returns the current arrival counter. Take it when a snapshot fetch is
// issued and pass it to Reset with the response.
func (l *MessageLog) Mark() uint64 {
	return l.seq
}

// Send appends an optimistic message for draft and returns it together with
// the send_message request to emit.
func (l *MessageLog) Send(draft Draft) (domain.Message, domain.SendMessagePayload) {
	msg := domain.Message{
		ID:             domain.NewTempID(),
		ConversationID: l.conversationID,
		Content:        draft.Content,
		SenderType:     l.author.SenderType,
		SenderID:       l.author.UserID,
		SenderName:     l.author.Name,
		CreatedAt:      l.now().UTC(),
		Metadata:       draft.Metadata,
		ReplyTo:        draft.ReplyToID,
		Status:         domain.MessageSending,
	}
	l.append(msg)
	l.drafts[msg.ID] = draft

	payload := domain.SendMessagePayload{
		ConversationID: l.conversationID,
		Content:        draft.Content,
		SenderID:       l.author.UserID,
		SenderType:     l.author.SenderType,
		SenderName:     l.author.Name,
		ConnectionID:   l.connectionID,
		Metadata:       draft.Metadata,
		ReplyToID:      draft.ReplyToID,
	}
	return msg, payload
}

// Confirm swaps the temporary id for the server id in place and marks the
// message sent. It reports false when tempID is no longer pending, which
// makes repeated confirmations no-ops.
func (l *MessageLog) Confirm(tempID, serverID string, createdAt time.Time) bool {
	pos, ok := l.index[tempID]
	if !ok || serverID == "" {
		return false
	}
	delete(l.drafts, tempID)
	l.confirmed[serverID] = struct{}{}

	// The broadcast copy won the race; keep the single server entry.
	if _, exists := l.index[serverID]; exists {
		l.removeAt(pos)
		return true
	}

	msg := &l.messages[pos]
	msg.ID = serverID
	msg.Status = domain.MessageSent
	msg.Delayed = false
	if !createdAt.IsZero() {
		msg.CreatedAt = createdAt.UTC()
	}
	delete(l.index, tempID)
	l.index[serverID] = pos
	return true
}

// Fail removes the optimistic message and returns its draft for retry.
func (l *MessageLog) Fail(tempID string) (Draft, bool) {
	pos, ok := l.index[tempID]
	if !ok {
		return Draft{}, false
	}
	draft := l.drafts[tempID]
	delete(l.drafts, tempID)
	l.removeAt(pos)
	return draft, true
}

// MarkDelayed flags a still-pending message whose confirmation is overdue.
func (l *MessageLog) MarkDelayed(tempID string) bool {
	pos, ok := l.index[tempID]
	if !ok || l.messages[pos].Status != domain.MessageSending {
		return false
	}
	l.messages[pos].Delayed = true
	return true
}

// Receive merges a broadcast message. Echoes of this connection's own sends
// and already-present ids are dropped; it reports whether msg was appended.
func (l *MessageLog) Receive(msg domain.Message, originConnectionID string) bool {
	if originConnectionID != "" && originConnectionID == l.connectionID {
		return false
	}
	if msg.ID == "" || msg.ConversationID != l.conversationID {
		return false
	}
	if _, ok := l.index[msg.ID]; ok {
		return false
	}
	msg.Status = domain.MessageSent
	msg.Delayed = false
	l.seq++
	l.arrived[msg.ID] = l.seq
	l.append(msg)
	return true
}

// Reset replaces the log with a full server snapshot fetched at mark.
// Optimistic messages still waiting for confirmation, confirmed messages the
// snapshot does not contain yet, and messages received after mark are kept
// after the snapshot in their current order.
func (l *MessageLog) Reset(server []domain.Message, mark uint64) {
	next := make([]domain.Message, 0, len(server)+len(l.drafts))
	seen := make(map[string]struct{}, len(server))
	for _, m := range server {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.Status = domain.MessageSent
		m.Delayed = false
		next = append(next, m)
	}

	for _, m := range l.messages {
		if _, inSnapshot := seen[m.ID]; inSnapshot {
			continue
		}
		_, pending := l.drafts[m.ID]
		_, confirmed := l.confirmed[m.ID]
		if pending || confirmed || l.arrived[m.ID] > mark {
			next = append(next, m)
		}
	}

	for id := range l.confirmed {
		if _, ok := seen[id]; ok {
			delete(l.confirmed, id)
		}
	}
	for id, at := range l.arrived {
		if _, ok := seen[id]; ok || at <= mark {
			delete(l.arrived, id)
		}
	}

	l.messages = next
	l.reindex()
}

// Messages returns a copy of the ordered message list.
func (l *MessageLog) Messages() []domain.Message {
	out := make([]domain.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Items returns the messages with date dividers computed in loc.
func (l *MessageLog) Items(loc *time.Location) []MessageItem {
	items := make([]MessageItem, len(l.messages))
	for i, m := range l.messages {
		divider := i == 0 || domain.NeedsDateDivider(l.messages[i-1].CreatedAt, m.CreatedAt, loc)
		items[i] = MessageItem{Message: m, DateDivider: divider}
	}
	return items
}

// Pending returns the number of messages waiting for confirmation.
func (l *MessageLog) Pending() int {
	return len(l.drafts)
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

func (l *MessageLog) append(msg domain.Message) {
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
}

func (l *MessageLog) removeAt(pos int) {
	l.messages = append(l.messages[:pos], l.messages[pos+1:]...)
	l.reindex()
}

func (l *MessageLog) reindex() {
	l.index = make(map[string]int, len(l.messages))
	for i, m := range l.messages {
		l.index[m.ID] = i
	}
}
