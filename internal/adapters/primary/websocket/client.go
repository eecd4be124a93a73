package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/lorrc/ticket-collab/internal/infrastructure/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Time allowed for a use case triggered by one inbound envelope.
	requestTimeout = 10 * time.Second

	sendBufferSize = 256
)

// Timing holds the keep-alive settings of a connection.
type Timing struct {
	PingInterval time.Duration
	PongWait     time.Duration
}

// DefaultTiming matches gorilla's recommended ratio.
func DefaultTiming() Timing {
	return Timing{PingInterval: 54 * time.Second, PongWait: 60 * time.Second}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// Actor is the authenticated user of the connection.
	Actor domain.Actor

	// ConnectionID is chosen by the client and survives its reconnects.
	ConnectionID string

	send      chan domain.Envelope
	closed    bool
	sendMu    sync.Mutex
	closeOnce sync.Once

	// mu protects rooms and viewing
	mu      sync.RWMutex
	rooms   map[string]bool
	viewing map[int64]bool

	timing Timing
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// ServeClient registers an upgraded connection and starts its pumps.
func (h *Hub) ServeClient(conn *websocket.Conn, actor domain.Actor, connectionID string, timing Timing) *Client {
	ctx := logging.WithUserID(context.Background(), actor.ID.String())
	ctx = logging.WithConnectionID(ctx, connectionID)
	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		Hub:          h,
		Conn:         conn,
		Actor:        actor,
		ConnectionID: connectionID,
		send:         make(chan domain.Envelope, sendBufferSize),
		rooms:        make(map[string]bool),
		viewing:      make(map[int64]bool),
		timing:       timing,
		ctx:          ctx,
		cancel:       cancel,
		logger:       h.logger.With("user_id", actor.ID.String(), "connection_id", connectionID),
	}

	if !h.register(client) {
		cancel()
		_ = conn.Close()
		return client
	}

	go client.WritePump()
	go client.ReadPump()
	return client
}

// CloseSend safely closes the send channel exactly once.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
	})
}

// enqueue queues env without blocking. It reports false when the buffer is
// full or the client is gone.
func (c *Client) enqueue(env domain.Envelope) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

// Rooms returns a copy of the joined rooms.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// markViewing reports whether the ticket was not viewed before.
func (c *Client) markViewing(ticketID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.viewing[ticketID] {
		return false
	}
	c.viewing[ticketID] = true
	return true
}

// Viewing returns the tickets this connection announced.
func (c *Client) Viewing() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickets := make([]int64, 0, len(c.viewing))
	for id := range c.viewing {
		tickets = append(tickets, id)
	}
	return tickets
}

// ReadPump pumps envelopes from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.Hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timing.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.timing.PongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncoming(message)
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timing.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.Conn.WriteJSON(env); err != nil {
				c.logger.Error("failed to write envelope", "error", err)
				return
			}
			c.Hub.metrics.Envelope(string(env.Event), "out")

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming envelope handling ---

func (c *Client) handleIncoming(message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn("failed to unmarshal client envelope", "error", err)
		return
	}
	c.Hub.metrics.Envelope(string(env.Event), "in")

	switch env.Event {
	case domain.EventSubscribeConversation:
		c.handleSubscribe(env)

	case domain.EventSendMessage:
		c.handleSendMessage(env)

	case domain.EventViewTicket:
		c.handleViewTicket(env)

	case domain.EventPing:
		c.reply(env.AckID, domain.EventPong, nil)

	default:
		c.logger.Debug("received unknown event", "event", env.Event)
		if env.AckID != "" {
			c.reply(env.AckID, domain.EventError, domain.ErrorPayload{Message: "unknown event " + string(env.Event)})
		}
	}
}

func (c *Client) handleSubscribe(env domain.Envelope) {
	var p domain.SubscribePayload
	if err := env.Decode(&p); err != nil || p.ConversationID == "" {
		c.reply(env.AckID, domain.EventError, domain.ErrorPayload{Message: "conversationId is required"})
		return
	}

	c.Hub.join(c, domain.ConversationRoom(p.ConversationID))
	if p.TicketID > 0 {
		c.Hub.join(c, domain.TicketRoom(p.TicketID))
	}
	c.reply(env.AckID, domain.EventSubscribed, p)
}

func (c *Client) handleSendMessage(env domain.Envelope) {
	var req domain.SendMessagePayload
	if err := env.Decode(&req); err != nil {
		c.reply(env.AckID, domain.EventMessageError, domain.MessageErrorPayload{Message: "malformed message"})
		return
	}
	// Echo suppression keys on the socket's own connection ID.
	req.ConnectionID = c.ConnectionID

	if c.Hub.messages == nil {
		c.reply(env.AckID, domain.EventMessageError, domain.MessageErrorPayload{Message: "messaging unavailable"})
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	msg, err := c.Hub.messages.SendMessage(ctx, ports.SendMessageParams{Actor: c.Actor, Request: req})
	if err != nil {
		c.logger.Warn("send_message rejected", "error", err)
		c.reply(env.AckID, domain.EventMessageError, domain.MessageErrorPayload{Message: err.Error()})
		return
	}

	c.reply(env.AckID, domain.EventMessageSent, domain.MessageSentPayload{
		Success:   true,
		ID:        msg.ID,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (c *Client) handleViewTicket(env domain.Envelope) {
	var p domain.ViewTicketPayload
	if err := env.Decode(&p); err != nil || p.TicketID <= 0 {
		c.reply(env.AckID, domain.EventError, domain.ErrorPayload{Message: "ticketId is required"})
		return
	}
	if c.Hub.presence == nil {
		c.reply(env.AckID, domain.EventError, domain.ErrorPayload{Message: "presence unavailable"})
		return
	}

	// Identity comes from the token; only the avatar is taken from the client.
	viewer := c.Actor.Viewer()
	viewer.UserAvatar = p.UserAvatar

	c.Hub.join(c, domain.TicketRoom(p.TicketID))

	ctx, cancel := context.WithTimeout(logging.WithTicketID(c.ctx, p.TicketID), requestTimeout)
	defer cancel()

	viewers, err := c.Hub.presence.View(ctx, c.ConnectionID, p.TicketID, viewer)
	if err != nil {
		c.logger.Error("failed to record viewer", "ticket_id", p.TicketID, "error", err)
		c.reply(env.AckID, domain.EventError, domain.ErrorPayload{Message: "presence unavailable"})
		return
	}
	if c.markViewing(p.TicketID) {
		c.Hub.metrics.ViewerAdded()
	}

	c.reply(env.AckID, domain.EventViewers, domain.ViewersPayload{TicketID: p.TicketID, Viewers: viewers})
}

func (c *Client) reply(ackID string, event domain.EventType, payload any) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error("failed to build reply", "event", event, "error", err)
		return
	}
	env.AckID = ackID
	if !c.enqueue(env) {
		c.logger.Warn("dropping reply, send buffer full", "event", event)
	}
}
