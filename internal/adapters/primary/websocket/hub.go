package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/lorrc/ticket-collab/internal/infrastructure/metrics"
)

// leaveTimeout bounds the presence cleanup of a closed connection.
const leaveTimeout = 5 * time.Second

// Hub maintains the set of active Clients and broadcasts envelopes to the
// rooms they joined.
type Hub struct {
	// clients maps connection IDs to their live sockets. A reconnecting
	// client can briefly own two sockets under the same connection ID.
	clients map[string]map[*Client]bool

	// rooms maps room names to joined clients
	rooms map[string]map[*Client]bool

	broadcast  chan domain.Envelope
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	// wg tracks presence cleanup goroutines
	wg sync.WaitGroup

	messages ports.MessageService
	presence ports.PresenceService
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub. The services are wired after
// construction with SetServices because they broadcast through the hub.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Envelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger.With("component", "websocket_hub"),
	}
}

// SetServices wires the use cases that handle inbound envelopes.
func (h *Hub) SetServices(messages ports.MessageService, presence ports.PresenceService) {
	h.messages = messages
	h.presence = presence
}

// Broadcast queues an envelope for every client in env.Room.
func (h *Hub) Broadcast(env domain.Envelope) error {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("broadcast channel full, dropping envelope",
			"event", env.Event,
			"room", env.Room,
		)
	}
	return nil
}

// Run starts the hub's event loop until ctx is cancelled. This MUST be run
// as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.broadcastEnvelope(env)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Shutdown waits for pending presence cleanup.
func (h *Hub) Shutdown() {
	h.wg.Wait()
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.ConnectionID] == nil {
		h.clients[client.ConnectionID] = make(map[*Client]bool)
	}
	h.clients[client.ConnectionID][client] = true
	h.metrics.ConnectionOpened()

	h.logger.Info("client registered",
		"user_id", client.Actor.ID,
		"connection_id", client.ConnectionID,
	)
}

// unregisterClient removes a client from the hub and all rooms, then
// releases its presence entries.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	conns, ok := h.clients[client.ConnectionID]
	if !ok || !conns[client] {
		h.mu.Unlock()
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.ConnectionID)
	}

	for _, room := range client.Rooms() {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	// The same connection ID is still live on another socket; its presence
	// entries now belong to that socket.
	reconnected := len(h.clients[client.ConnectionID]) > 0
	viewing := client.Viewing()
	release := !reconnected && h.presence != nil && len(viewing) > 0
	if release {
		h.wg.Add(1)
	}
	h.mu.Unlock()

	client.CloseSend()
	h.metrics.ConnectionClosed()
	for range viewing {
		h.metrics.ViewerRemoved()
	}
	if release {
		go h.releasePresence(client.ConnectionID, viewing)
	}

	h.logger.Info("client unregistered",
		"user_id", client.Actor.ID,
		"connection_id", client.ConnectionID,
		"reconnected", reconnected,
	)
}

func (h *Hub) releasePresence(connectionID string, tickets []int64) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	for _, ticketID := range tickets {
		if err := h.presence.Leave(ctx, connectionID, ticketID); err != nil {
			h.logger.Error("failed to release presence",
				"connection_id", connectionID,
				"ticket_id", ticketID,
				"error", err,
			)
		}
	}
}

func (h *Hub) broadcastEnvelope(env domain.Envelope) {
	h.mu.RLock()
	room, ok := h.rooms[env.Room]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting envelope",
		"event", env.Event,
		"room", env.Room,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.enqueue(env) {
			h.logger.Warn("client send buffer full, unregistering",
				"connection_id", client.ConnectionID,
			)
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.addRoom(room)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.clients {
		for client := range conns {
			client.CloseSend()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientsInRoom returns the number of clients that joined a room.
func (h *Hub) ClientsInRoom(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
