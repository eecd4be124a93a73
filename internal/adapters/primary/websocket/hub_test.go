package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/lorrc/ticket-collab/internal/adapters/primary/websocket"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/mocks"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/lorrc/ticket-collab/internal/infrastructure/logging"
	"github.com/lorrc/ticket-collab/internal/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testActor = domain.Actor{
	ID:   uuid.MustParse("6f1c1d4e-2a7b-4c1e-9f0a-1b2c3d4e5f60"),
	Name: "Ada",
	Role: domain.SenderAgent,
}

type hubFixture struct {
	hub      *websocket.Hub
	url      string
	messages *mocks.MockMessageService
	presence *mocks.MockPresenceService
}

func startHub(t *testing.T) *hubFixture {
	t.Helper()

	f := &hubFixture{
		messages: mocks.NewMockMessageService(),
		presence: mocks.NewMockPresenceService(),
	}
	f.hub = websocket.NewHub(metrics.New(), logging.Discard())
	f.hub.SetServices(f.messages, f.presence)

	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)

	upgrader := gws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.hub.ServeClient(conn, testActor, r.URL.Query().Get("connectionId"), websocket.DefaultTiming())
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

func (f *hubFixture) dial(t *testing.T, connectionID string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(f.url+"?connectionId="+connectionID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *gws.Conn, event domain.EventType, ackID string, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	require.NoError(t, err)
	env.AckID = ackID
	require.NoError(t, conn.WriteJSON(env))
}

func read(t *testing.T, conn *gws.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env domain.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHub_Ping(t *testing.T) {
	f := startHub(t)
	conn := f.dial(t, "conn-1")

	send(t, conn, domain.EventPing, "a1", nil)

	env := read(t, conn)
	assert.Equal(t, domain.EventPong, env.Event)
	assert.Equal(t, "a1", env.AckID)
}

func TestHub_UnknownEvent(t *testing.T) {
	f := startHub(t)
	conn := f.dial(t, "conn-1")

	send(t, conn, "ticket:delete", "a1", nil)

	env := read(t, conn)
	assert.Equal(t, domain.EventError, env.Event)
	assert.Equal(t, "a1", env.AckID)
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	f := startHub(t)
	inRoom := f.dial(t, "conn-1")
	elsewhere := f.dial(t, "conn-2")

	send(t, inRoom, domain.EventSubscribeConversation, "s1", domain.SubscribePayload{ConversationID: "conv-a", TicketID: 7})
	send(t, elsewhere, domain.EventSubscribeConversation, "s2", domain.SubscribePayload{ConversationID: "conv-b"})
	assert.Equal(t, domain.EventSubscribed, read(t, inRoom).Event)
	assert.Equal(t, domain.EventSubscribed, read(t, elsewhere).Event)
	assert.Equal(t, 1, f.hub.ClientsInRoom(domain.TicketRoom(7)))

	env, err := domain.NewEnvelope(domain.EventTicketUpdated, domain.TicketUpdatedPayload{TicketID: 7, Status: "pending"})
	require.NoError(t, err)
	env.Room = domain.ConversationRoom("conv-a")
	require.NoError(t, f.hub.Broadcast(env))

	got := read(t, inRoom)
	assert.Equal(t, domain.EventTicketUpdated, got.Event)

	require.NoError(t, elsewhere.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = elsewhere.ReadMessage()
	assert.Error(t, err, "other rooms receive nothing")
}

func TestHub_SubscribeRequiresConversation(t *testing.T) {
	f := startHub(t)
	conn := f.dial(t, "conn-1")

	send(t, conn, domain.EventSubscribeConversation, "s1", domain.SubscribePayload{TicketID: 7})

	assert.Equal(t, domain.EventError, read(t, conn).Event)
	assert.Zero(t, f.hub.RoomCount())
}

func TestHub_SendMessage(t *testing.T) {
	t.Run("acknowledges the persisted message", func(t *testing.T) {
		f := startHub(t)
		conn := f.dial(t, "conn-1")
		createdAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

		f.messages.On("SendMessage", mock.Anything, mock.MatchedBy(func(p ports.SendMessageParams) bool {
			return p.Actor.ID == testActor.ID &&
				p.Request.Content == "hi" &&
				p.Request.ConnectionID == "conn-1"
		})).Return(&domain.Message{ID: "m1", CreatedAt: createdAt}, nil)

		send(t, conn, domain.EventSendMessage, "a1", domain.SendMessagePayload{
			ConversationID: "conv-a",
			Content:        "hi",
			ConnectionID:   "spoofed",
		})

		env := read(t, conn)
		require.Equal(t, domain.EventMessageSent, env.Event)
		assert.Equal(t, "a1", env.AckID)

		var ack domain.MessageSentPayload
		require.NoError(t, env.Decode(&ack))
		assert.True(t, ack.Success)
		assert.Equal(t, "m1", ack.ID)
		assert.Equal(t, "2024-05-01T09:00:00Z", ack.CreatedAt)
		f.messages.AssertExpectations(t)
	})

	t.Run("reports a rejected send", func(t *testing.T) {
		f := startHub(t)
		conn := f.dial(t, "conn-1")

		f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(nil, apperrors.ErrTicketReadOnly)

		send(t, conn, domain.EventSendMessage, "a1", domain.SendMessagePayload{ConversationID: "conv-a", Content: "hi"})

		env := read(t, conn)
		require.Equal(t, domain.EventMessageError, env.Event)
		var nack domain.MessageErrorPayload
		require.NoError(t, env.Decode(&nack))
		assert.Equal(t, apperrors.ErrTicketReadOnly.Error(), nack.Message)
	})
}

func TestHub_ViewTicketReleasesPresenceOnClose(t *testing.T) {
	f := startHub(t)
	conn := f.dial(t, "conn-1")
	left := make(chan struct{})

	f.presence.On("View", mock.Anything, "conn-1", int64(7), testActor.Viewer()).
		Return([]domain.Viewer{testActor.Viewer()}, nil)
	f.presence.On("Leave", mock.Anything, "conn-1", int64(7)).
		Run(func(mock.Arguments) { close(left) }).
		Return(nil)

	send(t, conn, domain.EventViewTicket, "v1", domain.ViewTicketPayload{TicketID: 7})

	env := read(t, conn)
	require.Equal(t, domain.EventViewers, env.Event)
	var ack domain.ViewersPayload
	require.NoError(t, env.Decode(&ack))
	assert.Equal(t, []domain.Viewer{testActor.Viewer()}, ack.Viewers)
	assert.Equal(t, 1, f.hub.ClientsInRoom(domain.TicketRoom(7)))

	require.NoError(t, conn.Close())

	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("presence was not released")
	}
	f.hub.Shutdown()
	f.presence.AssertExpectations(t)
}

func TestHub_ReconnectKeepsPresence(t *testing.T) {
	f := startHub(t)
	old := f.dial(t, "conn-1")
	fresh := f.dial(t, "conn-1")

	f.presence.On("View", mock.Anything, "conn-1", int64(7), mock.Anything).
		Return([]domain.Viewer{testActor.Viewer()}, nil)

	send(t, old, domain.EventViewTicket, "v1", domain.ViewTicketPayload{TicketID: 7})
	send(t, fresh, domain.EventViewTicket, "v2", domain.ViewTicketPayload{TicketID: 7})
	read(t, old)
	read(t, fresh)
	require.Equal(t, 2, f.hub.ClientCount())

	require.NoError(t, old.Close())
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.Shutdown()
	f.presence.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
}
