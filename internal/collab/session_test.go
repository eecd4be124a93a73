package collab_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/ticket-collab/internal/collab"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory ports.Channel.
type fakeChannel struct {
	events chan domain.Envelope

	mu      sync.Mutex
	emitted []domain.Envelope
	reply   func(event domain.EventType, payload any) (domain.Envelope, error)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		events: make(chan domain.Envelope, 32),
		reply: func(event domain.EventType, payload any) (domain.Envelope, error) {
			switch event {
			case domain.EventViewTicket:
				return domain.NewEnvelope(domain.EventViewers, domain.ViewersPayload{TicketID: 7})
			case domain.EventSendMessage:
				return domain.NewEnvelope(domain.EventMessageSent, domain.MessageSentPayload{Success: true, ID: "m42"})
			}
			return domain.Envelope{}, errors.New("unexpected request")
		},
	}
}

func (c *fakeChannel) ConnectionID() string { return testConnection }

func (c *fakeChannel) Events() <-chan domain.Envelope { return c.events }

func (c *fakeChannel) Emit(_ context.Context, event domain.EventType, payload any) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Request(_ context.Context, event domain.EventType, payload any) (domain.Envelope, error) {
	c.mu.Lock()
	reply := c.reply
	c.mu.Unlock()
	return reply(event, payload)
}

func (c *fakeChannel) setReply(fn func(event domain.EventType, payload any) (domain.Envelope, error)) {
	c.mu.Lock()
	c.reply = fn
	c.mu.Unlock()
}

func (c *fakeChannel) push(t *testing.T, event domain.EventType, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	require.NoError(t, err)
	c.events <- env
}

func (c *fakeChannel) emittedEvents() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventType, 0, len(c.emitted))
	for _, e := range c.emitted {
		out = append(out, e.Event)
	}
	return out
}

type stopCall struct {
	ReasonID string
	Reason   string
}

// fakeGateway serves tickets, worklogs and SLA timers from memory.
type fakeGateway struct {
	mu       sync.Mutex
	ticket   domain.TicketSnapshot
	messages []domain.Message
	active   *domain.WorklogSession
	total    int64
	timers   []domain.SLATimer
	starts   int
	stops    []stopCall
	startErr error
	stopErr  error
	// hold blocks ticket fetches until it is closed.
	hold chan struct{}
}

func (g *fakeGateway) GetTicket(_ context.Context, _ int64) (*domain.TicketDetail, error) {
	g.mu.Lock()
	hold := g.hold
	g.mu.Unlock()
	if hold != nil {
		<-hold
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return &domain.TicketDetail{
		Ticket:   g.ticket,
		Messages: append([]domain.Message(nil), g.messages...),
	}, nil
}

func (g *fakeGateway) StartWorklog(_ context.Context, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.starts++
	if g.startErr != nil {
		return g.startErr
	}
	if g.active != nil {
		return apperrors.ErrWorklogAlreadyActive
	}
	g.active = &domain.WorklogSession{ID: "w-new", StartedAt: time.Now()}
	return nil
}

func (g *fakeGateway) StopWorklog(_ context.Context, _ int64, reasonID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops = append(g.stops, stopCall{ReasonID: reasonID, Reason: reason})
	if g.stopErr != nil {
		return g.stopErr
	}
	if g.active == nil {
		return apperrors.ErrNoActiveWorklog
	}
	g.total += int64(time.Since(g.active.StartedAt) / time.Second)
	g.active = nil
	return nil
}

func (g *fakeGateway) GetWorklogs(_ context.Context, _ int64) (*domain.TimerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state := &domain.TimerState{TotalSeconds: g.total}
	if g.active != nil {
		active := *g.active
		state.ActiveLog = &active
	}
	return state, nil
}

func (g *fakeGateway) GetSLATimers(_ context.Context, _ string) ([]domain.SLATimer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.SLATimer(nil), g.timers...), nil
}

func (g *fakeGateway) setStatus(status domain.TicketStatus) {
	g.mu.Lock()
	g.ticket.Status = string(status)
	g.mu.Unlock()
}

func (g *fakeGateway) stopCalls() []stopCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]stopCall(nil), g.stops...)
}

func (g *fakeGateway) startCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts
}

func newGateway(assignee string) *fakeGateway {
	return &fakeGateway{ticket: ticketWith(domain.StatusOpen, assignee)}
}

func startSession(t *testing.T, ch *fakeChannel, gw *fakeGateway) *collab.Session {
	t.Helper()
	s := collab.NewSession(collab.Config{
		TicketID:        7,
		Agent:           testAuthor,
		TickInterval:    time.Hour,
		SLAPollInterval: time.Hour,
		Location:        time.UTC,
	}, collab.Dependencies{
		Channel:  ch,
		Tickets:  gw,
		Worklogs: gw,
		SLA:      gw,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func waitFor(t *testing.T, s *collab.Session, cond func(collab.Snapshot) bool) collab.Snapshot {
	t.Helper()
	var last collab.Snapshot
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = snap
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestSession_SendConfirmsOptimisticMessage(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	gw.active = &domain.WorklogSession{ID: "w1", StartedAt: time.Now()}
	s := startSession(t, ch, gw)
	ch.push(t, domain.EventChannelConnected, nil)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })

	ack := make(chan struct{})
	ch.setReply(func(event domain.EventType, _ any) (domain.Envelope, error) {
		if event == domain.EventSendMessage {
			<-ack
			return domain.NewEnvelope(domain.EventMessageSent, domain.MessageSentPayload{Success: true, ID: "m42"})
		}
		return domain.NewEnvelope(domain.EventViewers, domain.ViewersPayload{TicketID: 7})
	})

	tempID, err := s.SendMessage(context.Background(), collab.Draft{Content: "Hello"})
	require.NoError(t, err)

	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return len(snap.Messages) == 1 })
	assert.Equal(t, tempID, snap.Messages[0].ID)
	assert.Equal(t, domain.MessageSending, snap.Messages[0].Status)

	// The gateway's broadcast of our own message comes back before the ack.
	echo := serverMessage("m42", "Hello", time.Now())
	ch.push(t, domain.EventReceiveMessage, domain.ReceiveMessagePayload{Message: echo, ConnectionID: testConnection})
	close(ack)

	snap = waitFor(t, s, func(snap collab.Snapshot) bool {
		return len(snap.Messages) == 1 && snap.Messages[0].ID == "m42"
	})
	assert.Equal(t, domain.MessageSent, snap.Messages[0].Status)
	assert.Equal(t, "Hello", snap.Messages[0].Content)
}

func TestSession_SendFailureRestoresDraft(t *testing.T) {
	ch := newFakeChannel()
	ch.setReply(func(event domain.EventType, _ any) (domain.Envelope, error) {
		if event == domain.EventSendMessage {
			return domain.NewEnvelope(domain.EventMessageError, domain.MessageErrorPayload{Message: "conversation closed"})
		}
		return domain.NewEnvelope(domain.EventViewers, domain.ViewersPayload{TicketID: 7})
	})
	s := startSession(t, ch, newGateway(agentID))
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })

	_, err := s.SendMessage(context.Background(), collab.Draft{Content: "Hello"})
	require.NoError(t, err)

	select {
	case n := <-s.Notices():
		assert.Equal(t, collab.NoticeSendFailed, n.Kind)
		require.NotNil(t, n.Draft)
		assert.Equal(t, "Hello", n.Draft.Content)
		assert.EqualError(t, n.Err, "conversation closed")
	case <-time.After(2 * time.Second):
		t.Fatal("no notice")
	}
	waitFor(t, s, func(snap collab.Snapshot) bool { return len(snap.Messages) == 0 })
}

func TestSession_ReadOnlyTicketRefusesSends(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch, newGateway("agent-2"))
	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })
	assert.True(t, snap.ReadOnly)

	_, err := s.SendMessage(context.Background(), collab.Draft{Content: "Hello"})
	assert.ErrorIs(t, err, apperrors.ErrTicketReadOnly)

	err = s.StartTimer(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrTicketReadOnly)
}

func TestSession_AutoStopsWhenTicketCloses(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	gw.active = &domain.WorklogSession{ID: "w1", StartedAt: time.Now().Add(-125 * time.Second)}
	s := startSession(t, ch, gw)

	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Timer.Phase == collab.PhaseRunning })
	assert.GreaterOrEqual(t, snap.Timer.DisplaySeconds, int64(125))

	gw.setStatus(domain.StatusClosed)
	ch.push(t, domain.EventTicketUpdated, domain.TicketUpdatedPayload{TicketID: 7, Status: "closed"})

	snap = waitFor(t, s, func(snap collab.Snapshot) bool {
		return snap.Timer.Phase == collab.PhaseStoppedAuto && !snap.Timer.Pending && snap.Timer.Active == nil
	})
	assert.False(t, snap.Timer.ManualStopped)

	// Further refreshes of the closed ticket must not stop again.
	require.NoError(t, s.Refresh(context.Background()))
	ch.push(t, domain.EventTicketUpdated, domain.TicketUpdatedPayload{TicketID: 7, Status: "closed"})
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket.Status == "closed" })
	time.Sleep(50 * time.Millisecond)

	stops := gw.stopCalls()
	require.Len(t, stops, 1)
	assert.Equal(t, "Ticket Closed", stops[0].Reason)
	assert.Equal(t, 0, gw.startCalls())
}

func TestSession_AutoStartsAssignedTicket(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	s := startSession(t, ch, gw)

	waitFor(t, s, func(snap collab.Snapshot) bool {
		return snap.Timer.Phase == collab.PhaseRunning && snap.Timer.Active != nil
	})
	assert.Equal(t, 1, gw.startCalls())
}

func TestSession_ManualStopAndStart(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	gw.active = &domain.WorklogSession{ID: "w1", StartedAt: time.Now()}
	s := startSession(t, ch, gw)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Timer.Phase == collab.PhaseRunning })

	require.NoError(t, s.StopTimer(context.Background(), "break", ""))
	waitFor(t, s, func(snap collab.Snapshot) bool {
		return snap.Timer.ManualStopped && !snap.Timer.Pending && snap.Timer.Active == nil
	})

	// A refresh of the still-open ticket does not restart a manually stopped timer.
	require.NoError(t, s.Refresh(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gw.startCalls())

	require.NoError(t, s.StartTimer(context.Background()))
	waitFor(t, s, func(snap collab.Snapshot) bool {
		return snap.Timer.Phase == collab.PhaseRunning && snap.Timer.Active != nil
	})
	assert.Equal(t, 1, gw.startCalls())
	assert.Equal(t, []stopCall{{ReasonID: "break"}}, gw.stopCalls())
}

func TestSession_WorklogFailureRaisesNotice(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway("")
	gw.startErr = errors.New("gateway unavailable")
	s := startSession(t, ch, gw)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })

	require.NoError(t, s.StartTimer(context.Background()))

	select {
	case n := <-s.Notices():
		assert.Equal(t, collab.NoticeWorklogFailed, n.Kind)
		require.NotNil(t, n.Action)
		assert.Equal(t, collab.ActionStart, n.Action.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no notice")
	}
	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return !snap.Timer.Pending })
	assert.Equal(t, collab.PhaseStoppedAuto, snap.Timer.Phase)
}

func waitNotice(t *testing.T, s *collab.Session) collab.Notice {
	t.Helper()
	select {
	case n := <-s.Notices():
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notice")
	}
	return collab.Notice{}
}

func TestSession_FailedAutoStartIsNotRetried(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	gw.startErr = errors.New("gateway unavailable")
	s := startSession(t, ch, gw)

	n := waitNotice(t, s)
	assert.Equal(t, collab.NoticeWorklogFailed, n.Kind)
	require.NotNil(t, n.Action)
	assert.False(t, n.Action.Manual)

	require.NoError(t, s.Refresh(context.Background()))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, gw.startCalls())
	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return !snap.Timer.Pending })
	assert.Equal(t, collab.PhaseStoppedAuto, snap.Timer.Phase)

	// The agent can still start the timer by hand once the gateway recovers.
	gw.mu.Lock()
	gw.startErr = nil
	gw.mu.Unlock()
	require.NoError(t, s.StartTimer(context.Background()))
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Timer.Phase == collab.PhaseRunning })
	assert.Equal(t, 2, gw.startCalls())
}

func TestSession_FailedAutoStopIsNotRetried(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway(agentID)
	gw.active = &domain.WorklogSession{ID: "w1", StartedAt: time.Now()}
	gw.stopErr = errors.New("gateway unavailable")
	s := startSession(t, ch, gw)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Timer.Phase == collab.PhaseRunning })

	gw.setStatus(domain.StatusClosed)
	ch.push(t, domain.EventTicketUpdated, domain.TicketUpdatedPayload{TicketID: 7, Status: "closed"})

	n := waitNotice(t, s)
	require.NotNil(t, n.Action)
	assert.Equal(t, collab.ActionStop, n.Action.Kind)

	require.NoError(t, s.Refresh(context.Background()))
	time.Sleep(100 * time.Millisecond)

	stops := gw.stopCalls()
	require.Len(t, stops, 1)
	assert.Equal(t, "Ticket Closed", stops[0].Reason)
	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return !snap.Timer.Pending })
	assert.Equal(t, collab.PhaseRunning, snap.Timer.Phase)
}

func TestSession_StaleResyncKeepsLateMessages(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway("")
	s := startSession(t, ch, gw)
	ch.push(t, domain.EventChannelConnected, nil)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })

	hold := make(chan struct{})
	gw.mu.Lock()
	gw.hold = hold
	gw.mu.Unlock()

	// The refetch is in flight when Bob's message arrives.
	ch.push(t, domain.EventTicketUpdated, domain.TicketUpdatedPayload{TicketID: 7, Status: "open"})
	late := serverMessage("m9", "are you there?", time.Now())
	ch.push(t, domain.EventReceiveMessage, domain.ReceiveMessagePayload{Message: late, ConnectionID: "conn-bob"})
	waitFor(t, s, func(snap collab.Snapshot) bool { return len(snap.Messages) == 1 })

	gw.mu.Lock()
	gw.hold = nil
	gw.ticket.Title = "refetched"
	gw.mu.Unlock()
	close(hold)

	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket.Title == "refetched" })
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "m9", snap.Messages[0].ID)
}

func TestSession_Presence(t *testing.T) {
	ch := newFakeChannel()
	ch.setReply(func(event domain.EventType, _ any) (domain.Envelope, error) {
		return domain.NewEnvelope(domain.EventViewers, domain.ViewersPayload{
			TicketID: 7,
			Viewers:  []domain.Viewer{self, bob},
		})
	})
	s := startSession(t, ch, newGateway(""))

	ch.push(t, domain.EventChannelConnected, nil)
	waitFor(t, s, func(snap collab.Snapshot) bool {
		return assert.ObjectsAreEqual([]string{"agent-1", "agent-2"}, userIDs(snap.Viewers))
	})
	require.Eventually(t, func() bool {
		for _, e := range ch.emittedEvents() {
			if e == domain.EventSubscribeConversation {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	ch.push(t, domain.EventViewerJoined, domain.ViewerJoinedPayload{TicketID: 7, Viewer: carla})
	ch.push(t, domain.EventViewerLeft, domain.ViewerLeftPayload{TicketID: 7, UserID: "agent-2"})
	ch.push(t, domain.EventViewerLeft, domain.ViewerLeftPayload{TicketID: 7, UserID: "agent-1"})
	waitFor(t, s, func(snap collab.Snapshot) bool {
		return assert.ObjectsAreEqual([]string{"agent-1", "agent-3"}, userIDs(snap.Viewers))
	})

	ch.push(t, domain.EventChannelDegraded, nil)
	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return snap.PresenceDegraded })
	assert.Equal(t, []string{"agent-1"}, userIDs(snap.Viewers))
	assert.False(t, snap.Connected)
}

func TestSession_SLARisk(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway("")
	gw.timers = []domain.SLATimer{
		{DisplayStatus: domain.RiskOnTrack, PercentageElapsed: 10},
		{DisplayStatus: domain.RiskCritical, PercentageElapsed: 92},
		{DisplayStatus: domain.RiskPaused, PercentageElapsed: 40},
	}
	s := startSession(t, ch, gw)

	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return snap.HasRisk })
	assert.Equal(t, domain.RiskCritical, snap.Risk)
	assert.Len(t, snap.SLATimers, 3)
}

func TestSession_ReconnectResyncs(t *testing.T) {
	ch := newFakeChannel()
	gw := newGateway("")
	s := startSession(t, ch, gw)
	waitFor(t, s, func(snap collab.Snapshot) bool { return snap.Ticket != nil })

	gw.mu.Lock()
	gw.messages = []domain.Message{serverMessage("m1", "while you were away", time.Now())}
	gw.mu.Unlock()

	ch.push(t, domain.EventChannelReconnected, nil)

	snap := waitFor(t, s, func(snap collab.Snapshot) bool { return len(snap.Messages) == 1 })
	assert.Equal(t, "m1", snap.Messages[0].ID)
	assert.True(t, snap.Connected)
}

func TestSession_CommandsAfterShutdown(t *testing.T) {
	s := collab.NewSession(collab.Config{TicketID: 7, Agent: testAuthor}, collab.Dependencies{
		Channel:  newFakeChannel(),
		Tickets:  newGateway(""),
		Worklogs: newGateway(""),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := s.SendMessage(context.Background(), collab.Draft{Content: "late"})
	assert.ErrorIs(t, err, collab.ErrSessionClosed)
}

func TestNotice_String(t *testing.T) {
	n := collab.Notice{Kind: collab.NoticeWorklogFailed, Err: errors.New("boom"), Action: &collab.Action{Kind: collab.ActionStop}}
	assert.Equal(t, "worklog stop failed: boom", n.String())
}
