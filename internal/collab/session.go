package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

var (
	// ErrSessionClosed is returned by commands issued after Run returned.
	ErrSessionClosed = errors.New("session closed")
	// ErrTicketNotLoaded is returned by commands that need the ticket before
	// its first fetch completed.
	ErrTicketNotLoaded = errors.New("ticket not loaded yet")
)

// Config holds the per-view session settings.
type Config struct {
	TicketID int64
	Agent    Author

	// TickInterval drives the displayed worklog duration.
	TickInterval time.Duration
	// SLAPollInterval is how often SLA timers are refetched.
	SLAPollInterval time.Duration
	// TicketPollInterval refetches the ticket as a fallback for missed
	// ticket:updated hints. Zero disables polling.
	TicketPollInterval time.Duration
	// SendWarnAfter marks a pending message delayed. It never cancels the send.
	SendWarnAfter time.Duration

	Location *time.Location
	Now      func() time.Time
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SLAPollInterval <= 0 {
		c.SLAPollInterval = 30 * time.Second
	}
	if c.SendWarnAfter < 0 {
		c.SendWarnAfter = 0
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Agent.SenderType == "" {
		c.Agent.SenderType = domain.SenderAgent
	}
}

// Dependencies are the collaborators a session talks to.
type Dependencies struct {
	Channel  ports.Channel
	Tickets  ports.TicketReader
	Worklogs ports.WorklogClient
	SLA      ports.SLAClient
	Logger   *slog.Logger
}

// TimerView is the displayable worklog timer state.
type TimerView struct {
	Phase          Phase
	ManualStopped  bool
	DisplaySeconds int64
	Pending        bool
	Active         *domain.WorklogSession
	History        []domain.WorklogSession
}

// Snapshot is an immutable copy of everything the ticket view renders.
type Snapshot struct {
	Ticket           *domain.TicketSnapshot
	ReadOnly         bool
	Connected        bool
	Messages         []MessageItem
	Viewers          []domain.Viewer
	PresenceDegraded bool
	Timer            TimerView
	Risk             domain.RiskStatus
	HasRisk          bool
	SLATimers        []domain.SLATimer
}

// NoticeKind classifies a user-facing notice.
type NoticeKind int

const (
	// NoticeSendFailed carries the draft of a message that was not delivered.
	NoticeSendFailed NoticeKind = iota + 1
	// NoticeWorklogFailed reports a start or stop the server rejected.
	NoticeWorklogFailed
)

// Notice is a transient message for the agent.
type Notice struct {
	Kind   NoticeKind
	Err    error
	Draft  *Draft
	Action *Action
}

func (n Notice) String() string {
	switch n.Kind {
	case NoticeSendFailed:
		return fmt.Sprintf("message not sent: %v", n.Err)
	case NoticeWorklogFailed:
		return fmt.Sprintf("worklog %s failed: %v", n.Action.Kind, n.Err)
	}
	return n.Err.Error()
}

// Session owns the collaboration state of one open ticket. All state is
// mutated on the Run goroutine; commands and network results are delivered
// to it as events.
type Session struct {
	cfg      Config
	channel  ports.Channel
	tickets  ports.TicketReader
	worklogs ports.WorklogClient
	sla      ports.SLAClient
	logger   *slog.Logger

	inbox     chan event
	snapshots chan Snapshot
	notices   chan Notice
	done      chan struct{}
	runCtx    context.Context

	ticket    *domain.TicketSnapshot
	messages  *MessageLog
	presence  *Presence
	timer     *WorklogTimer
	slaTimers []domain.SLATimer
	risk      domain.RiskStatus
	hasRisk   bool

	connected  bool
	subscribed string

	ticketSeq, ticketApplied   uint64
	worklogSeq, worklogApplied uint64
	slaSeq, slaApplied         uint64
}

// NewSession creates a session for one ticket. Call Run to start it.
func NewSession(cfg Config, deps Dependencies) *Session {
	cfg.setDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:       cfg,
		channel:   deps.Channel,
		tickets:   deps.Tickets,
		worklogs:  deps.Worklogs,
		sla:       deps.SLA,
		logger:    logger.With("component", "collab_session", "ticket_id", cfg.TicketID),
		inbox:     make(chan event, 64),
		snapshots: make(chan Snapshot, 1),
		notices:   make(chan Notice, 16),
		done:      make(chan struct{}),
		presence:  NewPresence(cfg.TicketID, cfg.Agent.Viewer()),
		timer:     NewWorklogTimer(cfg.TicketID, cfg.Agent.UserID),
	}
}

// Snapshots delivers the latest view state after every change. Only the
// newest undelivered snapshot is kept.
func (s *Session) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Notices delivers send and worklog failures.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// Run processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer close(s.done)

	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()
	slaTick := time.NewTicker(s.cfg.SLAPollInterval)
	defer slaTick.Stop()

	var pollC <-chan time.Time
	if s.cfg.TicketPollInterval > 0 {
		poll := time.NewTicker(s.cfg.TicketPollInterval)
		defer poll.Stop()
		pollC = poll.C
	}

	events := s.channel.Events()

	s.refreshTicket()
	s.refreshWorklog()
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-events:
			if !ok {
				events = nil
				s.handleEnvelope(domain.Envelope{Event: domain.EventChannelDegraded})
				break
			}
			s.handleEnvelope(env)

		case ev := <-s.inbox:
			ev.apply(s)

		case <-tick.C:
			if s.timer.Phase() != PhaseRunning {
				continue
			}
			s.timer.Tick()

		case <-slaTick.C:
			s.refreshSLA()
			continue

		case <-pollC:
			s.refreshTicket()
			continue
		}
		s.publish()
	}
}

// SendMessage appends an optimistic message and sends it. It returns the
// temporary id; the outcome arrives through snapshots, or a notice on
// failure.
func (s *Session) SendMessage(ctx context.Context, draft Draft) (string, error) {
	var tempID string
	err := s.exec(ctx, func() error {
		if s.ticket == nil || s.messages == nil {
			return ErrTicketNotLoaded
		}
		if s.ticket.AssignedToOther(s.cfg.Agent.UserID) {
			return apperrors.ErrTicketReadOnly
		}
		if len(draft.Content) > domain.MaxMessageLength {
			return apperrors.ErrMessageTooLong
		}
		if draft.Content == "" && len(draft.Metadata) == 0 {
			return apperrors.ErrMessageContentEmpty
		}
		msg, payload := s.messages.Send(draft)
		tempID = msg.ID
		s.deliver(msg.ID, payload)
		return nil
	})
	return tempID, err
}

// StartTimer starts the worklog timer manually.
func (s *Session) StartTimer(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.ticket == nil {
			return ErrTicketNotLoaded
		}
		a, err := s.timer.ManualStart()
		if err != nil {
			return err
		}
		s.perform(a)
		return nil
	})
}

// StopTimer stops the worklog timer with the agent's reason.
func (s *Session) StopTimer(ctx context.Context, reasonID, reason string) error {
	return s.exec(ctx, func() error {
		a, err := s.timer.ManualStop(reasonID, reason)
		if err != nil {
			return err
		}
		s.perform(a)
		return nil
	})
}

// Refresh refetches the ticket, the worklog state and SLA timers.
func (s *Session) Refresh(ctx context.Context) error {
	return s.exec(ctx, func() error {
		s.refreshTicket()
		s.refreshWorklog()
		s.refreshSLA()
		return nil
	})
}

// Snapshot returns the current view state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.exec(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// exec runs fn on the session goroutine and waits for its result.
func (s *Session) exec(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.inbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// post hands a result from a worker goroutine back to the loop.
func (s *Session) post(ev event) {
	select {
	case s.inbox <- ev:
	case <-s.runCtx.Done():
	}
}

func (s *Session) handleEnvelope(env domain.Envelope) {
	switch env.Event {
	case domain.EventChannelConnected, domain.EventChannelReconnected:
		s.connected = true
		s.subscribed = ""
		s.subscribe()
		s.announce()
		if env.Event == domain.EventChannelReconnected {
			s.refreshTicket()
		}

	case domain.EventChannelDisconnected:
		s.connected = false
		s.subscribed = ""

	case domain.EventChannelDegraded:
		s.connected = false
		s.subscribed = ""
		s.presence.Degrade()

	case domain.EventReceiveMessage:
		var p domain.ReceiveMessagePayload
		if err := env.Decode(&p); err != nil {
			s.logger.Warn("dropping malformed message", "error", err)
			return
		}
		if s.messages == nil {
			return
		}
		s.messages.Receive(p.Message, p.ConnectionID)

	case domain.EventViewerJoined:
		var p domain.ViewerJoinedPayload
		if err := env.Decode(&p); err != nil || p.TicketID != s.cfg.TicketID {
			return
		}
		s.presence.Join(p.Viewer)

	case domain.EventViewerLeft:
		var p domain.ViewerLeftPayload
		if err := env.Decode(&p); err != nil || p.TicketID != s.cfg.TicketID {
			return
		}
		s.presence.Leave(p.UserID)

	case domain.EventTicketUpdated:
		var p domain.TicketUpdatedPayload
		if err := env.Decode(&p); err != nil || p.TicketID != s.cfg.TicketID {
			return
		}
		s.refreshTicket()

	case domain.EventError:
		var p domain.ErrorPayload
		_ = env.Decode(&p)
		s.logger.Warn("gateway reported an error", "message", p.Message)

	default:
		s.logger.Debug("ignoring event", "event", env.Event)
	}
}

func (s *Session) subscribe() {
	if !s.connected || s.ticket == nil || s.subscribed == s.ticket.ConversationID {
		return
	}
	s.subscribed = s.ticket.ConversationID
	payload := domain.SubscribePayload{ConversationID: s.ticket.ConversationID, TicketID: s.cfg.TicketID}
	go func() {
		if err := s.channel.Emit(s.runCtx, domain.EventSubscribeConversation, payload); err != nil {
			s.logger.Debug("subscribe failed", "error", err)
		}
	}()
}

func (s *Session) announce() {
	payload := s.presence.Announce()
	go func() {
		env, err := s.channel.Request(s.runCtx, domain.EventViewTicket, payload)
		s.post(viewersAcked{env: env, err: err})
	}()
}

func (s *Session) deliver(tempID string, payload domain.SendMessagePayload) {
	go func() {
		env, err := s.channel.Request(s.runCtx, domain.EventSendMessage, payload)
		s.post(sendCompleted{tempID: tempID, ack: env, err: err})
	}()
	if s.cfg.SendWarnAfter > 0 {
		time.AfterFunc(s.cfg.SendWarnAfter, func() {
			s.post(sendOverdue{tempID: tempID})
		})
	}
}

func (s *Session) failSend(tempID string, err error) {
	draft, ok := s.messages.Fail(tempID)
	if !ok {
		return
	}
	s.logger.Info("message send failed", "temp_id", tempID, "error", err)
	s.notify(Notice{Kind: NoticeSendFailed, Err: err, Draft: &draft})
}

func (s *Session) perform(a Action) {
	if a.Kind == ActionNone {
		return
	}
	// Any state fetched before this action is stale once it lands.
	s.worklogApplied = s.worklogSeq
	s.logger.Info("worklog action", "action", a.Kind.String(), "manual", a.Manual, "reason", a.Reason)
	go func() {
		var err error
		switch a.Kind {
		case ActionStart:
			err = s.worklogs.StartWorklog(s.runCtx, a.TicketID)
		case ActionStop:
			err = s.worklogs.StopWorklog(s.runCtx, a.TicketID, a.ReasonID, a.Reason)
		}
		s.post(worklogCompleted{action: a, err: err})
	}()
}

func (s *Session) refreshTicket() {
	s.ticketSeq++
	seq := s.ticketSeq
	var mark uint64
	if s.messages != nil {
		mark = s.messages.Mark()
	}
	go func() {
		detail, err := s.tickets.GetTicket(s.runCtx, s.cfg.TicketID)
		s.post(ticketLoaded{seq: seq, mark: mark, detail: detail, err: err})
	}()
}

func (s *Session) refreshWorklog() {
	s.worklogSeq++
	seq := s.worklogSeq
	go func() {
		state, err := s.worklogs.GetWorklogs(s.runCtx, s.cfg.TicketID)
		s.post(worklogLoaded{seq: seq, state: state, err: err})
	}()
}

func (s *Session) refreshSLA() {
	if s.ticket == nil || s.sla == nil {
		return
	}
	s.slaSeq++
	seq := s.slaSeq
	conversationID := s.ticket.ConversationID
	go func() {
		timers, err := s.sla.GetSLATimers(s.runCtx, conversationID)
		s.post(slaLoaded{seq: seq, timers: timers, err: err})
	}()
}

func (s *Session) applyTicket(detail *domain.TicketDetail, mark uint64) {
	prev := s.ticket
	ticket := detail.Ticket
	s.ticket = &ticket

	if s.messages == nil || s.messages.ConversationID() != ticket.ConversationID {
		s.messages = NewMessageLog(ticket.ConversationID, s.channel.ConnectionID(), s.cfg.Agent, s.cfg.Now)
	}
	s.messages.Reset(detail.Messages, mark)
	s.subscribe()

	if a, ok := s.timer.ObserveTicket(ticket); ok {
		s.perform(a)
	} else if prev != nil && (prev.Status != ticket.Status || !sameAssignee(prev.AssigneeID, ticket.AssigneeID)) {
		s.refreshWorklog()
	}

	if prev == nil || prev.Status != ticket.Status {
		s.refreshSLA()
	}
}

func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("notice dropped, consumer is behind", "notice", n.String())
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	select {
	case s.snapshots <- snap:
		return
	default:
	}
	// Replace the undelivered snapshot with the newer one.
	select {
	case <-s.snapshots:
	default:
	}
	select {
	case s.snapshots <- snap:
	default:
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Connected:        s.connected,
		Viewers:          s.presence.Viewers(),
		PresenceDegraded: s.presence.Degraded(),
		Risk:             s.risk,
		HasRisk:          s.hasRisk,
	}
	if s.ticket != nil {
		t := *s.ticket
		snap.Ticket = &t
		snap.ReadOnly = t.AssignedToOther(s.cfg.Agent.UserID)
	}
	if s.messages != nil {
		snap.Messages = s.messages.Items(s.cfg.Location)
	}
	if len(s.slaTimers) > 0 {
		snap.SLATimers = append([]domain.SLATimer(nil), s.slaTimers...)
	}

	state := s.timer.State()
	snap.Timer = TimerView{
		Phase:          s.timer.Phase(),
		ManualStopped:  s.timer.ManualStopped(),
		DisplaySeconds: s.timer.DisplaySeconds(),
		Pending:        s.timer.Pending(),
		Active:         state.ActiveLog,
		History:        append([]domain.WorklogSession(nil), state.HistoryLogs...),
	}
	return snap
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// event is anything the session loop processes from its inbox.
type event interface {
	apply(s *Session)
}

type command struct {
	fn    func() error
	reply chan error
}

func (c command) apply(_ *Session) {
	c.reply <- c.fn()
}

type ticketLoaded struct {
	seq    uint64
	mark   uint64
	detail *domain.TicketDetail
	err    error
}

func (e ticketLoaded) apply(s *Session) {
	if e.seq <= s.ticketApplied {
		return
	}
	s.ticketApplied = e.seq
	if e.err != nil {
		s.logger.Warn("ticket refresh failed", "error", e.err)
		return
	}
	s.applyTicket(e.detail, e.mark)
}

type worklogLoaded struct {
	seq   uint64
	state *domain.TimerState
	err   error
}

func (e worklogLoaded) apply(s *Session) {
	if e.seq <= s.worklogApplied {
		return
	}
	s.worklogApplied = e.seq
	if e.err != nil {
		s.logger.Warn("worklog refresh failed", "error", e.err)
		return
	}
	if a, ok := s.timer.Apply(*e.state, s.cfg.Now()); ok {
		s.perform(a)
	}
}

type worklogCompleted struct {
	action Action
	err    error
}

func (e worklogCompleted) apply(s *Session) {
	s.timer.Complete(e.action, e.err)
	if e.err != nil {
		a := e.action
		s.notify(Notice{Kind: NoticeWorklogFailed, Err: e.err, Action: &a})
		if s.timer.Suppressed() {
			s.logger.Info("automatic worklog action held until the ticket changes", "action", a.Kind.String())
		}
	}
	s.worklogApplied = s.worklogSeq
	s.refreshWorklog()
}

type slaLoaded struct {
	seq    uint64
	timers []domain.SLATimer
	err    error
}

func (e slaLoaded) apply(s *Session) {
	if e.seq <= s.slaApplied {
		return
	}
	s.slaApplied = e.seq
	if e.err != nil {
		s.logger.Warn("sla refresh failed", "error", e.err)
		return
	}
	s.slaTimers = e.timers
	s.risk, s.hasRisk = domain.EvaluateRisk(e.timers)
}

type sendCompleted struct {
	tempID string
	ack    domain.Envelope
	err    error
}

func (e sendCompleted) apply(s *Session) {
	if s.messages == nil {
		return
	}
	if e.err != nil {
		s.failSend(e.tempID, e.err)
		return
	}
	switch e.ack.Event {
	case domain.EventMessageSent:
		var p domain.MessageSentPayload
		if err := e.ack.Decode(&p); err != nil {
			s.failSend(e.tempID, err)
			return
		}
		if !p.Success || p.ID == "" {
			s.failSend(e.tempID, errors.New("message rejected"))
			return
		}
		var createdAt time.Time
		if p.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
				createdAt = t
			}
		}
		s.messages.Confirm(e.tempID, p.ID, createdAt)
	case domain.EventMessageError:
		var p domain.MessageErrorPayload
		if err := e.ack.Decode(&p); err != nil || p.Message == "" {
			p.Message = "message rejected"
		}
		s.failSend(e.tempID, errors.New(p.Message))
	default:
		s.failSend(e.tempID, fmt.Errorf("unexpected reply %q", e.ack.Event))
	}
}

type sendOverdue struct {
	tempID string
}

func (e sendOverdue) apply(s *Session) {
	if s.messages != nil {
		s.messages.MarkDelayed(e.tempID)
	}
}

type viewersAcked struct {
	env domain.Envelope
	err error
}

func (e viewersAcked) apply(s *Session) {
	if e.err != nil {
		s.logger.Debug("ticket:view not acknowledged", "error", e.err)
		return
	}
	var p domain.ViewersPayload
	if err := e.env.Decode(&p); err != nil {
		s.logger.Debug("malformed viewers ack", "error", err)
		return
	}
	s.presence.ApplyAck(p.Viewers)
}
