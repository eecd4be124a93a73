package wsclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// ErrDegraded is returned by Run once reconnection attempts are exhausted.
var ErrDegraded = errors.New("channel degraded")

const eventBuffer = 64

// Config holds the channel settings.
type Config struct {
	// URL is the gateway WebSocket endpoint, e.g. ws://localhost:8080/api/v1/ws
	URL   string
	Token string
	// ConnectionID identifies this client across reconnects. Empty
	// generates one.
	ConnectionID string

	RetryInterval    time.Duration
	MaxRetries       uint64
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
}

func (c *Config) setDefaults() {
	if c.ConnectionID == "" {
		c.ConnectionID = uuid.NewString()
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
}

// Client is the agent side of the gateway channel. Run owns the
// connection; Emit and Request may be called from any goroutine.
type Client struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
	events chan domain.Envelope

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan domain.Envelope
}

var _ ports.Channel = (*Client)(nil)

// New creates a channel client. Nothing is dialed until Run.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:  logger.With("component", "channel", "connection_id", cfg.ConnectionID),
		events:  make(chan domain.Envelope, eventBuffer),
		pending: make(map[string]chan domain.Envelope),
	}
}

// ConnectionID returns the id sent with every connection attempt.
func (c *Client) ConnectionID() string {
	return c.cfg.ConnectionID
}

// Events delivers inbound envelopes and channel:* lifecycle events. It is
// closed when Run returns.
func (c *Client) Events() <-chan domain.Envelope {
	return c.events
}

// Run connects and keeps the channel connected until ctx is cancelled or
// reconnection gives up.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	connected := false
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("channel degraded", "error", err)
			c.publish(ctx, domain.EventChannelDegraded)
			return fmt.Errorf("%w: %v", ErrDegraded, err)
		}

		lifecycle := domain.EventChannelConnected
		if connected {
			lifecycle = domain.EventChannelReconnected
		}
		connected = true

		c.setConn(conn)
		c.logger.Info("channel connected", "event", lifecycle)
		c.publish(ctx, lifecycle)

		err = c.readLoop(ctx, conn)
		c.dropConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Info("channel disconnected", "error", err)
		c.publish(ctx, domain.EventChannelDisconnected)
	}
}

// connect dials with a constant interval for a bounded number of retries.
// A rejected token is not retried.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.dialURL()
	if err != nil {
		return nil, err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryInterval), c.cfg.MaxRetries),
		ctx,
	)

	var conn *websocket.Conn
	operation := func() error {
		cn, resp, err := c.dialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(fmt.Errorf("dial: %w", apperrors.ErrUnauthorized))
			}
			return fmt.Errorf("dial: %w", err)
		}
		conn = cn
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("channel dial failed", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	q.Set("connectionId", c.cfg.ConnectionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	})
	defer stop()

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		if env.AckID != "" && c.resolve(env) {
			continue
		}
		select {
		case c.events <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resolve hands a reply to its waiting Request.
func (c *Client) resolve(env domain.Envelope) bool {
	c.mu.Lock()
	ch, ok := c.pending[env.AckID]
	if ok {
		delete(c.pending, env.AckID)
	}
	c.mu.Unlock()
	if ok {
		ch <- env
	}
	return ok
}

func (c *Client) publish(ctx context.Context, event domain.EventType) {
	select {
	case c.events <- domain.Envelope{Event: event}:
	case <-ctx.Done():
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// dropConn forgets the connection and fails every request still waiting
// for a reply on it.
func (c *Client) dropConn(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan domain.Envelope)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// Emit sends an envelope without waiting for a reply.
func (c *Client) Emit(ctx context.Context, event domain.EventType, payload any) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.write(ctx, env)
}

// Request sends an envelope with a fresh ack id and waits for the reply.
// It fails with ErrNotConnected when the connection drops first.
func (c *Client) Request(ctx context.Context, event domain.EventType, payload any) (domain.Envelope, error) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return domain.Envelope{}, err
	}
	env.AckID = uuid.NewString()

	reply := make(chan domain.Envelope, 1)
	c.mu.Lock()
	c.pending[env.AckID] = reply
	c.mu.Unlock()

	if err := c.write(ctx, env); err != nil {
		c.forget(env.AckID)
		return domain.Envelope{}, err
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return domain.Envelope{}, fmt.Errorf("%s: %w", event, apperrors.ErrNotConnected)
		}
		return res, nil
	case <-ctx.Done():
		c.forget(env.AckID)
		return domain.Envelope{}, ctx.Err()
	}
}

func (c *Client) forget(ackID string) {
	c.mu.Lock()
	delete(c.pending, ackID)
	c.mu.Unlock()
}

func (c *Client) write(ctx context.Context, env domain.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return apperrors.ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%s: %w", env.Event, apperrors.ErrNotConnected)
	}
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, errors.Join(apperrors.ErrNotConnected, err))
	}
	return nil
}
