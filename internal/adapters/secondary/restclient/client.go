package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config holds the REST client settings.
type Config struct {
	// BaseURL is the gateway API root, e.g. http://localhost:8080/api/v1
	BaseURL string
	Token   string
	// HTTPClient is used for all requests. Nil builds one with Timeout.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// APIError is a non-2xx gateway response. It unwraps to the sentinel error
// registered for its code.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == "" {
		switch e.StatusCode {
		case http.StatusUnauthorized:
			return apperrors.ErrUnauthorized
		case http.StatusForbidden:
			return apperrors.ErrForbidden
		case http.StatusNotFound:
			return apperrors.ErrNotFound
		}
	}
	return apperrors.FromCode(e.Code)
}

// Client calls the gateway REST API on behalf of one agent.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ ports.TicketReader  = (*Client)(nil)
	_ ports.WorklogClient = (*Client)(nil)
	_ ports.SLAClient     = (*Client)(nil)
)

// New creates a REST client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("restclient: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("restclient: invalid base url %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger.With("component", "restclient"),
	}, nil
}

// GetTicket fetches GET /tickets/{id}.
func (c *Client) GetTicket(ctx context.Context, ticketID int64) (*domain.TicketDetail, error) {
	var detail domain.TicketDetail
	path := "/tickets/" + strconv.FormatInt(ticketID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &detail); err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", ticketID, err)
	}
	return &detail, nil
}

type worklogRequest struct {
	TicketNumber int64  `json:"ticketNumber"`
	ReasonID     string `json:"reasonId,omitempty"`
	StopReason   string `json:"stopReason,omitempty"`
}

// StartWorklog calls POST /worklogs/start.
func (c *Client) StartWorklog(ctx context.Context, ticketID int64) error {
	if err := c.do(ctx, http.MethodPost, "/worklogs/start", nil, worklogRequest{TicketNumber: ticketID}, nil); err != nil {
		return fmt.Errorf("start worklog on ticket %d: %w", ticketID, err)
	}
	return nil
}

// StopWorklog calls POST /worklogs/stop.
func (c *Client) StopWorklog(ctx context.Context, ticketID int64, reasonID, reason string) error {
	body := worklogRequest{TicketNumber: ticketID, ReasonID: reasonID, StopReason: reason}
	if err := c.do(ctx, http.MethodPost, "/worklogs/stop", nil, body, nil); err != nil {
		return fmt.Errorf("stop worklog on ticket %d: %w", ticketID, err)
	}
	return nil
}

// GetWorklogs fetches GET /worklogs?ticketNumber=.
func (c *Client) GetWorklogs(ctx context.Context, ticketID int64) (*domain.TimerState, error) {
	query := url.Values{"ticketNumber": {strconv.FormatInt(ticketID, 10)}}
	var state domain.TimerState
	if err := c.do(ctx, http.MethodGet, "/worklogs", query, nil, &state); err != nil {
		return nil, fmt.Errorf("get worklogs for ticket %d: %w", ticketID, err)
	}
	return &state, nil
}

// GetStopReasons fetches GET /worklogs/stop-reasons.
func (c *Client) GetStopReasons(ctx context.Context) ([]domain.StopReason, error) {
	var list struct {
		Data []domain.StopReason `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/worklogs/stop-reasons", nil, nil, &list); err != nil {
		return nil, fmt.Errorf("get stop reasons: %w", err)
	}
	return list.Data, nil
}

// GetSLATimers fetches GET /sla/timers?conversationId=.
func (c *Client) GetSLATimers(ctx context.Context, conversationID string) ([]domain.SLATimer, error) {
	query := url.Values{"conversationId": {conversationID}}
	var res struct {
		Timers []domain.SLATimer `json:"timers"`
	}
	if err := c.do(ctx, http.MethodGet, "/sla/timers", query, nil, &res); err != nil {
		return nil, fmt.Errorf("get sla timers: %w", err)
	}
	return res.Timers, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &payload) == nil && (payload.Error != "" || payload.Code != "") {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		c.logger.Debug("gateway request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
