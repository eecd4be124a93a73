package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	httpAdapter "github.com/lorrc/ticket-collab/internal/adapters/primary/http"
	mw "github.com/lorrc/ticket-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-collab/internal/auth"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/mocks"
	"github.com/lorrc/ticket-collab/internal/infrastructure/logging"
	"github.com/lorrc/ticket-collab/internal/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var agent = domain.Actor{
	ID:   uuid.MustParse("6f1c1d4e-2a7b-4c1e-9f0a-1b2c3d4e5f60"),
	Name: "Ada",
	Role: domain.SenderAgent,
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type routerFixture struct {
	handler  http.Handler
	token    string
	tickets  *mocks.MockTicketService
	worklogs *mocks.MockWorklogService
	sla      *mocks.MockSLAService
	dbErr    error
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	logger := logging.Discard()
	tm := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tm.GenerateToken(agent.ID, agent.Name, agent.Role)
	require.NoError(t, err)

	f := &routerFixture{
		token:    token,
		tickets:  mocks.NewMockTicketService(),
		worklogs: mocks.NewMockWorklogService(),
		sla:      mocks.NewMockSLAService(),
	}
	errorHandler := httpAdapter.NewErrorHandler(logger)

	f.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:       logger,
		Metrics:      metrics.New(),
		TokenManager: tm,
		Tickets:      httpAdapter.NewTicketHandler(f.tickets, errorHandler, logger),
		Worklogs:     httpAdapter.NewWorklogHandler(f.worklogs, errorHandler, logger),
		SLA:          httpAdapter.NewSLAHandler(f.sla, errorHandler),
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}),
		Health: httpAdapter.NewHealthHandler("test", map[string]httpAdapter.HealthChecker{
			"database": pingFunc(func(context.Context) error { return f.dbErr }),
		}),
		WorklogLimiter: mw.NewRateLimitByKey(100, 100),
	})
	return f
}

func (f *routerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpAdapter.ErrorResponse {
	t.Helper()
	var body httpAdapter.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets/7", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	f.tickets.AssertNotCalled(t, "GetTicketDetail")
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.dbErr = errors.New("connection refused")
	rec = f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t)
	f.do(t, http.MethodGet, "/health/live", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticket_collab_http_request_duration_seconds")
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tickets/7", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestIDHeader(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/health/live", "")
	assert.NotEmpty(t, rec.Header().Get(mw.RequestIDHeader))
}
