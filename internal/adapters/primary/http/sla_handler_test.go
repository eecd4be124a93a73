package http_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	apperrors "github.com/lorrc/ticket-collab/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSLAHandler_Timers(t *testing.T) {
	conversationID := uuid.MustParse("c0ffee00-0000-4000-8000-000000000001")

	t.Run("returns timers", func(t *testing.T) {
		f := newRouterFixture(t)
		f.sla.On("Timers", mock.Anything, conversationID, agent).Return([]domain.SLATimer{
			{Policy: "first-response", Metric: domain.MetricFirstResponse, DisplayStatus: domain.RiskAtRisk, PercentageElapsed: 83.3},
		}, nil)

		rec := f.do(t, http.MethodGet, "/api/v1/sla/timers?conversationId="+conversationID.String(), "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"displayStatus":"at_risk"`)
		assert.Contains(t, rec.Body.String(), `"percentageElapsed":83.3`)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		f := newRouterFixture(t)
		f.sla.On("Timers", mock.Anything, conversationID, agent).Return(nil, apperrors.ErrConversationNotFound)

		rec := f.do(t, http.MethodGet, "/api/v1/sla/timers?conversationId="+conversationID.String(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "CONVERSATION_NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("invalid conversation id", func(t *testing.T) {
		f := newRouterFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/sla/timers?conversationId=nope", "")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		f.sla.AssertNotCalled(t, "Timers")
	})
}
