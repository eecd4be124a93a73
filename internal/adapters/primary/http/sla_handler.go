package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/adapters/primary/validation"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// SLAHandler serves SLA timers
type SLAHandler struct {
	slaService   ports.SLAService
	errorHandler *ErrorHandler
}

func NewSLAHandler(slaService ports.SLAService, errorHandler *ErrorHandler) *SLAHandler {
	return &SLAHandler{slaService: slaService, errorHandler: errorHandler}
}

func (h *SLAHandler) RegisterRoutes(r chi.Router) {
	r.Get("/timers", h.HandleTimers)
}

// SLATimersResponse is the body of GET /sla/timers
type SLATimersResponse struct {
	Timers []domain.SLATimer `json:"timers"`
}

// HandleTimers handles GET /sla/timers?conversationId=
func (h *SLAHandler) HandleTimers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("conversationId")
	v := validation.NewValidator()
	v.Required("conversationId", raw).UUID("conversationId", raw)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	timers, err := h.slaService.Timers(r.Context(), uuid.MustParse(raw), actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, SLATimersResponse{Timers: timers})
}
