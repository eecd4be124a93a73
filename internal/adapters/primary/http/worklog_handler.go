package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/ticket-collab/internal/adapters/primary/validation"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

// maxStopReasonLength bounds free-text stop reasons.
const maxStopReasonLength = 255

// WorklogHandler handles work-time tracking requests
type WorklogHandler struct {
	worklogService ports.WorklogService
	errorHandler   *ErrorHandler
	logger         *slog.Logger
}

// NewWorklogHandler creates a new worklog handler
func NewWorklogHandler(
	worklogService ports.WorklogService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *WorklogHandler {
	return &WorklogHandler{
		worklogService: worklogService,
		errorHandler:   errorHandler,
		logger:         logger.With("handler", "worklog"),
	}
}

// RegisterRoutes sets up the worklog endpoints. limit wraps the state
// changing routes.
func (h *WorklogHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/", h.HandleGetWorklogs)
	r.Get("/stop-reasons", h.HandleStopReasons)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/start", h.HandleStart)
		r.Post("/stop", h.HandleStop)
	})
}

// StartWorklogRequest is the body of POST /worklogs/start
type StartWorklogRequest struct {
	TicketNumber int64 `json:"ticketNumber"`
}

// StopWorklogRequest is the body of POST /worklogs/stop
type StopWorklogRequest struct {
	TicketNumber int64  `json:"ticketNumber"`
	ReasonID     string `json:"reasonId,omitempty"`
	StopReason   string `json:"stopReason,omitempty"`
}

// Validate validates the stop request. Reason presence is a service rule.
func (r *StopWorklogRequest) Validate() error {
	v := validation.NewValidator()

	v.Positive("ticketNumber", r.TicketNumber).
		MaxLength("stopReason", r.StopReason, maxStopReasonLength)

	return v.Err()
}

// HandleStart handles POST /worklogs/start
func (h *WorklogHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[StartWorklogRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, validation.NewValidator().Positive("ticketNumber", req.TicketNumber).Err(), h.errorHandler) {
		return
	}

	wl, err := h.worklogService.Start(r.Context(), req.TicketNumber, actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("worklog started",
		"ticket_id", req.TicketNumber,
		"worklog_id", wl.ID,
		"user_id", actor.ID,
	)

	WriteSuccess(w)
}

// HandleStop handles POST /worklogs/stop
func (h *WorklogHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[StopWorklogRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	wl, err := h.worklogService.Stop(r.Context(), ports.StopWorklogParams{
		TicketID: req.TicketNumber,
		ReasonID: req.ReasonID,
		Reason:   req.StopReason,
		Actor:    actor,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("worklog stopped",
		"ticket_id", req.TicketNumber,
		"worklog_id", wl.ID,
		"duration_seconds", wl.DurationSeconds,
		"user_id", actor.ID,
	)

	WriteSuccess(w)
}

// HandleGetWorklogs handles GET /worklogs?ticketNumber=
func (h *WorklogHandler) HandleGetWorklogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticketID, err := validation.ParseInt64QueryParam(r, "ticketNumber")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	state, err := h.worklogService.Summary(r.Context(), ticketID, actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, state)
}

// HandleStopReasons handles GET /worklogs/stop-reasons
func (h *WorklogHandler) HandleStopReasons(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	WriteList(w, h.worklogService.StopReasons())
}
