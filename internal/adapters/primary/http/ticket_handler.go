package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lorrc/ticket-collab/internal/adapters/primary/validation"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
)

var (
	ticketStatuses   = []string{string(domain.StatusOpen), string(domain.StatusPending), string(domain.StatusResolved), string(domain.StatusClosed)}
	ticketPriorities = []string{string(domain.PriorityLow), string(domain.PriorityMedium), string(domain.PriorityHigh), string(domain.PriorityUrgent)}
)

// TicketHandler handles HTTP requests for tickets
type TicketHandler struct {
	ticketService ports.TicketService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	ticketService ports.TicketService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "ticket"),
	}
}

// RegisterRoutes sets up the routing for all ticket endpoints.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreateTicket)

	r.Route("/{ticketID}", func(r chi.Router) {
		r.Get("/", h.HandleGetTicket)
		r.Patch("/status", h.HandleUpdateTicketStatus)
		r.Patch("/assignee", h.HandleAssignTicket)
	})
}

// --- Request DTOs ---

// CreateTicketRequest defines the expected JSON body for creating a ticket
type CreateTicketRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Priority     string `json:"priority"`
	CustomerName string `json:"customerName"`
}

// Validate validates the create ticket request
func (r *CreateTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("title", r.Title).
		MaxLength("title", r.Title, domain.MaxTitleLength)

	v.MaxLength("description", r.Description, domain.MaxDescriptionLength)

	v.OneOf("priority", r.Priority, ticketPriorities)

	return v.Err()
}

// UpdateStatusRequest defines the expected JSON body for status updates
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Validate validates the update status request
func (r *UpdateStatusRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("status", r.Status).
		OneOf("status", r.Status, ticketStatuses)

	return v.Err()
}

// AssignTicketRequest defines the expected JSON body for assigning a ticket
type AssignTicketRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// Validate validates the assign ticket request
func (r *AssignTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("assigneeId", r.AssigneeID).
		UUID("assigneeId", r.AssigneeID)

	return v.Err()
}

// --- Handlers ---

// HandleCreateTicket handles POST /tickets
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[CreateTicketRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	ticket, err := h.ticketService.CreateTicket(r.Context(), ports.CreateTicketParams{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     domain.TicketPriority(req.Priority),
		CustomerName: req.CustomerName,
		Actor:        actor,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket created",
		"ticket_id", ticket.ID,
		"user_id", actor.ID,
	)

	WriteCreated(w, domain.NewTicketSnapshot(ticket))
}

// HandleGetTicket handles GET /tickets/{ticketID}: the ticket plus its
// conversation history.
func (h *TicketHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticketID, err := parseTicketID(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	detail, err := h.ticketService.GetTicketDetail(r.Context(), ticketID, actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteJSON(w, http.StatusOK, detail)
}

// HandleUpdateTicketStatus handles PATCH /tickets/{ticketID}/status
func (h *TicketHandler) HandleUpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticketID, err := parseTicketID(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[UpdateStatusRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	ticket, err := h.ticketService.UpdateStatus(r.Context(), ports.UpdateStatusParams{
		TicketID: ticketID,
		Status:   domain.TicketStatus(req.Status),
		Actor:    actor,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket status updated",
		"ticket_id", ticketID,
		"new_status", req.Status,
		"user_id", actor.ID,
	)

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}

// HandleAssignTicket handles PATCH /tickets/{ticketID}/assignee
func (h *TicketHandler) HandleAssignTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticketID, err := parseTicketID(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[AssignTicketRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	assigneeID := uuid.MustParse(req.AssigneeID)

	ticket, err := h.ticketService.AssignTicket(r.Context(), ports.AssignTicketParams{
		TicketID:   ticketID,
		AssigneeID: assigneeID,
		Actor:      actor,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.Info("ticket assigned",
		"ticket_id", ticketID,
		"assignee_id", assigneeID,
		"user_id", actor.ID,
	)

	WriteJSON(w, http.StatusOK, domain.NewTicketSnapshot(ticket))
}

// parseTicketID extracts and validates the ticket ID from the URL
func parseTicketID(r *http.Request) (int64, error) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil || ticketID <= 0 {
		v := validation.NewValidator()
		v.Custom("ticketID", false, "Invalid ticket ID")
		return 0, v.Errors()
	}
	return ticketID, nil
}
