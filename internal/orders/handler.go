package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/platform/httpx"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

// Handler exposes the order operations over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes attaches order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/mine", h.listMine)
	r.Get("/assigned", h.listAssigned)
	r.Get("/{id}", h.get)
	r.Post("/{id}/status", h.transition)
	r.Post("/{id}/assign", h.assign)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/payments/cash", h.recordCashPayment)
	r.Get("/{id}/payment", h.paymentStatus)
	r.Post("/{id}/rating", h.rate)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), req, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, shared.RoleAdmin) {
		return
	}
	var filter ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		if !status.IsValid() {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown status filter")
			return
		}
		filter.Status = &status
	}
	filter.Page, filter.PerPage = shared.PageFromRequest(r)

	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders":     list,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	list, err := h.service.ListByCustomer(r.Context(), actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) listAssigned(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Role != shared.RoleWorker {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "worker identity required")
		return
	}
	list, err := h.service.ListActiveByWorker(r.Context(), actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.TransitionStatus(r.Context(), id, Status(req.Status), req.Note, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin identity required")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.AssignWorker(r.Context(), id, req.WorkerID, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	h.handlePayment(w, r, h.service.RecordPayment)
}

func (h *Handler) recordCashPayment(w http.ResponseWriter, r *http.Request) {
	h.handlePayment(w, r, h.service.RecordCashPayment)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, orderID uuid.UUID, amount int64, collectorID uuid.UUID) (*Order, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Role != shared.RoleWorker {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "worker identity required")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := record(r.Context(), id, req.Amount, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":  order.PaymentStatus,
		"amount":  order.TotalAmount,
		"paid":    order.PaidAmount,
		"details": order.PaymentDetails,
	})
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req RatingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	order, err := h.service.Rate(r.Context(), id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role shared.Role) bool {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Role != role {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
		return false
	}
	return true
}

// respondError maps domain errors onto problem responses so every failure
// kind stays distinguishable to clients.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInvalidOrderState):
		httpx.Problem(w, http.StatusConflict, "Invalid Order State", err.Error())
	case errors.Is(err, ErrWorkerUnavailable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Worker Unavailable", err.Error())
	case errors.Is(err, ErrAlreadyPaid):
		httpx.Problem(w, http.StatusConflict, "Already Paid", err.Error())
	case errors.Is(err, ErrPaymentCancelled):
		httpx.Problem(w, http.StatusConflict, "Payment Cancelled", err.Error())
	case errors.Is(err, ErrAmountMismatch):
		httpx.Problem(w, http.StatusConflict, "Amount Mismatch", err.Error())
	case errors.Is(err, ErrNotCompleted), errors.Is(err, ErrAlreadyRated):
		httpx.Problem(w, http.StatusConflict, "Rating Rejected", err.Error())
	case errors.Is(err, ErrEmptyItems), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitPrice), errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", "please retry")
	default:
		h.logger.Error("order operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
