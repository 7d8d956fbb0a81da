package cash

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/platform/httpx"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

// Handler exposes the shortage and guideline operations over HTTP.
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

// MountRoutes attaches cash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/shortages", h.report)
	r.Get("/shortages", h.list)
	r.Get("/shortages/{id}", h.get)
	r.Post("/shortages/{id}/resolve", h.resolve)
	r.Post("/guidelines", h.createGuideline)
	r.Get("/guidelines", h.listGuidelines)
	r.Post("/guidelines/{id}/ack", h.acknowledge)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Role != shared.RoleWorker {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "worker identity required")
		return
	}
	var req ReportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	shortage, err := h.service.Report(r.Context(), req, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shortage)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return
	}
	var filter ListFilter
	// Workers see only their own reports; admins see everything.
	if !actor.IsAdmin() {
		filter.WorkerID = &actor.ID
	} else if raw := r.URL.Query().Get("worker_id"); raw != "" {
		workerID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid worker_id filter")
			return
		}
		filter.WorkerID = &workerID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := ShortageStatus(raw)
		if status != ShortagePending && status != ShortageResolved {
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
		"shortages":  list,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	shortage, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shortage)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin identity required")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	shortage, err := h.service.Resolve(r.Context(), id, Resolution(req.Resolution), req.Notes, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shortage)
}

func (h *Handler) createGuideline(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin identity required")
		return
	}
	var req CreateGuidelineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	g, err := h.service.CreateGuideline(r.Context(), req, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) listGuidelines(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListGuidelines(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"guidelines": list})
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Role != shared.RoleWorker {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "worker identity required")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Acknowledge(r.Context(), id, actor.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrGuidelineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyResolved):
		httpx.Problem(w, http.StatusConflict, "Already Resolved", err.Error())
	case errors.Is(err, ErrAlreadyAcknowledged):
		httpx.Problem(w, http.StatusConflict, "Already Acknowledged", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrMissingReason),
		errors.Is(err, ErrInvalidResolution):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("cash operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
