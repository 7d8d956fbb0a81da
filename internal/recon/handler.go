package recon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sabeel-delivery/sabeel/internal/platform/httpx"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

// Handler exposes the reconciliation reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	clock   func() time.Time
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// MountRoutes attaches reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/worker/{id}/daily", h.workerDaily)
	r.Get("/worker/{id}/history", h.workerHistory)
	r.Get("/admin", h.adminReport)
	r.Get("/daily", h.dailyReconciliation)
}

func (h *Handler) workerDaily(w http.ResponseWriter, r *http.Request) {
	workerID, ok := h.workerFromRequest(w, r)
	if !ok {
		return
	}
	day := h.clock()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	report, err := h.service.WorkerDaily(r.Context(), workerID, day)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) workerHistory(w http.ResponseWriter, r *http.Request) {
	workerID, ok := h.workerFromRequest(w, r)
	if !ok {
		return
	}
	from, to, ok := h.rangeFromRequest(w, r)
	if !ok {
		return
	}
	report, err := h.service.WorkerHistory(r.Context(), workerID, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) adminReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	from, to, ok := h.rangeFromRequest(w, r)
	if !ok {
		return
	}
	report, err := h.service.AdminReport(r.Context(), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) dailyReconciliation(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	day := h.clock()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	report, err := h.service.DailyReconciliation(r.Context(), day)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// workerFromRequest resolves the target worker and enforces that workers
// only read their own reports.
func (h *Handler) workerFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "caller identity required")
		return uuid.Nil, false
	}
	workerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid worker id")
		return uuid.Nil, false
	}
	if !actor.IsAdmin() && actor.ID != workerID {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "workers may only read their own report")
		return uuid.Nil, false
	}
	return workerID, true
}

// rangeFromRequest reads from/to query dates, defaulting to the last 7 days.
// to is exclusive, advanced by one day so a date-only "to" is inclusive for
// callers.
func (h *Handler) rangeFromRequest(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := h.clock().Truncate(24 * time.Hour)
	from := now.AddDate(0, 0, -7)
	to := now.AddDate(0, 0, 1)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must not precede from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin identity required")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.logger.Error("reconciliation report failed", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
