package workers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sabeel-delivery/sabeel/internal/platform/httpx"
	"github.com/sabeel-delivery/sabeel/internal/shared"
)

// Handler exposes the worker directory over HTTP. Admins use it to pick a
// worker when assigning orders.
type Handler struct {
	logger    *slog.Logger
	directory Directory
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, directory Directory) *Handler {
	return &Handler{logger: logger, directory: directory}
}

// MountRoutes attaches directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listActive)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin identity required")
		return
	}
	list, err := h.directory.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list active workers failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if list == nil {
		list = []Worker{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"workers": list})
}
