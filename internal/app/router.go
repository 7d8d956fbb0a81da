package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sabeel-delivery/sabeel/internal/cash"
	"github.com/sabeel-delivery/sabeel/internal/orders"
	"github.com/sabeel-delivery/sabeel/internal/recon"
	"github.com/sabeel-delivery/sabeel/internal/workers"
	"github.com/sabeel-delivery/sabeel/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	OrdersHandler  *orders.Handler
	CashHandler    *cash.Handler
	ReconHandler   *recon.Handler
	WorkersHandler *workers.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with Sabeel defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/orders", params.OrdersHandler.MountRoutes)
	r.Route("/cash", params.CashHandler.MountRoutes)
	r.Route("/recon", params.ReconHandler.MountRoutes)
	r.Route("/workers", params.WorkersHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
