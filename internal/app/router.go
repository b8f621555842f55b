package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-crm/meridian/internal/crm/payments"
	"github.com/meridian-crm/meridian/internal/crm/proforma"
	"github.com/meridian-crm/meridian/internal/crm/quotations"
	"github.com/meridian-crm/meridian/internal/crm/reconcile"
	"github.com/meridian-crm/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	QuotationHandler *quotations.Handler
	ProformaHandler  *proforma.Handler
	PaymentHandler   *payments.Handler
	ReconcileHandler *reconcile.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
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

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	// Everything below requires an identified actor.
	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(params.Logger))
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
		}
		if params.ProformaHandler != nil {
			params.ProformaHandler.MountRoutes(r)
		}
		if params.PaymentHandler != nil {
			params.PaymentHandler.MountRoutes(r)
		}
		if params.ReconcileHandler != nil {
			params.ReconcileHandler.MountRoutes(r)
		}
	})

	return r
}
