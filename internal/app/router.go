package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/unistock-erp/unistock-erp/internal/catalog"
	"github.com/unistock-erp/unistock-erp/internal/observability"
	"github.com/unistock-erp/unistock-erp/internal/opname"
	"github.com/unistock-erp/unistock-erp/internal/procurement"
	"github.com/unistock-erp/unistock-erp/internal/reporting"
	"github.com/unistock-erp/unistock-erp/internal/requests"
	"github.com/unistock-erp/unistock-erp/internal/usage"
	"github.com/unistock-erp/unistock-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	RequestsHandler    *requests.Handler
	ProcurementHandler *procurement.Handler
	UsageHandler       *usage.Handler
	OpnameHandler      *opname.Handler
	CatalogHandler     *catalog.Handler
	ReportingHandler   *reporting.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(IdentityMiddleware(params.Logger))
				params.JobHandler.MountTriggerRoutes(r)
			})
		})
	}

	// Everything below requires an identified actor.
	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(params.Logger))

		if params.RequestsHandler != nil {
			params.RequestsHandler.MountRoutes(r)
		}
		if params.ProcurementHandler != nil {
			params.ProcurementHandler.MountRoutes(r)
		}
		if params.UsageHandler != nil {
			params.UsageHandler.MountRoutes(r)
		}
		if params.OpnameHandler != nil {
			params.OpnameHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.MountRoutes(r)
		}
	})

	return r
}
