package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/dicom-autosync/internal/middleware"
)

// RouterOptions wires the handlers. Nil handlers leave their routes unmounted.
type RouterOptions struct {
	Health  *HealthHandler
	Status  *StatusHandler
	Cycles  *CycleHandler
	Metrics http.Handler

	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// NewRouter builds the status server routes
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := opts.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	if opts.Status != nil {
		r.Get("/status", opts.Status.Status)
	}

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	if opts.Cycles != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/cycles", opts.Cycles.ListCycles)
			r.Get("/cycles/{id}/transfers", opts.Cycles.GetTransfers)
		})
	}

	return r
}
