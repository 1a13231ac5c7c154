// Package httpapi serves the worker's ops endpoints.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"docconv/internal/httpapi/handlers"
	"docconv/internal/pkg/logger"
	"docconv/internal/pkg/middleware"
)

type Deps struct {
	Handlers handlers.Deps
	Metrics  http.Handler
	Log      *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log, "/metrics", "/health"))

	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	h := handlers.New(d.Handlers)

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- METRICS ----
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ---- JOBS ----
	if h.HasJobs() {
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{uuid}", h.GetJob)
	}

	return r
}
