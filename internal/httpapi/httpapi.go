// Package httpapi exposes operational visibility into the pipeline
// controller over HTTP: a health check and read-only run-summary lookup.
// It never drives pipeline logic; it only observes the controller's run
// registry, per the diagnostics ambient component described in
// SPEC_FULL.md.
//
//	@title			CFSI diagnostics API
//	@version		1.0
//	@description	Read-only operational visibility into the CFSI mosaic pipeline controller.
//	@license.name	MIT
//	@BasePath		/
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/GispoCoding/CFSI/internal/controller"
	"github.com/GispoCoding/CFSI/internal/httpapi/middleware"
)

// RunLookup is the subset of controller.Registry the server depends on.
type RunLookup interface {
	Get(id string) (controller.RunSummary, bool)
}

// NewRouter builds the diagnostics router, mounted with the standard
// RequestID/Logger/Recoverer/CORS middleware stack.
func NewRouter(registry RunLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/runs/{id}", handleGetRun(registry))

	return r
}

// healthzResponse is the /healthz body.
type healthzResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// handleHealthz reports liveness.
//
//	@Summary	Liveness check
//	@Produce	json
//	@Success	200	{object}	healthzResponse
//	@Router		/healthz [get]
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Time: time.Now()})
}

// runErrorResponse is returned when a run id is unknown.
type runErrorResponse struct {
	Error string `json:"error"`
}

// handleGetRun looks up one run summary by id.
//
//	@Summary	Get a run summary
//	@Produce	json
//	@Param		id	path		string	true	"run id"
//	@Success	200	{object}	controller.RunSummary
//	@Failure	404	{object}	runErrorResponse
//	@Router		/runs/{id} [get]
func handleGetRun(registry RunLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		summary, ok := registry.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, runErrorResponse{Error: "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
