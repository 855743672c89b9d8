// Package server assembles the HTTP router for the riskd operator API.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentrygate/sentrygate/common/middleware"
	"github.com/sentrygate/sentrygate/internal/handlers"
)

// NewRouter constructs the riskd API router. Every API route carries the
// request-id and CORS middleware; /metrics and /healthz stay bare.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/evaluate", h.Evaluate)

	mux.HandleFunc("POST /api/v1/actions/manual", h.ManualAction)
	mux.HandleFunc("POST /api/v1/actions/{id}/validate", h.ValidateAction)
	mux.HandleFunc("POST /api/v1/actions/{id}/rollback", h.RollbackAction)
	mux.HandleFunc("GET /api/v1/actions/{id}", h.GetAction)
	mux.HandleFunc("GET /api/v1/actions", h.ListActions)

	mux.HandleFunc("GET /api/v1/assessments/{id}", h.GetAssessment)
	mux.HandleFunc("GET /api/v1/assessments", h.ListAssessments)

	mux.HandleFunc("GET /api/v1/incidents", h.ListIncidents)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.GetIncident)
	mux.HandleFunc("PUT /api/v1/incidents/{id}/status", h.UpdateIncidentStatus)
	mux.HandleFunc("POST /api/v1/incidents/{id}/false-positive", h.MarkIncidentFalsePositive)
	mux.HandleFunc("GET /api/v1/incidents/{id}/plan", h.GetIncidentPlan)

	mux.HandleFunc("GET /api/v1/reputation/{identity}", h.GetReputation)
	mux.HandleFunc("PUT /api/v1/reputation/{identity}/whitelist", h.WhitelistIdentity)
	mux.HandleFunc("PUT /api/v1/reputation/{identity}/blacklist", h.BlacklistIdentity)
	mux.HandleFunc("DELETE /api/v1/reputation/{identity}/blacklist", h.UnblacklistIdentity)

	mux.HandleFunc("GET /api/v1/enforcement/blocked", h.ListBlocked)

	mux.HandleFunc("PUT /api/v1/config/mode", h.ChangeMode)

	corsConfig := middleware.CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"}, // operator console dev server
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}
	return middleware.RequestID(middleware.CORS(corsConfig)(mux))
}
