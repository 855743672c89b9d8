// Package handlers exposes the operator API over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/sentrygate/sentrygate/common/httputil"
	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/config"
	"github.com/sentrygate/sentrygate/internal/enforce"
	"github.com/sentrygate/sentrygate/internal/incident"
	"github.com/sentrygate/sentrygate/internal/models"
	"github.com/sentrygate/sentrygate/internal/pipeline"
	"github.com/sentrygate/sentrygate/internal/planner"
	"github.com/sentrygate/sentrygate/internal/repository"
	"github.com/sentrygate/sentrygate/internal/reputation"
	"github.com/sentrygate/sentrygate/internal/rollback"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Handler carries the service dependencies behind the operator API.
type Handler struct {
	pipeline    *pipeline.Pipeline
	reputation  *reputation.Tracker
	incidents   *incident.Tracker
	rollback    *rollback.Manager
	enforcer    enforce.Enforcer
	planner     planner.Client
	actions     repository.ActionRepository
	assessments repository.AssessmentRepository
	store       *config.Store
	logger      *logging.Logger
}

// NewHandler wires the operator API handlers.
func NewHandler(
	p *pipeline.Pipeline,
	rep *reputation.Tracker,
	incidents *incident.Tracker,
	rb *rollback.Manager,
	enforcer enforce.Enforcer,
	plans planner.Client,
	actions repository.ActionRepository,
	assessments repository.AssessmentRepository,
	store *config.Store,
	logger *logging.Logger,
) *Handler {
	return &Handler{
		pipeline:    p,
		reputation:  rep,
		incidents:   incidents,
		rollback:    rb,
		enforcer:    enforcer,
		planner:     plans,
		actions:     actions,
		assessments: assessments,
		store:       store,
		logger:      logger,
	}
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: "riskd",
		Mode:    string(h.store.Snapshot().Automation.Mode),
	})
}

// Evaluate handles POST /api/v1/evaluate. The interceptor posts the
// intercepted request; the response carries the decision it should enforce
// inline (serve, challenge, deny).
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req models.RequestData
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Identity == "" {
		req.Identity = httputil.GetClientIP(r)
	}

	result, err := h.pipeline.Evaluate(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingIdentity) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "evaluation failed", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ManualAction handles POST /api/v1/actions/manual.
func (h *Handler) ManualAction(w http.ResponseWriter, r *http.Request) {
	var req models.ManualActionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	action, err := h.pipeline.ManualAction(r.Context(), &req)
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingIdentity) {
			httputil.WriteError(w, http.StatusBadRequest, "target_identity is required")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, action)
}

// ValidateAction handles POST /api/v1/actions/{id}/validate.
func (h *Handler) ValidateAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req models.ValidateActionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ValidatedBy == "" {
		httputil.WriteError(w, http.StatusBadRequest, "validated_by is required")
		return
	}

	action, err := h.pipeline.ValidateAction(r.Context(), id, req.ValidatedBy)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActionNotFound):
			httputil.WriteError(w, http.StatusNotFound, "action not found")
		case errors.Is(err, repository.ErrActionNotPending):
			httputil.WriteError(w, http.StatusConflict, "action is not pending validation")
		default:
			h.logger.ErrorContext(r.Context(), "action validation failed",
				logging.ActionID(id), logging.Err(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to validate action")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, action)
}

// RollbackAction handles POST /api/v1/actions/{id}/rollback.
func (h *Handler) RollbackAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req models.RollbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "manual rollback"
	}

	if err := h.rollback.Rollback(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "action not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "rollback failed",
			logging.ActionID(id), logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to roll back action")
		return
	}

	action, err := h.actions.GetAction(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load action")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, action)
}

// GetAction handles GET /api/v1/actions/{id}.
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	action, err := h.actions.GetAction(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrActionNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "action not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load action")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, action)
}

// ListActions handles GET /api/v1/actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.ListActionsRequest{
		Target: q.Get("target"),
		Status: models.ActionStatus(q.Get("status")),
		From:   httputil.ParseTimeParam(q.Get("from")),
		To:     httputil.ParseTimeParam(q.Get("to")),
		Limit:  min(httputil.ParseIntParam(q.Get("limit"), defaultListLimit), maxListLimit),
	}

	actions, total, err := h.actions.ListActions(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list actions", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"total":   total,
	})
}

// GetAssessment handles GET /api/v1/assessments/{id}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.assessments.GetAssessment(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrAssessmentNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "assessment not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// ListAssessments handles GET /api/v1/assessments.
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := min(httputil.ParseIntParam(q.Get("limit"), defaultListLimit), maxListLimit)

	assessments, err := h.assessments.ListRecentAssessments(r.Context(), q.Get("identity"), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list assessments", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"assessments": assessments})
}

// ListIncidents handles GET /api/v1/incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.ListIncidentsRequest{
		Source: q.Get("source"),
		Status: models.IncidentStatus(q.Get("status")),
		From:   httputil.ParseTimeParam(q.Get("from")),
		To:     httputil.ParseTimeParam(q.Get("to")),
		Limit:  min(httputil.ParseIntParam(q.Get("limit"), defaultListLimit), maxListLimit),
	}

	incidents, total, err := h.incidents.List(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list incidents", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"total":     total,
	})
}

// GetIncident handles GET /api/v1/incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrIncidentNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "incident not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inc)
}

// UpdateIncidentStatus handles PUT /api/v1/incidents/{id}/status.
func (h *Handler) UpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		Status models.IncidentStatus `json:"status"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	inc, err := h.incidents.Transition(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIncidentNotFound):
			httputil.WriteError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, repository.ErrIncidentTerminal):
			httputil.WriteError(w, http.StatusConflict, "incident is already resolved or closed")
		default:
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, inc)
}

// MarkIncidentFalsePositive handles POST /api/v1/incidents/{id}/false-positive.
func (h *Handler) MarkIncidentFalsePositive(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.MarkFalsePositive(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrIncidentNotFound):
			httputil.WriteError(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, repository.ErrIncidentTerminal):
			httputil.WriteError(w, http.StatusConflict, "incident is already resolved or closed")
		default:
			h.logger.ErrorContext(r.Context(), "false-positive marking failed",
				logging.Incident(r.PathValue("id")), logging.Err(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to mark incident")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, inc)
}

// GetIncidentPlan handles GET /api/v1/incidents/{id}/plan. The plan comes
// from the remediation template service keyed by the incident type.
func (h *Handler) GetIncidentPlan(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrIncidentNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "incident not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}

	plan, err := h.planner.FetchPlan(r.Context(), inc.Type)
	if err != nil {
		h.logger.WarnContext(r.Context(), "remediation plan unavailable",
			logging.Incident(inc.ID), logging.Err(err))
		httputil.WriteError(w, http.StatusBadGateway, "remediation plan not available")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, plan)
}

// GetReputation handles GET /api/v1/reputation/{identity}.
func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.reputation.Get(r.Context(), r.PathValue("identity"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to load reputation", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load reputation")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// WhitelistIdentity handles PUT /api/v1/reputation/{identity}/whitelist.
func (h *Handler) WhitelistIdentity(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req struct {
		Whitelisted bool `json:"whitelisted"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.reputation.Whitelist(r.Context(), identity, req.Whitelisted); err != nil {
		if errors.Is(err, repository.ErrReputationNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "identity not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update whitelist")
		return
	}

	rec, err := h.reputation.Get(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load reputation")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// BlacklistIdentity handles PUT /api/v1/reputation/{identity}/blacklist.
func (h *Handler) BlacklistIdentity(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req models.BlacklistRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.reputation.Blacklist(r.Context(), identity, req.Reason, req.DurationMinutes); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to blacklist identity")
		return
	}

	rec, err := h.reputation.Get(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load reputation")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// UnblacklistIdentity handles DELETE /api/v1/reputation/{identity}/blacklist.
func (h *Handler) UnblacklistIdentity(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	if err := h.reputation.Unblacklist(r.Context(), identity); err != nil {
		if errors.Is(err, repository.ErrReputationNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "identity not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to clear blacklist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBlocked handles GET /api/v1/enforcement/blocked. This is the live
// deny list at the enforcement point, not the action audit trail.
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	identities, err := h.enforcer.ListBlocked(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list blocked identities", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "enforcement point unavailable")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"blocked": identities,
		"total":   len(identities),
	})
}

// ChangeMode handles PUT /api/v1/config/mode. The change applies to the
// next evaluation; runs in flight keep their snapshot.
func (h *Handler) ChangeMode(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeModeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.store.SetMode(req.Mode); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "automation mode changed", logging.Mode(string(req.Mode)))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"mode": string(req.Mode)})
}
