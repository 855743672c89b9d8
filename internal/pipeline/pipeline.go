// Package pipeline orchestrates one request evaluation end to end:
// detection, reputation observation, verdict, scoring, decision,
// enforcement, incident correlation, and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentrygate/sentrygate/common/audit"
	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/archive"
	"github.com/sentrygate/sentrygate/internal/config"
	"github.com/sentrygate/sentrygate/internal/detect"
	"github.com/sentrygate/sentrygate/internal/enforce"
	"github.com/sentrygate/sentrygate/internal/events"
	"github.com/sentrygate/sentrygate/internal/incident"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
	"github.com/sentrygate/sentrygate/internal/policy"
	"github.com/sentrygate/sentrygate/internal/repository"
	"github.com/sentrygate/sentrygate/internal/reputation"
	"github.com/sentrygate/sentrygate/internal/risk"
	"github.com/sentrygate/sentrygate/internal/verdict"
)

// DefaultDeadline bounds one full evaluation. A run that exceeds it still
// completes, but its decision degrades to ALERT_ONLY rather than enforcing
// against a target that may no longer deserve it.
const DefaultDeadline = 10 * time.Second

// ErrMissingIdentity rejects a request with no source identity; nothing
// downstream (reputation, enforcement, incidents) can key off an empty one.
var ErrMissingIdentity = errors.New("request has no source identity")

// ErrActionNotFound aliases the repository sentinel for callers that do not
// import the repository package.
var ErrActionNotFound = repository.ErrActionNotFound

// ErrActionNotPending is returned when validating an action that has
// already moved past PENDING.
var ErrActionNotPending = repository.ErrActionNotPending

// Pipeline evaluates intercepted requests and drives automated response.
type Pipeline struct {
	cfg         config.Provider
	engine      *detect.Engine
	reputation  *reputation.Tracker
	verdicts    verdict.Fetcher
	executor    *enforce.Executor
	enforcer    enforce.Enforcer
	incidents   *incident.Tracker
	assessments repository.AssessmentRepository
	actions     repository.ActionRepository
	signer      *audit.ActionSigner
	archiver    *archive.Archiver
	events      *events.Publisher
	logger      *logging.Logger
	deadline    time.Duration
}

// New wires a pipeline. archiver may be nil when archiving is disabled.
func New(
	cfg config.Provider,
	engine *detect.Engine,
	rep *reputation.Tracker,
	verdicts verdict.Fetcher,
	executor *enforce.Executor,
	enforcer enforce.Enforcer,
	incidents *incident.Tracker,
	assessments repository.AssessmentRepository,
	actions repository.ActionRepository,
	signer *audit.ActionSigner,
	archiver *archive.Archiver,
	pub *events.Publisher,
	logger *logging.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		engine:      engine,
		reputation:  rep,
		verdicts:    verdicts,
		executor:    executor,
		enforcer:    enforcer,
		incidents:   incidents,
		assessments: assessments,
		actions:     actions,
		signer:      signer,
		archiver:    archiver,
		events:      pub,
		logger:      logger,
		deadline:    DefaultDeadline,
	}
}

// SetDeadline overrides the per-evaluation deadline.
func (p *Pipeline) SetDeadline(d time.Duration) {
	if d > 0 {
		p.deadline = d
	}
}

// Evaluate runs the full pipeline for one intercepted request.
//
// The configuration snapshot is taken once at the start; a mode change
// mid-run never affects a run already in flight. The reputation observation
// happens exactly once, synchronously, before scoring, so the blocked ratio
// used for this request reflects every request seen before it.
func (p *Pipeline) Evaluate(ctx context.Context, req models.RequestData) (*models.EvaluationResult, error) {
	if req.Identity == "" {
		return nil, ErrMissingIdentity
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	start := time.Now()
	snap := p.cfg.Snapshot()

	runCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	detections := p.engine.Inspect(req)
	for _, d := range detections {
		metrics.DetectionsTotal.WithLabelValues(string(d.Category)).Inc()
	}

	// The enforcement point sees requests from blocked identities that
	// race the block taking effect. Whether this request arrived blocked
	// feeds the identity's blocked ratio.
	arrivedBlocked, err := p.enforcer.IsBlocked(runCtx, req.Identity)
	if err != nil {
		p.logger.WarnContext(runCtx, "enforcement point unreachable during block check",
			logging.Identity(req.Identity), logging.Err(err))
		arrivedBlocked = false
	}

	rep, err := p.reputation.Observe(runCtx, req.Identity, arrivedBlocked, len(detections) > 0)
	if err != nil {
		return nil, fmt.Errorf("observing reputation for %s: %w", req.Identity, err)
	}

	v, verr := p.verdicts.Fetch(runCtx, req)
	verdictOK := verr == nil
	if verr != nil {
		metrics.VerdictFailures.Inc()
		p.logger.WarnContext(runCtx, "verdict unavailable, scoring without ml component",
			logging.Identity(req.Identity), logging.Err(verr))
	}

	weights := models.ComponentWeights{
		ML:         snap.Risk.WeightML,
		OWASP:      snap.Risk.WeightOWASP,
		Behavioral: snap.Risk.WeightBehavioral,
	}
	ratio := rep.BlockedRatio()
	comp := risk.Score(detections, v, ratio, weights)

	decision := policy.Decide(comp.Composite, snap.Automation.Mode, snap.Risk, snap.Automation)

	degraded := false
	if runCtx.Err() != nil && decision.Action != models.ActionAlertOnly {
		degraded = true
		decision.Action = models.ActionAlertOnly
		decision.RequiresValidation = false
		metrics.EvaluationsDegraded.Inc()
		p.logger.WarnContext(ctx, "evaluation deadline exceeded, degrading to alert-only",
			logging.Identity(req.Identity), logging.Score(comp.Composite))
	}

	// Persistence and fan-out must survive a blown run deadline; the
	// record of what happened matters more than the deadline itself.
	tailCtx := context.WithoutCancel(ctx)

	assessment := risk.NewAssessment(req, comp, detections, v, verdictOK, ratio, weights, decision, snap.Automation.Mode)
	if err := p.assessments.CreateAssessment(tailCtx, assessment); err != nil {
		p.logger.ErrorContext(tailCtx, "failed to persist assessment",
			logging.Identity(req.Identity), slog.String("assessment_id", assessment.ID), logging.Err(err))
	}

	action, err := p.runAction(tailCtx, runCtx, assessment, decision, req.Identity)
	if err != nil {
		return nil, err
	}

	incidentID := p.maybeOpenIncident(tailCtx, snap, req, assessment, detections, v, action)

	p.archiver.Enqueue(assessment)
	p.events.AssessmentScored(tailCtx, assessment)

	metrics.EvaluationsTotal.WithLabelValues(string(decision.Action), string(decision.Level)).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	p.logger.InfoContext(tailCtx, "request evaluated",
		logging.Identity(req.Identity),
		logging.Score(comp.Composite),
		logging.Action(string(decision.Action)),
		logging.Mode(string(snap.Automation.Mode)),
		slog.Bool("degraded", degraded),
		logging.Duration(time.Since(start).Milliseconds()),
	)

	return &models.EvaluationResult{
		Assessment: assessment,
		Decision:   decision,
		Action:     action,
		IncidentID: incidentID,
		Degraded:   degraded,
	}, nil
}

// runAction persists and, unless parked for validation, executes the
// decided action. An enforcement failure is recorded as FAILED, never
// silently dropped.
func (p *Pipeline) runAction(tailCtx, runCtx context.Context, assessment *models.RiskAssessment, decision models.Decision, identity string) (*models.ResponseAction, error) {
	assessmentID := assessment.ID
	action := &models.ResponseAction{
		ID:                 uuid.NewString(),
		AssessmentID:       &assessmentID,
		CreatedAt:          time.Now().UTC(),
		ActionType:         decision.Action,
		Status:             models.ActionPending,
		TargetIdentity:     identity,
		DurationMinutes:    decision.DurationMinutes,
		RequiresValidation: decision.RequiresValidation,
	}
	if err := p.actions.CreateAction(tailCtx, action); err != nil {
		return nil, fmt.Errorf("persisting action for %s: %w", identity, err)
	}

	// ALERT_ONLY has no side effect to approve, so it never parks.
	if decision.RequiresValidation && decision.Action != models.ActionAlertOnly {
		p.logger.InfoContext(tailCtx, "action parked awaiting validation",
			logging.ActionID(action.ID),
			logging.Action(string(action.ActionType)),
			logging.Identity(identity),
		)
		metrics.ActionsTotal.WithLabelValues(string(action.ActionType), "parked").Inc()
		return action, nil
	}

	p.execute(tailCtx, runCtx, action)
	return action, nil
}

// execute applies the action at the enforcement point and records the
// outcome. The action must already be persisted as PENDING.
func (p *Pipeline) execute(tailCtx, runCtx context.Context, action *models.ResponseAction) {
	result := p.executor.Execute(runCtx, action.ActionType, action.TargetIdentity, action.Duration())
	now := time.Now().UTC()

	if !result.Executed {
		action.Status = models.ActionFailed
		action.ErrorMessage = result.Message
		if err := p.actions.MarkActionFailed(tailCtx, action.ID, result.Message); err != nil {
			p.logger.ErrorContext(tailCtx, "failed to record action failure",
				logging.ActionID(action.ID), logging.Err(err))
		}
		metrics.ActionsTotal.WithLabelValues(string(action.ActionType), string(models.ActionFailed)).Inc()
		p.events.ActionFailed(tailCtx, action)
		p.logger.ErrorContext(tailCtx, "action execution failed",
			logging.ActionID(action.ID),
			logging.Action(string(action.ActionType)),
			logging.Identity(action.TargetIdentity),
			slog.String("reason", result.Message),
		)
		return
	}

	resultJSON, _ := json.Marshal(result)
	sig := ""
	if p.signer != nil {
		sig = p.signer.Sign(action.ID, now, action.TargetIdentity, resultJSON)
	}
	action.Status = models.ActionExecuted
	action.ExecutedAt = &now
	action.Result = result.Message
	action.Signature = sig
	if err := p.actions.MarkActionExecuted(tailCtx, action.ID, now, result.Message, sig); err != nil {
		p.logger.ErrorContext(tailCtx, "failed to record action execution",
			logging.ActionID(action.ID), logging.Err(err))
	}
	metrics.ActionsTotal.WithLabelValues(string(action.ActionType), string(models.ActionExecuted)).Inc()
	p.events.ActionExecuted(tailCtx, action)
}

// maybeOpenIncident opens or updates an incident when the score crosses the
// incident threshold. Incident failures never fail the evaluation.
func (p *Pipeline) maybeOpenIncident(ctx context.Context, snap *config.Config, req models.RequestData, assessment *models.RiskAssessment, detections []models.Detection, v models.Verdict, action *models.ResponseAction) string {
	if assessment.Score < snap.Incident.Threshold {
		return ""
	}

	attackType := "UNKNOWN"
	if len(detections) > 0 {
		attackType = string(detections[0].Category)
	} else if v.AttackType != "" && v.AttackType != "BENIGN" {
		attackType = v.AttackType
	}

	severity := models.SeverityHigh
	if assessment.Score >= snap.Risk.BlockThreshold {
		severity = models.SeverityCritical
	}

	actioned := action != nil && action.Status == models.ActionExecuted
	blocked := actioned && action.ActionType == models.ActionBlockIP

	id, _, err := p.incidents.MaybeOpenOrUpdate(ctx, req.Identity, attackType, severity, req.Path, blocked, actioned)
	if err != nil {
		p.logger.ErrorContext(ctx, "incident tracking failed",
			logging.Identity(req.Identity), logging.Err(err))
		return ""
	}
	return id
}

// ManualAction persists and executes an operator-initiated action. Manual
// actions carry no assessment and never require validation; the operator
// issuing one is the validation.
func (p *Pipeline) ManualAction(ctx context.Context, req *models.ManualActionRequest) (*models.ResponseAction, error) {
	if req.TargetIdentity == "" {
		return nil, ErrMissingIdentity
	}
	if !req.ActionType.Valid() {
		return nil, fmt.Errorf("unknown action type %q", req.ActionType)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = p.cfg.Snapshot().Risk.DefaultMinutes
	}

	action := &models.ResponseAction{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		ActionType:      req.ActionType,
		Status:          models.ActionPending,
		TargetIdentity:  req.TargetIdentity,
		DurationMinutes: duration,
		Result:          req.Reason,
	}
	if err := p.actions.CreateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("persisting manual action for %s: %w", req.TargetIdentity, err)
	}

	p.execute(ctx, ctx, action)
	return action, nil
}

// ValidateAction approves a parked action and executes it. Only PENDING
// actions can be validated; everything else returns ErrActionNotPending.
func (p *Pipeline) ValidateAction(ctx context.Context, actionID, validatedBy string) (*models.ResponseAction, error) {
	if validatedBy == "" {
		return nil, errors.New("validated_by is required")
	}

	now := time.Now().UTC()
	if err := p.actions.ValidateAction(ctx, actionID, validatedBy, now); err != nil {
		return nil, err
	}

	action, err := p.actions.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	p.events.ActionValidated(ctx, action)

	p.execute(ctx, ctx, action)
	p.logger.InfoContext(ctx, "parked action validated and executed",
		logging.ActionID(actionID),
		slog.String("validated_by", validatedBy),
		slog.String("status", string(action.Status)),
	)
	return action, nil
}
