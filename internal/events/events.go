// Package events publishes action and incident lifecycle events to the
// message bus. Publishing is best effort: a dead broker costs observability,
// never a decision.
package events

import (
	"context"
	"encoding/json"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/common/messaging"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
)

// Publisher emits lifecycle events. A nil *Publisher is a valid no-op, so
// callers never need to branch on NATS being disabled.
type Publisher struct {
	pub    messaging.Publisher
	logger *logging.Logger
}

// NewPublisher creates an event publisher over the message bus client.
func NewPublisher(pub messaging.Publisher, logger *logging.Logger) *Publisher {
	return &Publisher{pub: pub, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) {
	if p == nil || p.pub == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal event", logging.Err(err))
		metrics.EventPublishErrors.Inc()
		return
	}

	if err := p.pub.Publish(ctx, subject, data); err != nil {
		p.logger.WarnContext(ctx, "failed to publish event",
			logging.Err(err))
		metrics.EventPublishErrors.Inc()
	}
}

// ActionExecuted emits risk.actions.executed.
func (p *Publisher) ActionExecuted(ctx context.Context, action *models.ResponseAction) {
	p.publish(ctx, messaging.SubjectActionsExecuted, action)
}

// ActionFailed emits risk.actions.failed.
func (p *Publisher) ActionFailed(ctx context.Context, action *models.ResponseAction) {
	p.publish(ctx, messaging.SubjectActionsFailed, action)
}

// ActionValidated emits risk.actions.validated.
func (p *Publisher) ActionValidated(ctx context.Context, action *models.ResponseAction) {
	p.publish(ctx, messaging.SubjectActionsValidated, action)
}

// ActionRolledBack emits risk.actions.rolledback.
func (p *Publisher) ActionRolledBack(ctx context.Context, action *models.ResponseAction) {
	p.publish(ctx, messaging.SubjectActionsRolledBack, action)
}

// IncidentOpened emits risk.incidents.opened.
func (p *Publisher) IncidentOpened(ctx context.Context, incident *models.Incident) {
	p.publish(ctx, messaging.SubjectIncidentsOpened, incident)
}

// IncidentUpdated emits risk.incidents.updated.
func (p *Publisher) IncidentUpdated(ctx context.Context, incident *models.Incident) {
	p.publish(ctx, messaging.SubjectIncidentsUpdated, incident)
}

// AssessmentScored emits risk.assessments.scored.
func (p *Publisher) AssessmentScored(ctx context.Context, assessment *models.RiskAssessment) {
	p.publish(ctx, messaging.SubjectAssessmentsScored, assessment)
}
