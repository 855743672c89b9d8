package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sentrygate/sentrygate/internal/models"
)

var (
	ErrReputationNotFound = errors.New("reputation record not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrActionNotFound     = errors.New("action not found")
	ErrActionNotPending   = errors.New("action is not pending validation")
	ErrIncidentNotFound   = errors.New("incident not found")
	ErrIncidentTerminal   = errors.New("incident is in a terminal state")
)

// ReputationRepository persists per-identity request history.
type ReputationRepository interface {
	// Observe atomically increments the identity's counters and recomputes
	// its score in a single statement. The returned record reflects the
	// post-increment state.
	Observe(ctx context.Context, identity string, blocked, suspicious bool) (*models.ReputationRecord, error)
	GetReputation(ctx context.Context, identity string) (*models.ReputationRecord, error)
	SetWhitelisted(ctx context.Context, identity string, whitelisted bool) error
	SetBlacklisted(ctx context.Context, identity, reason string, expiresAt *time.Time) error
	ClearBlacklist(ctx context.Context, identity string) error
}

// AssessmentRepository persists immutable risk assessments.
type AssessmentRepository interface {
	CreateAssessment(ctx context.Context, a *models.RiskAssessment) error
	GetAssessment(ctx context.Context, id string) (*models.RiskAssessment, error)
	ListRecentAssessments(ctx context.Context, identity string, limit int) ([]*models.RiskAssessment, error)
}

// ActionRepository persists the response-action audit trail.
type ActionRepository interface {
	CreateAction(ctx context.Context, a *models.ResponseAction) error
	GetAction(ctx context.Context, id string) (*models.ResponseAction, error)
	MarkActionExecuted(ctx context.Context, id string, executedAt time.Time, result, signature string) error
	MarkActionFailed(ctx context.Context, id string, errorMessage string) error
	ValidateAction(ctx context.Context, id, validatedBy string, validatedAt time.Time) error
	MarkActionRolledBack(ctx context.Context, id string, rolledBackAt time.Time, reason string) error
	ListActions(ctx context.Context, req *models.ListActionsRequest) ([]*models.ResponseAction, int, error)
	// ListExpiredActions returns EXECUTED actions whose enforcement duration
	// has elapsed as of the given instant.
	ListExpiredActions(ctx context.Context, asOf time.Time) ([]*models.ResponseAction, error)
}

// IncidentRepository persists correlated incidents.
type IncidentRepository interface {
	CreateIncident(ctx context.Context, inc *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	// FindOpenIncident returns the most recent OPEN or INVESTIGATING
	// incident for the source identity.
	FindOpenIncident(ctx context.Context, source string) (*models.Incident, error)
	// RecordIncidentHit increments the incident's counters and accumulates
	// the endpoint and attack vector if not already present.
	RecordIncidentHit(ctx context.Context, id, endpoint, vector string, blocked bool) error
	UpdateIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) error
	MarkFalsePositive(ctx context.Context, id string) error
	ListIncidents(ctx context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error)
}

// Repository is the complete persistence surface of the service.
type Repository interface {
	ReputationRepository
	AssessmentRepository
	ActionRepository
	IncidentRepository

	Close() error
}
