// Package incident correlates repeated detections from one source into a
// single tracked incident.
package incident

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/events"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
	"github.com/sentrygate/sentrygate/internal/repository"
)

// Redis key prefixes.
const (
	openLockPrefix = "incident_open:"
	cooldownPrefix = "fp_cooldown:"
)

// mitreRef pairs the tactic and technique tagged onto an incident.
type mitreRef struct {
	tactic    string
	technique string
}

// ATT&CK references per attack category.
var mitreByCategory = map[string]mitreRef{
	string(models.CategorySQLInjection):     {"Initial Access", "T1190 Exploit Public-Facing Application"},
	string(models.CategoryXSS):              {"Execution", "T1059.007 JavaScript"},
	string(models.CategoryPathTraversal):    {"Discovery", "T1083 File and Directory Discovery"},
	string(models.CategoryCommandInjection): {"Execution", "T1059 Command and Scripting Interpreter"},
	string(models.CategoryXXE):              {"Initial Access", "T1190 Exploit Public-Facing Application"},
	string(models.CategorySSRF):             {"Command and Control", "T1090.002 External Proxy"},
	string(models.CategoryScanner):          {"Reconnaissance", "T1595 Active Scanning"},
}

// Tracker opens and maintains incidents.
type Tracker struct {
	repo     repository.IncidentRepository
	redis    *redis.Client
	events   *events.Publisher
	logger   *logging.Logger
	window   time.Duration
	cooldown time.Duration
}

// NewTracker creates an incident tracker. window is the correlation window
// for one source; cooldown suppresses auto-escalation after a false positive.
func NewTracker(repo repository.IncidentRepository, rdb *redis.Client, pub *events.Publisher, logger *logging.Logger, window, cooldown time.Duration) *Tracker {
	return &Tracker{
		repo:     repo,
		redis:    rdb,
		events:   pub,
		logger:   logger,
		window:   window,
		cooldown: cooldown,
	}
}

// MaybeOpenOrUpdate folds one high-risk detection into the source's open
// incident, or opens a new one. The Redis SET NX lock plus the open-incident
// lookup guarantee concurrent callers converge on a single incident.
// actioned reports that an enforcement action already executed for this hit;
// such incidents start (or move to) INVESTIGATING because the response is
// underway. Returns ("", false, nil) when escalation is suppressed by a
// false-positive cooldown or lost to a concurrent creator.
func (t *Tracker) MaybeOpenOrUpdate(ctx context.Context, source, attackType string, severity models.Severity, endpoint string, blocked, actioned bool) (string, bool, error) {
	suppressed, err := t.redis.Exists(ctx, cooldownPrefix+source).Result()
	if err != nil {
		return "", false, err
	}
	if suppressed > 0 {
		t.logger.DebugContext(ctx, "incident escalation suppressed by false-positive cooldown",
			logging.Identity(source))
		return "", false, nil
	}

	if id, ok, err := t.correlate(ctx, source, endpoint, attackType, blocked, actioned); err != nil || ok {
		return id, false, err
	}

	acquired, err := t.redis.SetNX(ctx, openLockPrefix+source, time.Now().UTC().Format(time.RFC3339), t.window).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		// Another worker is opening the incident; fold into it if it is
		// already visible, otherwise let the creator count this hit.
		id, _, err := t.correlate(ctx, source, endpoint, attackType, blocked, actioned)
		return id, false, err
	}

	inc := t.newIncident(source, attackType, severity, endpoint, blocked, actioned)
	if err := t.repo.CreateIncident(ctx, inc); err != nil {
		// Release the lock so the next detection can retry the open.
		t.redis.Del(ctx, openLockPrefix+source)
		return "", false, err
	}

	metrics.IncidentsOpened.Inc()
	t.events.IncidentOpened(ctx, inc)
	t.logger.InfoContext(ctx, "incident opened",
		logging.Incident(inc.ID),
		logging.Identity(source),
		logging.Action(attackType))
	return inc.ID, true, nil
}

// correlate folds the hit into an existing open incident if there is one.
func (t *Tracker) correlate(ctx context.Context, source, endpoint, attackType string, blocked, actioned bool) (string, bool, error) {
	existing, err := t.repo.FindOpenIncident(ctx, source)
	if err != nil {
		if errors.Is(err, repository.ErrIncidentNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	if err := t.repo.RecordIncidentHit(ctx, existing.ID, endpoint, attackType, blocked); err != nil {
		return "", false, err
	}

	// The first executed action against the source moves the incident out
	// of OPEN; the response is no longer pending operator attention.
	if actioned && existing.Status == models.IncidentOpen {
		if err := t.repo.UpdateIncidentStatus(ctx, existing.ID, models.IncidentInvestigating); err != nil {
			return "", false, err
		}
		existing.Status = models.IncidentInvestigating
		t.logger.InfoContext(ctx, "incident escalated to investigating",
			logging.Incident(existing.ID),
			logging.Identity(source))
	}

	metrics.IncidentsCorrelated.Inc()
	t.events.IncidentUpdated(ctx, existing)
	return existing.ID, true, nil
}

func (t *Tracker) newIncident(source, attackType string, severity models.Severity, endpoint string, blocked, actioned bool) *models.Incident {
	now := time.Now().UTC()
	status := models.IncidentOpen
	if actioned {
		status = models.IncidentInvestigating
	}
	inc := &models.Incident{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Type:           attackType,
		Severity:       severity,
		Status:         status,
		SourceIdentity: source,
		TotalRequests:  1,
	}
	if endpoint != "" {
		inc.AffectedEndpoints = []string{endpoint}
	}
	if attackType != "" {
		inc.AttackVectors = []string{attackType}
	}
	if blocked {
		inc.BlockedRequests = 1
	}
	if ref, ok := mitreByCategory[attackType]; ok {
		inc.MitreTactic = ref.tactic
		inc.MitreTechnique = ref.technique
	}
	return inc
}

// Transition moves an incident through its lifecycle. Terminal incidents
// reject further transitions.
func (t *Tracker) Transition(ctx context.Context, id string, status models.IncidentStatus) (*models.Incident, error) {
	if !status.Valid() {
		return nil, errors.New("unknown incident status")
	}

	if err := t.repo.UpdateIncidentStatus(ctx, id, status); err != nil {
		return nil, err
	}

	inc, err := t.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	// A closed incident no longer holds the correlation lock.
	if status.Terminal() {
		t.redis.Del(ctx, openLockPrefix+inc.SourceIdentity)
	}

	t.events.IncidentUpdated(ctx, inc)
	t.logger.InfoContext(ctx, "incident transitioned",
		logging.Incident(id),
		slog.String("status", string(status)))
	return inc, nil
}

// MarkFalsePositive flags the incident and starts the per-source cooldown
// that suppresses automatic re-escalation.
func (t *Tracker) MarkFalsePositive(ctx context.Context, id string) (*models.Incident, error) {
	if err := t.repo.MarkFalsePositive(ctx, id); err != nil {
		return nil, err
	}

	inc, err := t.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := t.redis.Set(ctx, cooldownPrefix+inc.SourceIdentity, "1", t.cooldown).Err(); err != nil {
		t.logger.WarnContext(ctx, "failed to set false-positive cooldown",
			logging.Incident(id), logging.Err(err))
	}

	t.events.IncidentUpdated(ctx, inc)
	t.logger.InfoContext(ctx, "incident marked false positive",
		logging.Incident(id),
		logging.Identity(inc.SourceIdentity))
	return inc, nil
}

// Get retrieves one incident.
func (t *Tracker) Get(ctx context.Context, id string) (*models.Incident, error) {
	return t.repo.GetIncident(ctx, id)
}

// List retrieves a filtered incident list.
func (t *Tracker) List(ctx context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error) {
	return t.repo.ListIncidents(ctx, req)
}
