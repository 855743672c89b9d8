package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentrygate/sentrygate/common/database"
	"github.com/sentrygate/sentrygate/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := database.QueryContext(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// =============================================================================
// Reputation
// =============================================================================

const reputationColumns = `
	identity, first_seen, last_seen, total_requests, blocked_requests,
	suspicious_requests, reputation_score, trust_level, whitelisted,
	blacklisted, blacklist_reason, blacklist_expires_at`

// Observe upserts the identity's counters and recomputes score and trust
// level in one statement. The row lock serializes concurrent observers, so
// counters never lose increments. The score and trust CASE ladders mirror
// reputation.ScoreForRatio and reputation.TrustLevelFor.
func (r *PostgresRepository) Observe(ctx context.Context, identity string, blocked, suspicious bool) (*models.ReputationRecord, error) {
	query := `
		INSERT INTO reputation (
			identity, first_seen, last_seen, total_requests, blocked_requests,
			suspicious_requests, reputation_score, trust_level, whitelisted, blacklisted
		)
		VALUES (
			$1, now(), now(), 1,
			CASE WHEN $2 THEN 1 ELSE 0 END,
			CASE WHEN $3 THEN 1 ELSE 0 END,
			CASE WHEN $2 THEN 0.1 ELSE 0.7 END,
			CASE WHEN $2 THEN 'MALICIOUS' ELSE 'TRUSTED' END,
			false, false
		)
		ON CONFLICT (identity) DO UPDATE SET
			last_seen = now(),
			total_requests = reputation.total_requests + 1,
			blocked_requests = reputation.blocked_requests + CASE WHEN $2 THEN 1 ELSE 0 END,
			suspicious_requests = reputation.suspicious_requests + CASE WHEN $3 THEN 1 ELSE 0 END,
			reputation_score = CASE
				WHEN (reputation.blocked_requests + CASE WHEN $2 THEN 1 ELSE 0 END)::float
					/ (reputation.total_requests + 1) > 0.5 THEN 0.1
				WHEN (reputation.blocked_requests + CASE WHEN $2 THEN 1 ELSE 0 END)::float
					/ (reputation.total_requests + 1) > 0.2 THEN 0.3
				ELSE 0.7
			END,
			trust_level = CASE
				WHEN reputation.blacklisted THEN 'MALICIOUS'
				WHEN reputation.whitelisted THEN 'TRUSTED'
				WHEN (reputation.blocked_requests + CASE WHEN $2 THEN 1 ELSE 0 END)::float
					/ (reputation.total_requests + 1) > 0.5 THEN 'MALICIOUS'
				WHEN (reputation.blocked_requests + CASE WHEN $2 THEN 1 ELSE 0 END)::float
					/ (reputation.total_requests + 1) > 0.2 THEN 'SUSPICIOUS'
				ELSE 'TRUSTED'
			END
		RETURNING ` + reputationColumns

	rec := &models.ReputationRecord{}
	err := r.pool.QueryRow(ctx, query, identity, blocked, suspicious).Scan(
		&rec.Identity, &rec.FirstSeen, &rec.LastSeen, &rec.TotalRequests,
		&rec.BlockedRequests, &rec.SuspiciousRequests, &rec.ReputationScore,
		&rec.TrustLevel, &rec.Whitelisted, &rec.Blacklisted,
		&rec.BlacklistReason, &rec.BlacklistExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to observe reputation: %w", err)
	}
	return rec, nil
}

// GetReputation retrieves a reputation record by identity
func (r *PostgresRepository) GetReputation(ctx context.Context, identity string) (*models.ReputationRecord, error) {
	query := `SELECT ` + reputationColumns + ` FROM reputation WHERE identity = $1`

	rec := &models.ReputationRecord{}
	err := r.pool.QueryRow(ctx, query, identity).Scan(
		&rec.Identity, &rec.FirstSeen, &rec.LastSeen, &rec.TotalRequests,
		&rec.BlockedRequests, &rec.SuspiciousRequests, &rec.ReputationScore,
		&rec.TrustLevel, &rec.Whitelisted, &rec.Blacklisted,
		&rec.BlacklistReason, &rec.BlacklistExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReputationNotFound
		}
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	return rec, nil
}

// SetWhitelisted toggles the whitelist flag for an identity
func (r *PostgresRepository) SetWhitelisted(ctx context.Context, identity string, whitelisted bool) error {
	query := `
		UPDATE reputation
		SET whitelisted = $2,
			trust_level = CASE WHEN $2 THEN 'TRUSTED' ELSE trust_level END
		WHERE identity = $1
	`
	tag, err := r.pool.Exec(ctx, query, identity, whitelisted)
	if err != nil {
		return fmt.Errorf("failed to update whitelist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReputationNotFound
	}
	return nil
}

// SetBlacklisted places an identity on the blacklist. The record is created
// if the identity has never been observed.
func (r *PostgresRepository) SetBlacklisted(ctx context.Context, identity, reason string, expiresAt *time.Time) error {
	query := `
		INSERT INTO reputation (
			identity, first_seen, last_seen, total_requests, blocked_requests,
			suspicious_requests, reputation_score, trust_level, whitelisted,
			blacklisted, blacklist_reason, blacklist_expires_at
		)
		VALUES ($1, now(), now(), 0, 0, 0, 0.1, 'MALICIOUS', false, true, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET
			blacklisted = true,
			trust_level = 'MALICIOUS',
			blacklist_reason = $2,
			blacklist_expires_at = $3
	`
	if _, err := r.pool.Exec(ctx, query, identity, reason, expiresAt); err != nil {
		return fmt.Errorf("failed to blacklist identity: %w", err)
	}
	return nil
}

// ClearBlacklist removes an identity from the blacklist
func (r *PostgresRepository) ClearBlacklist(ctx context.Context, identity string) error {
	query := `
		UPDATE reputation
		SET blacklisted = false, blacklist_reason = NULL, blacklist_expires_at = NULL
		WHERE identity = $1
	`
	tag, err := r.pool.Exec(ctx, query, identity)
	if err != nil {
		return fmt.Errorf("failed to clear blacklist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReputationNotFound
	}
	return nil
}

// =============================================================================
// Assessments
// =============================================================================

// CreateAssessment stores an immutable risk assessment
func (r *PostgresRepository) CreateAssessment(ctx context.Context, a *models.RiskAssessment) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal contributing factors: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, request_id, identity, assessed_at, score, level,
			weight_ml, weight_owasp, weight_behavioral,
			recommended_action, automation_mode, factors, explanation
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		a.ID, a.RequestID, a.Identity, a.AssessedAt, a.Score, a.Level,
		a.Weights.ML, a.Weights.OWASP, a.Weights.Behavioral,
		a.RecommendedAction, a.AutomationMode, factors, a.Explanation,
	)
	if err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

func scanAssessment(row pgx.Row) (*models.RiskAssessment, error) {
	a := &models.RiskAssessment{}
	var factors []byte
	err := row.Scan(
		&a.ID, &a.RequestID, &a.Identity, &a.AssessedAt, &a.Score, &a.Level,
		&a.Weights.ML, &a.Weights.OWASP, &a.Weights.Behavioral,
		&a.RecommendedAction, &a.AutomationMode, &factors, &a.Explanation,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(factors, &a.Factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contributing factors: %w", err)
	}
	return a, nil
}

const assessmentColumns = `
	id, request_id, identity, assessed_at, score, level,
	weight_ml, weight_owasp, weight_behavioral,
	recommended_action, automation_mode, factors, explanation`

// GetAssessment retrieves an assessment by ID
func (r *PostgresRepository) GetAssessment(ctx context.Context, id string) (*models.RiskAssessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`

	a, err := scanAssessment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return a, nil
}

// ListRecentAssessments retrieves the most recent assessments for an identity
func (r *PostgresRepository) ListRecentAssessments(ctx context.Context, identity string, limit int) ([]*models.RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE identity = $1
		ORDER BY assessed_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.RiskAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// Actions
// =============================================================================

const actionColumns = `
	id, assessment_id, created_at, executed_at, action_type, status,
	target_identity, duration_minutes, result, error_message,
	requires_validation, validated_by, validated_at, rolled_back_at,
	rollback_reason, signature`

// CreateAction stores a new response action
func (r *PostgresRepository) CreateAction(ctx context.Context, a *models.ResponseAction) error {
	query := `
		INSERT INTO actions (
			id, assessment_id, created_at, executed_at, action_type, status,
			target_identity, duration_minutes, result, error_message,
			requires_validation, validated_by, validated_at, rolled_back_at,
			rollback_reason, signature
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.AssessmentID, a.CreatedAt, a.ExecutedAt, a.ActionType, a.Status,
		a.TargetIdentity, a.DurationMinutes, a.Result, a.ErrorMessage,
		a.RequiresValidation, a.ValidatedBy, a.ValidatedAt, a.RolledBackAt,
		a.RollbackReason, a.Signature,
	)
	if err != nil {
		return fmt.Errorf("failed to create action: %w", err)
	}
	return nil
}

func scanAction(row pgx.Row) (*models.ResponseAction, error) {
	a := &models.ResponseAction{}
	err := row.Scan(
		&a.ID, &a.AssessmentID, &a.CreatedAt, &a.ExecutedAt, &a.ActionType,
		&a.Status, &a.TargetIdentity, &a.DurationMinutes, &a.Result,
		&a.ErrorMessage, &a.RequiresValidation, &a.ValidatedBy, &a.ValidatedAt,
		&a.RolledBackAt, &a.RollbackReason, &a.Signature,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAction retrieves an action by ID
func (r *PostgresRepository) GetAction(ctx context.Context, id string) (*models.ResponseAction, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`

	a, err := scanAction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

// MarkActionExecuted transitions an action to EXECUTED
func (r *PostgresRepository) MarkActionExecuted(ctx context.Context, id string, executedAt time.Time, result, signature string) error {
	query := `
		UPDATE actions
		SET status = $2, executed_at = $3, result = $4, signature = $5
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, models.ActionExecuted, executedAt, result, signature)
	if err != nil {
		return fmt.Errorf("failed to mark action executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActionNotFound
	}
	return nil
}

// MarkActionFailed transitions an action to FAILED
func (r *PostgresRepository) MarkActionFailed(ctx context.Context, id string, errorMessage string) error {
	query := `
		UPDATE actions
		SET status = $2, error_message = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, models.ActionFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark action failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActionNotFound
	}
	return nil
}

// ValidateAction records operator approval of a PENDING action.
// The validated_by IS NULL guard makes approval first-writer-wins: a
// concurrent second validator matches zero rows and gets ErrActionNotPending.
func (r *PostgresRepository) ValidateAction(ctx context.Context, id, validatedBy string, validatedAt time.Time) error {
	query := `
		UPDATE actions
		SET validated_by = $2, validated_at = $3
		WHERE id = $1 AND status = $4 AND validated_by IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, validatedBy, validatedAt, models.ActionPending)
	if err != nil {
		return fmt.Errorf("failed to validate action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAction(ctx, id); err != nil {
			return err
		}
		return ErrActionNotPending
	}
	return nil
}

// MarkActionRolledBack transitions an EXECUTED action to ROLLED_BACK
func (r *PostgresRepository) MarkActionRolledBack(ctx context.Context, id string, rolledBackAt time.Time, reason string) error {
	query := `
		UPDATE actions
		SET status = $2, rolled_back_at = $3, rollback_reason = $4
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, models.ActionRolledBack, rolledBackAt, reason)
	if err != nil {
		return fmt.Errorf("failed to mark action rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActionNotFound
	}
	return nil
}

// ListActions retrieves a filtered list of actions
func (r *PostgresRepository) ListActions(ctx context.Context, req *models.ListActionsRequest) ([]*models.ResponseAction, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.Target != "" {
		whereClause += fmt.Sprintf(" AND target_identity = $%d", argPos)
		args = append(args, req.Target)
		argPos++
	}
	if req.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, req.Status)
		argPos++
	}
	if req.From != nil {
		whereClause += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *req.From)
		argPos++
	}
	if req.To != nil {
		whereClause += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *req.To)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM actions %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count actions: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM actions %s ORDER BY created_at DESC LIMIT $%d",
		actionColumns, whereClause, argPos,
	)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []*models.ResponseAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ListExpiredActions returns EXECUTED actions whose duration has elapsed
func (r *PostgresRepository) ListExpiredActions(ctx context.Context, asOf time.Time) ([]*models.ResponseAction, error) {
	query := `SELECT ` + actionColumns + `
		FROM actions
		WHERE status = $1
		  AND executed_at IS NOT NULL
		  AND executed_at + make_interval(mins => duration_minutes) <= $2
		ORDER BY executed_at ASC`

	rows, err := r.pool.Query(ctx, query, models.ActionExecuted, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired actions: %w", err)
	}
	defer rows.Close()

	var out []*models.ResponseAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// Incidents
// =============================================================================

const incidentColumns = `
	id, created_at, updated_at, incident_type, severity, status,
	source_identity, affected_endpoints, attack_vectors, total_requests,
	blocked_requests, mitre_tactic, mitre_technique, resolved_at,
	resolution_minutes, false_positive`

// CreateIncident stores a new incident
func (r *PostgresRepository) CreateIncident(ctx context.Context, inc *models.Incident) error {
	query := `
		INSERT INTO incidents (
			id, created_at, updated_at, incident_type, severity, status,
			source_identity, affected_endpoints, attack_vectors, total_requests,
			blocked_requests, mitre_tactic, mitre_technique, false_positive
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		inc.ID, inc.CreatedAt, inc.UpdatedAt, inc.Type, inc.Severity, inc.Status,
		inc.SourceIdentity, inc.AffectedEndpoints, inc.AttackVectors,
		inc.TotalRequests, inc.BlockedRequests, inc.MitreTactic,
		inc.MitreTechnique, inc.FalsePositive,
	)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	inc := &models.Incident{}
	err := row.Scan(
		&inc.ID, &inc.CreatedAt, &inc.UpdatedAt, &inc.Type, &inc.Severity,
		&inc.Status, &inc.SourceIdentity, &inc.AffectedEndpoints,
		&inc.AttackVectors, &inc.TotalRequests, &inc.BlockedRequests,
		&inc.MitreTactic, &inc.MitreTechnique, &inc.ResolvedAt,
		&inc.ResolutionMinutes, &inc.FalsePositive,
	)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// GetIncident retrieves an incident by ID
func (r *PostgresRepository) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

// FindOpenIncident returns the newest non-terminal incident for a source
func (r *PostgresRepository) FindOpenIncident(ctx context.Context, source string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE source_identity = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1`

	inc, err := scanIncident(r.pool.QueryRow(ctx, query, source,
		models.IncidentOpen, models.IncidentInvestigating))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to find open incident: %w", err)
	}
	return inc, nil
}

// RecordIncidentHit accumulates a correlated detection into an incident
func (r *PostgresRepository) RecordIncidentHit(ctx context.Context, id, endpoint, vector string, blocked bool) error {
	query := `
		UPDATE incidents
		SET updated_at = now(),
			total_requests = total_requests + 1,
			blocked_requests = blocked_requests + CASE WHEN $4 THEN 1 ELSE 0 END,
			affected_endpoints = CASE
				WHEN $2 = '' OR $2 = ANY(affected_endpoints) THEN affected_endpoints
				ELSE array_append(affected_endpoints, $2)
			END,
			attack_vectors = CASE
				WHEN $3 = '' OR $3 = ANY(attack_vectors) THEN attack_vectors
				ELSE array_append(attack_vectors, $3)
			END
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, endpoint, vector, blocked)
	if err != nil {
		return fmt.Errorf("failed to record incident hit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

// UpdateIncidentStatus transitions an incident. Terminal incidents are not
// reopened; RESOLVED records the resolution time.
func (r *PostgresRepository) UpdateIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) error {
	query := `
		UPDATE incidents
		SET status = $2,
			updated_at = now(),
			resolved_at = CASE WHEN $2 = $3 THEN now() ELSE resolved_at END,
			resolution_minutes = CASE
				WHEN $2 = $3 THEN CEIL(EXTRACT(EPOCH FROM (now() - created_at)) / 60)::int
				ELSE resolution_minutes
			END
		WHERE id = $1 AND status NOT IN ($4, $5)
	`
	tag, err := r.pool.Exec(ctx, query, id, status, models.IncidentResolved,
		models.IncidentResolved, models.IncidentClosed)
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetIncident(ctx, id); err != nil {
			return err
		}
		return ErrIncidentTerminal
	}
	return nil
}

// MarkFalsePositive flags a non-terminal incident as a false positive
func (r *PostgresRepository) MarkFalsePositive(ctx context.Context, id string) error {
	query := `
		UPDATE incidents
		SET false_positive = true, updated_at = now()
		WHERE id = $1 AND status NOT IN ($2, $3)
	`
	tag, err := r.pool.Exec(ctx, query, id, models.IncidentResolved, models.IncidentClosed)
	if err != nil {
		return fmt.Errorf("failed to mark false positive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetIncident(ctx, id); err != nil {
			return err
		}
		return ErrIncidentTerminal
	}
	return nil
}

// ListIncidents retrieves a filtered list of incidents
func (r *PostgresRepository) ListIncidents(ctx context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.Source != "" {
		whereClause += fmt.Sprintf(" AND source_identity = $%d", argPos)
		args = append(args, req.Source)
		argPos++
	}
	if req.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, req.Status)
		argPos++
	}
	if req.From != nil {
		whereClause += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *req.From)
		argPos++
	}
	if req.To != nil {
		whereClause += fmt.Sprintf(" AND created_at < $%d", argPos)
		args = append(args, *req.To)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM incidents %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM incidents %s ORDER BY created_at DESC LIMIT $%d",
		incidentColumns, whereClause, argPos,
	)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var out []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, total, rows.Err()
}
