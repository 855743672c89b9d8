// Package models provides data models for the risk decision pipeline.
package models

import "time"

// =============================================================================
// Detection
// =============================================================================

// AttackCategory identifies a known attack category.
// Categories form a closed set; new signature packs may only register
// patterns under these values.
type AttackCategory string

const (
	CategorySQLInjection     AttackCategory = "SQL_INJECTION"
	CategoryXSS              AttackCategory = "XSS"
	CategoryPathTraversal    AttackCategory = "PATH_TRAVERSAL"
	CategoryCommandInjection AttackCategory = "COMMAND_INJECTION"
	CategoryXXE              AttackCategory = "XXE"
	CategorySSRF             AttackCategory = "SSRF"
	CategoryScanner          AttackCategory = "SCANNER"
)

// KnownCategories lists every category the detection engine may emit.
var KnownCategories = []AttackCategory{
	CategorySQLInjection,
	CategoryXSS,
	CategoryPathTraversal,
	CategoryCommandInjection,
	CategoryXXE,
	CategorySSRF,
	CategoryScanner,
}

// Valid reports whether c is a member of the closed category set.
func (c AttackCategory) Valid() bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return false
}

// Severity of a detection or incident.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Score maps a severity to its contribution to the OWASP risk component.
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 1.0
	case SeverityHigh:
		return 0.8
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.3
	default:
		return 0.3
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Detection is a single signature match against a request.
// Immutable once created; at most one per category per request.
type Detection struct {
	Category   AttackCategory `json:"category"`
	Code       string         `json:"code"` // Standardized code, e.g. "A03:2021"
	Severity   Severity       `json:"severity"`
	Confidence float64        `json:"confidence"` // [0,1]
}

// =============================================================================
// Reputation
// =============================================================================

// TrustLevel is the derived trust classification for a source identity.
type TrustLevel string

const (
	TrustTrusted    TrustLevel = "TRUSTED"
	TrustNeutral    TrustLevel = "NEUTRAL"
	TrustSuspicious TrustLevel = "SUSPICIOUS"
	TrustMalicious  TrustLevel = "MALICIOUS"
)

// ReputationRecord tracks per-source-identity request history.
// Mutation is owned exclusively by the reputation tracker.
type ReputationRecord struct {
	Identity           string     `json:"identity"`
	FirstSeen          time.Time  `json:"first_seen"`
	LastSeen           time.Time  `json:"last_seen"`
	TotalRequests      int64      `json:"total_requests"`
	BlockedRequests    int64      `json:"blocked_requests"`
	SuspiciousRequests int64      `json:"suspicious_requests"`
	ReputationScore    float64    `json:"reputation_score"` // [0,1]
	TrustLevel         TrustLevel `json:"trust_level"`
	Whitelisted        bool       `json:"whitelisted"`
	Blacklisted        bool       `json:"blacklisted"`
	BlacklistReason    *string    `json:"blacklist_reason,omitempty"`
	BlacklistExpiresAt *time.Time `json:"blacklist_expires_at,omitempty"`
}

// BlockedRatio returns blocked/total, 0 for an identity with no history.
func (r *ReputationRecord) BlockedRatio() float64 {
	if r == nil || r.TotalRequests == 0 {
		return 0
	}
	return float64(r.BlockedRequests) / float64(r.TotalRequests)
}

// =============================================================================
// Verdict (external ML collaborator)
// =============================================================================

// Verdict is the anomaly/classification signal consumed from the verdict
// service. A zero Verdict is the documented fail-open value when the
// collaborator is unreachable.
type Verdict struct {
	AnomalyScore      float64 `json:"anomaly_score"`      // [0,1]
	AttackType        string  `json:"attack_type"`        // e.g. "SQL_INJECTION", "BENIGN"
	AttackProbability float64 `json:"attack_probability"` // [0,1]
}

// =============================================================================
// Risk assessment
// =============================================================================

// RiskLevel buckets a composite score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ComponentWeights records the weights used for a single assessment.
type ComponentWeights struct {
	ML         float64 `json:"ml"`
	OWASP      float64 `json:"owasp"`
	Behavioral float64 `json:"behavioral"`
}

// ContributingFactors is the snapshot of inputs behind an assessment.
type ContributingFactors struct {
	Verdict        Verdict     `json:"verdict"`
	VerdictOK      bool        `json:"verdict_ok"` // false when the verdict service was unavailable
	Detections     []Detection `json:"detections"`
	BlockedRatio   float64     `json:"blocked_ratio"`
	MLComponent    float64     `json:"ml_component"`
	OWASPComponent float64     `json:"owasp_component"`
	Behavioral     float64     `json:"behavioral_component"`
}

// RiskAssessment is the immutable outcome of scoring one request.
type RiskAssessment struct {
	ID                string              `json:"id"`
	RequestID         string              `json:"request_id"`
	Identity          string              `json:"identity"`
	AssessedAt        time.Time           `json:"assessed_at"`
	Score             float64             `json:"risk_score"` // [0,1]
	Level             RiskLevel           `json:"risk_level"`
	Weights           ComponentWeights    `json:"weights"`
	RecommendedAction ActionType          `json:"recommended_action"`
	AutomationMode    AutomationMode      `json:"automation_mode"`
	Factors           ContributingFactors `json:"contributing_factors"`
	Explanation       string              `json:"explanation,omitempty"`
}

// =============================================================================
// Response actions
// =============================================================================

// ActionType identifies a mitigation action.
type ActionType string

const (
	ActionBlockIP   ActionType = "BLOCK_IP"
	ActionCaptcha   ActionType = "CAPTCHA"
	ActionRateLimit ActionType = "RATE_LIMIT"
	ActionAlertOnly ActionType = "ALERT_ONLY"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionBlockIP, ActionCaptcha, ActionRateLimit, ActionAlertOnly:
		return true
	}
	return false
}

// ActionStatus is the lifecycle state of a response action.
// PENDING -> EXECUTED|FAILED -> ROLLED_BACK (EXECUTED only).
// FAILED and ROLLED_BACK are terminal.
type ActionStatus string

const (
	ActionPending    ActionStatus = "PENDING" // Parked awaiting operator validation
	ActionExecuted   ActionStatus = "EXECUTED"
	ActionFailed     ActionStatus = "FAILED"
	ActionRolledBack ActionStatus = "ROLLED_BACK"
)

// ResponseAction is a persisted mitigation action against a target identity.
type ResponseAction struct {
	ID                 string       `json:"id"`
	AssessmentID       *string      `json:"assessment_id,omitempty"` // nil for manual actions
	CreatedAt          time.Time    `json:"created_at"`
	ExecutedAt         *time.Time   `json:"executed_at,omitempty"`
	ActionType         ActionType   `json:"action_type"`
	Status             ActionStatus `json:"status"`
	TargetIdentity     string       `json:"target_identity"`
	DurationMinutes    int          `json:"duration_minutes"`
	Result             string       `json:"result,omitempty"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	RequiresValidation bool         `json:"requires_validation"`
	ValidatedBy        *string      `json:"validated_by,omitempty"`
	ValidatedAt        *time.Time   `json:"validated_at,omitempty"`
	RolledBackAt       *time.Time   `json:"rolled_back_at,omitempty"`
	RollbackReason     *string      `json:"rollback_reason,omitempty"`
	Signature          string       `json:"signature,omitempty"` // HMAC over the executed action
}

// Duration returns the enforcement duration as a time.Duration.
func (a *ResponseAction) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Terminal reports whether no further state transitions are possible.
func (a *ResponseAction) Terminal() bool {
	return a.Status == ActionFailed || a.Status == ActionRolledBack
}

// =============================================================================
// Incidents
// =============================================================================

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "OPEN"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentResolved      IncidentStatus = "RESOLVED"
	IncidentClosed        IncidentStatus = "CLOSED"
)

// Valid reports whether s is a known incident status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentClosed:
		return true
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentClosed
}

// Incident aggregates repeated detections from the same source.
type Incident struct {
	ID                string         `json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Type              string         `json:"incident_type"` // attack category or action type
	Severity          Severity       `json:"severity"`
	Status            IncidentStatus `json:"status"`
	SourceIdentity    string         `json:"source_identity"`
	AffectedEndpoints []string       `json:"affected_endpoints,omitempty"`
	AttackVectors     []string       `json:"attack_vectors,omitempty"`
	TotalRequests     int            `json:"total_requests_involved"`
	BlockedRequests   int            `json:"blocked_requests_count"`
	MitreTactic       string         `json:"mitre_tactic,omitempty"`
	MitreTechnique    string         `json:"mitre_technique,omitempty"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	ResolutionMinutes *int           `json:"resolution_time_minutes,omitempty"`
	FalsePositive     bool           `json:"false_positive"`
}

// =============================================================================
// Automation
// =============================================================================

// AutomationMode gates how much human validation automated actions require.
type AutomationMode string

const (
	ModeManual   AutomationMode = "manual"
	ModeSemiAuto AutomationMode = "semi-auto"
	ModeAuto     AutomationMode = "auto"
	ModeStrict   AutomationMode = "strict"
)

// Valid reports whether m is a known automation mode.
func (m AutomationMode) Valid() bool {
	switch m {
	case ModeManual, ModeSemiAuto, ModeAuto, ModeStrict:
		return true
	}
	return false
}

// =============================================================================
// Pipeline input/output
// =============================================================================

// RequestData is an intercepted HTTP request handed to the pipeline.
// The upstream interceptor has already terminated the transport.
type RequestData struct {
	RequestID  string    `json:"request_id"`
	Identity   string    `json:"identity"` // source identity, typically client IP
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Path       string    `json:"path"`
	Query      string    `json:"query"`
	Body       string    `json:"body"`
	UserAgent  string    `json:"user_agent"`
	ReceivedAt time.Time `json:"received_at"`
}

// Decision is the output of the decision policy for one request.
type Decision struct {
	Action             ActionType `json:"action"`
	Level              RiskLevel  `json:"level"`
	RequiresValidation bool       `json:"requires_validation"`
	DurationMinutes    int        `json:"duration_minutes"`
}

// EvaluationResult is the full outcome of one pipeline run.
type EvaluationResult struct {
	Assessment *RiskAssessment `json:"assessment"`
	Decision   Decision        `json:"decision"`
	Action     *ResponseAction `json:"action,omitempty"`
	IncidentID string          `json:"incident_id,omitempty"`
	Degraded   bool            `json:"degraded"` // true when the run hit the deadline and fell back to ALERT_ONLY
}

// =============================================================================
// API request/response types
// =============================================================================

// ManualActionRequest is an operator-initiated action with no assessment.
type ManualActionRequest struct {
	TargetIdentity  string     `json:"target_identity"`
	ActionType      ActionType `json:"action_type"`
	Reason          string     `json:"reason"`
	DurationMinutes int        `json:"duration_minutes"`
}

// ValidateActionRequest approves a parked action.
type ValidateActionRequest struct {
	ValidatedBy string `json:"validated_by"`
}

// RollbackRequest reverses an executed action.
type RollbackRequest struct {
	Reason string `json:"reason"`
}

// ListActionsRequest filters the action audit trail.
type ListActionsRequest struct {
	Target string
	Status ActionStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}

// ListIncidentsRequest filters incidents.
type ListIncidentsRequest struct {
	Source string
	Status IncidentStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}

// BlacklistRequest places an identity on the blacklist.
type BlacklistRequest struct {
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"` // 0 means no expiry
}

// ChangeModeRequest switches the automation mode at runtime.
type ChangeModeRequest struct {
	Mode AutomationMode `json:"mode"`
}

// RemediationPlan is the text bundle returned by the plan template service.
type RemediationPlan struct {
	AttackType string   `json:"attack_type"`
	Summary    string   `json:"summary"`
	Steps      []string `json:"steps"`
	References []string `json:"references,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Mode    string `json:"mode,omitempty"`
}
