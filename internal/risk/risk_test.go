package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/sentrygate/internal/models"
)

func TestScore_Components(t *testing.T) {
	weights := DefaultWeights()

	tests := []struct {
		name          string
		detections    []models.Detection
		verdict       models.Verdict
		blockedRatio  float64
		wantML        float64
		wantOWASP     float64
		wantBehavior  float64
		wantComposite float64
	}{
		{
			name: "benign request with clean history",
		},
		{
			name: "critical detection with hostile history",
			detections: []models.Detection{
				{Category: models.CategorySQLInjection, Severity: models.SeverityCritical},
			},
			verdict:       models.Verdict{AnomalyScore: 0.9, AttackProbability: 0.95},
			blockedRatio:  0.6,
			wantML:        0.92,
			wantOWASP:     1.0,
			wantBehavior:  1.0,
			wantComposite: 0.868,
		},
		{
			name: "medium detection only",
			detections: []models.Detection{
				{Category: models.CategoryScanner, Severity: models.SeverityMedium},
			},
			wantOWASP:     0.5,
			wantComposite: 0.15,
		},
		{
			name:          "verdict without detections",
			verdict:       models.Verdict{AnomalyScore: 0.5, AttackProbability: 0.5},
			wantML:        0.5,
			wantComposite: 0.2,
		},
		{
			name:          "behavioral saturates at half blocked",
			blockedRatio:  0.5,
			wantBehavior:  1.0,
			wantComposite: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Score(tt.detections, tt.verdict, tt.blockedRatio, weights)
			assert.InDelta(t, tt.wantML, c.ML, 1e-9)
			assert.InDelta(t, tt.wantOWASP, c.OWASP, 1e-9)
			assert.InDelta(t, tt.wantBehavior, c.Behavioral, 1e-9)
			assert.InDelta(t, tt.wantComposite, c.Composite, 1e-9)
		})
	}
}

func TestScore_WorstSeverityWins(t *testing.T) {
	detections := []models.Detection{
		{Category: models.CategoryScanner, Severity: models.SeverityLow},
		{Category: models.CategoryXSS, Severity: models.SeverityHigh},
		{Category: models.CategoryPathTraversal, Severity: models.SeverityMedium},
	}

	c := Score(detections, models.Verdict{}, 0, DefaultWeights())
	assert.InDelta(t, 0.8, c.OWASP, 1e-9)
}

func TestScore_Bounded(t *testing.T) {
	detections := []models.Detection{
		{Category: models.CategorySQLInjection, Severity: models.SeverityCritical},
	}
	verdict := models.Verdict{AnomalyScore: 1, AttackProbability: 1}

	c := Score(detections, verdict, 1, DefaultWeights())
	assert.LessOrEqual(t, c.Composite, 1.0)
	assert.GreaterOrEqual(t, c.Composite, 0.0)

	c = Score(nil, models.Verdict{}, 0, DefaultWeights())
	assert.Zero(t, c.Composite)
}

func TestScore_MonotoneInAnomaly(t *testing.T) {
	weights := DefaultWeights()
	prev := -1.0
	for anomaly := 0.0; anomaly <= 1.0; anomaly += 0.1 {
		c := Score(nil, models.Verdict{AnomalyScore: anomaly}, 0, weights)
		assert.Greater(t, c.Composite, prev)
		prev = c.Composite
	}
}

func TestScore_FailOpenVerdictContributesNothing(t *testing.T) {
	detections := []models.Detection{
		{Category: models.CategoryXSS, Severity: models.SeverityHigh},
	}

	withVerdict := Score(detections, models.Verdict{AnomalyScore: 0.8, AttackProbability: 0.7}, 0.1, DefaultWeights())
	failOpen := Score(detections, models.Verdict{}, 0.1, DefaultWeights())

	assert.Zero(t, failOpen.ML)
	assert.Less(t, failOpen.Composite, withVerdict.Composite)
	// The other components survive the missing verdict.
	assert.Equal(t, withVerdict.OWASP, failOpen.OWASP)
	assert.Equal(t, withVerdict.Behavioral, failOpen.Behavioral)
}

func TestNewAssessment_SnapshotsInputs(t *testing.T) {
	req := models.RequestData{
		RequestID: "req-1",
		Identity:  "203.0.113.4",
		Path:      "/login",
	}
	detections := []models.Detection{
		{Category: models.CategorySQLInjection, Severity: models.SeverityCritical, Confidence: 0.9},
	}
	verdict := models.Verdict{AnomalyScore: 0.9, AttackProbability: 0.95, AttackType: "SQL_INJECTION"}
	weights := DefaultWeights()

	comp := Score(detections, verdict, 0.6, weights)
	decision := models.Decision{
		Action:          models.ActionBlockIP,
		Level:           models.RiskCritical,
		DurationMinutes: 60,
	}

	a := NewAssessment(req, comp, detections, verdict, true, 0.6, weights, decision, models.ModeSemiAuto)

	require.NotEmpty(t, a.ID)
	assert.Equal(t, "req-1", a.RequestID)
	assert.Equal(t, "203.0.113.4", a.Identity)
	assert.Equal(t, comp.Composite, a.Score)
	assert.Equal(t, models.RiskCritical, a.Level)
	assert.Equal(t, models.ActionBlockIP, a.RecommendedAction)
	assert.Equal(t, models.ModeSemiAuto, a.AutomationMode)
	assert.True(t, a.Factors.VerdictOK)
	assert.Equal(t, verdict, a.Factors.Verdict)
	assert.Equal(t, detections, a.Factors.Detections)
	assert.InDelta(t, 0.6, a.Factors.BlockedRatio, 1e-9)
	assert.NotEmpty(t, a.Explanation)
}

func TestNewAssessment_UnavailableVerdictNoted(t *testing.T) {
	comp := Score(nil, models.Verdict{}, 0, DefaultWeights())
	a := NewAssessment(models.RequestData{RequestID: "r"}, comp, nil, models.Verdict{}, false, 0,
		DefaultWeights(), models.Decision{Action: models.ActionAlertOnly, Level: models.RiskLow}, models.ModeAuto)

	assert.False(t, a.Factors.VerdictOK)
	assert.Contains(t, a.Explanation, "verdict unavailable")
}
