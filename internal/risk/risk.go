// Package risk computes the composite risk score for one request. Scoring is
// pure: same detections, verdict and history always produce the same score.
package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentrygate/sentrygate/internal/models"
)

// Default component weights. The remaining 0.10 is reserved for a contextual
// component not yet wired in.
const (
	DefaultWeightML         = 0.40
	DefaultWeightOWASP      = 0.30
	DefaultWeightBehavioral = 0.20
)

// Verdict sub-weights: anomaly carries more signal than the classifier's
// attack probability.
const (
	verdictAnomalyWeight = 0.6
	verdictAttackWeight  = 0.4
)

// DefaultWeights returns the default component weights.
func DefaultWeights() models.ComponentWeights {
	return models.ComponentWeights{
		ML:         DefaultWeightML,
		OWASP:      DefaultWeightOWASP,
		Behavioral: DefaultWeightBehavioral,
	}
}

// Components breaks a composite score into its weighted inputs.
type Components struct {
	ML         float64
	OWASP      float64
	Behavioral float64
	Composite  float64
}

// Score computes the risk components for one request. A zero-valued verdict
// is the fail-open input when the verdict service was unreachable; it
// contributes nothing to the score.
func Score(detections []models.Detection, verdict models.Verdict, blockedRatio float64, weights models.ComponentWeights) Components {
	c := Components{
		ML:         clamp01(verdictAnomalyWeight*verdict.AnomalyScore + verdictAttackWeight*verdict.AttackProbability),
		OWASP:      owaspComponent(detections),
		Behavioral: behavioralComponent(blockedRatio),
	}
	c.Composite = clamp01(weights.ML*c.ML + weights.OWASP*c.OWASP + weights.Behavioral*c.Behavioral)
	return c
}

// owaspComponent maps the worst detection severity to a score. A request
// with no detections contributes nothing.
func owaspComponent(detections []models.Detection) float64 {
	max := 0.0
	for _, d := range detections {
		if s := d.Severity.Score(); s > max {
			max = s
		}
	}
	return max
}

// behavioralComponent amplifies the blocked-request ratio: half the traffic
// blocked already saturates the component.
func behavioralComponent(blockedRatio float64) float64 {
	return clamp01(2 * blockedRatio)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NewAssessment assembles the immutable record of one scoring run. The
// contributing-factor snapshot makes the score reproducible after the fact.
func NewAssessment(
	req models.RequestData,
	comp Components,
	detections []models.Detection,
	verdict models.Verdict,
	verdictOK bool,
	blockedRatio float64,
	weights models.ComponentWeights,
	decision models.Decision,
	mode models.AutomationMode,
) *models.RiskAssessment {
	return &models.RiskAssessment{
		ID:                uuid.NewString(),
		RequestID:         req.RequestID,
		Identity:          req.Identity,
		AssessedAt:        time.Now().UTC(),
		Score:             comp.Composite,
		Level:             decision.Level,
		Weights:           weights,
		RecommendedAction: decision.Action,
		AutomationMode:    mode,
		Factors: models.ContributingFactors{
			Verdict:        verdict,
			VerdictOK:      verdictOK,
			Detections:     detections,
			BlockedRatio:   blockedRatio,
			MLComponent:    comp.ML,
			OWASPComponent: comp.OWASP,
			Behavioral:     comp.Behavioral,
		},
		Explanation: explain(comp, detections, verdictOK),
	}
}

func explain(comp Components, detections []models.Detection, verdictOK bool) string {
	s := fmt.Sprintf("composite %.2f (ml %.2f, owasp %.2f, behavioral %.2f), %d detection(s)",
		comp.Composite, comp.ML, comp.OWASP, comp.Behavioral, len(detections))
	if !verdictOK {
		s += ", verdict unavailable"
	}
	return s
}
