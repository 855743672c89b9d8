// Package policy turns a composite risk score into a mitigation decision.
// Decide is pure; the bands and validation gates come from configuration so
// operators can retune without a redeploy.
package policy

import (
	"github.com/sentrygate/sentrygate/internal/config"
	"github.com/sentrygate/sentrygate/internal/models"
)

// Decide maps a score to the action, risk level, enforcement duration and
// validation requirement in effect for the given automation mode.
// Band boundaries are inclusive on the high side: a score exactly at a
// threshold takes the stricter action.
func Decide(score float64, mode models.AutomationMode, risk config.RiskConfig, automation config.AutomationConfig) models.Decision {
	d := models.Decision{
		Action:          models.ActionAlertOnly,
		Level:           models.RiskLow,
		DurationMinutes: risk.DefaultMinutes,
	}

	switch {
	case score >= risk.BlockThreshold:
		d.Action = models.ActionBlockIP
		d.Level = models.RiskCritical
		d.DurationMinutes = risk.BlockMinutes
	case score >= risk.CaptchaThreshold:
		d.Action = models.ActionCaptcha
		d.Level = models.RiskHigh
		d.DurationMinutes = risk.CaptchaMinutes
	case score >= risk.RateLimitThreshold:
		d.Action = models.ActionRateLimit
		d.Level = models.RiskMedium
	}

	d.RequiresValidation = requiresValidation(score, mode, automation)
	return d
}

// requiresValidation applies the automation-mode gate. Unknown modes are
// rejected at config load; falling through to "always ask" here keeps a
// stale snapshot on the safe side.
func requiresValidation(score float64, mode models.AutomationMode, automation config.AutomationConfig) bool {
	switch mode {
	case models.ModeManual:
		return true
	case models.ModeSemiAuto:
		return score >= automation.SemiAutoThreshold
	case models.ModeAuto:
		return score >= automation.AutoThreshold
	case models.ModeStrict:
		return false
	}
	return true
}
