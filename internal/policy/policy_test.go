package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentrygate/sentrygate/internal/config"
	"github.com/sentrygate/sentrygate/internal/models"
)

func testRisk() config.RiskConfig {
	return config.RiskConfig{
		BlockThreshold:     0.9,
		CaptchaThreshold:   0.7,
		RateLimitThreshold: 0.5,
		BlockMinutes:       60,
		CaptchaMinutes:     30,
		DefaultMinutes:     15,
	}
}

func testAutomation(mode models.AutomationMode) config.AutomationConfig {
	return config.AutomationConfig{
		Mode:              mode,
		SemiAutoThreshold: 0.8,
		AutoThreshold:     0.95,
	}
}

func TestDecide_Bands(t *testing.T) {
	tests := []struct {
		name         string
		score        float64
		wantAction   models.ActionType
		wantLevel    models.RiskLevel
		wantDuration int
	}{
		{"well below all thresholds", 0.1, models.ActionAlertOnly, models.RiskLow, 15},
		{"just below rate limit", 0.49, models.ActionAlertOnly, models.RiskLow, 15},
		{"at rate limit boundary", 0.5, models.ActionRateLimit, models.RiskMedium, 15},
		{"inside rate limit band", 0.69, models.ActionRateLimit, models.RiskMedium, 15},
		{"at captcha boundary", 0.7, models.ActionCaptcha, models.RiskHigh, 30},
		{"inside captcha band", 0.89, models.ActionCaptcha, models.RiskHigh, 30},
		{"at block boundary", 0.9, models.ActionBlockIP, models.RiskCritical, 60},
		{"maximum score", 1.0, models.ActionBlockIP, models.RiskCritical, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.score, models.ModeAuto, testRisk(), testAutomation(models.ModeAuto))
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantLevel, d.Level)
			assert.Equal(t, tt.wantDuration, d.DurationMinutes)
		})
	}
}

func TestDecide_EveryScoreGetsExactlyOneAction(t *testing.T) {
	// The bands partition [0,1]: no score falls through without an action.
	for score := 0.0; score <= 1.0; score += 0.01 {
		d := Decide(score, models.ModeAuto, testRisk(), testAutomation(models.ModeAuto))
		assert.True(t, d.Action.Valid(), "score %.2f produced invalid action", score)
		assert.Positive(t, d.DurationMinutes)
	}
}

func TestDecide_ValidationByMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  models.AutomationMode
		score float64
		want  bool
	}{
		{"manual always validates", models.ModeManual, 0.1, true},
		{"manual validates high scores too", models.ModeManual, 0.99, true},
		{"semi-auto below threshold", models.ModeSemiAuto, 0.79, false},
		{"semi-auto at threshold", models.ModeSemiAuto, 0.8, true},
		{"auto below threshold", models.ModeAuto, 0.94, false},
		{"auto at threshold", models.ModeAuto, 0.95, true},
		{"strict never validates", models.ModeStrict, 0.99, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.score, tt.mode, testRisk(), testAutomation(tt.mode))
			assert.Equal(t, tt.want, d.RequiresValidation)
		})
	}
}

func TestDecide_UnknownModeFailsSafe(t *testing.T) {
	d := Decide(0.3, models.AutomationMode("bogus"), testRisk(), testAutomation(models.ModeAuto))
	assert.True(t, d.RequiresValidation)
}

func TestDecide_TunedThresholds(t *testing.T) {
	risk := testRisk()
	risk.BlockThreshold = 0.6
	risk.CaptchaThreshold = 0.4
	risk.RateLimitThreshold = 0.2

	d := Decide(0.5, models.ModeAuto, risk, testAutomation(models.ModeAuto))
	assert.Equal(t, models.ActionCaptcha, d.Action)

	d = Decide(0.65, models.ModeAuto, risk, testAutomation(models.ModeAuto))
	assert.Equal(t, models.ActionBlockIP, d.Action)
}
