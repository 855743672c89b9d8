package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldService   = "service"
	FieldIdentity  = "identity"
	FieldAction    = "action"
	FieldActionID  = "action_id"
	FieldIncident  = "incident_id"
	FieldScore     = "risk_score"
	FieldLevel     = "risk_level"
	FieldMode      = "automation_mode"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldRequestID = "request_id"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Identity returns a slog attribute for the source identity under evaluation.
func Identity(id string) slog.Attr {
	return slog.String(FieldIdentity, id)
}

// Action returns a slog attribute for a response action type.
func Action(action string) slog.Attr {
	return slog.String(FieldAction, action)
}

// ActionID returns a slog attribute for a response action record ID.
func ActionID(id string) slog.Attr {
	return slog.String(FieldActionID, id)
}

// Incident returns a slog attribute for an incident ID.
func Incident(id string) slog.Attr {
	return slog.String(FieldIncident, id)
}

// Score returns a slog attribute for a composite risk score.
func Score(score float64) slog.Attr {
	return slog.Float64(FieldScore, score)
}

// Mode returns a slog attribute for the automation mode in effect.
func Mode(mode string) slog.Attr {
	return slog.String(FieldMode, mode)
}

// Err returns a slog attribute for an error value.
// Safe to call with nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// Duration returns a slog attribute for an operation duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
