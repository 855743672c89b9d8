// Package messaging defines standard subject names for the SentryGate message bus.
package messaging

// Subject constants for the SentryGate message bus.
// Follow the pattern: {domain}.{resource}.{event}
const (
	// Action lifecycle subjects - published by the response pipeline
	SubjectActionsExecuted   = "risk.actions.executed"   // Enforcement action applied
	SubjectActionsFailed     = "risk.actions.failed"     // Enforcement action failed
	SubjectActionsValidated  = "risk.actions.validated"  // Operator approved a parked action
	SubjectActionsRolledBack = "risk.actions.rolledback" // Action reversed

	// Incident lifecycle subjects
	SubjectIncidentsOpened  = "risk.incidents.opened"  // New incident created
	SubjectIncidentsUpdated = "risk.incidents.updated" // Incident counters or status changed

	// Assessment subjects - high volume, consumed by dashboards
	SubjectAssessmentsScored = "risk.assessments.scored" // Request evaluated
)
