package messaging

import (
	"strings"
	"testing"
)

func TestSubjectNaming(t *testing.T) {
	subjects := []string{
		SubjectActionsExecuted,
		SubjectActionsFailed,
		SubjectActionsValidated,
		SubjectActionsRolledBack,
		SubjectIncidentsOpened,
		SubjectIncidentsUpdated,
		SubjectAssessmentsScored,
	}

	seen := make(map[string]bool)
	for _, s := range subjects {
		if seen[s] {
			t.Errorf("duplicate subject %q", s)
		}
		seen[s] = true

		if !strings.HasPrefix(s, "risk.") {
			t.Errorf("subject %q does not follow the risk.* convention", s)
		}
		if strings.Count(s, ".") != 2 {
			t.Errorf("subject %q does not follow domain.resource.event", s)
		}
	}
}
