package model

// StatusID is a TestRail result status.
// Reference: http://docs.gurock.com/testrail-api2/reference-statuses
type StatusID int

const (
	StatusPassed   StatusID = 1
	StatusBlocked  StatusID = 2
	StatusUntested StatusID = 3
	StatusRetest   StatusID = 4
	StatusFailed   StatusID = 5
)

func (s StatusID) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusBlocked:
		return "blocked"
	case StatusUntested:
		return "untested"
	case StatusRetest:
		return "retest"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// OutcomeStatus maps a terminal `go test -json` action onto a TestRail
// status. Skipped tests map to blocked, not untested; TestRail treats
// blocked as "intentionally not executed this cycle", which is what a
// skip means here.
func OutcomeStatus(action string) (StatusID, bool) {
	switch action {
	case "pass":
		return StatusPassed, true
	case "fail":
		return StatusFailed, true
	case "skip":
		return StatusBlocked, true
	}
	return 0, false
}

// Result is the canonical outcome of one test execution for one case id.
// A test mapped to several case ids fans out into one Result per id.
type Result struct {
	// TestRail case id (positive)
	CaseID int
	// Mapped result status
	Status StatusID
	// Free-form log or failure text, possibly empty
	Comment string
	// Test duration in seconds
	Duration float64
	// Comma-joined defect ids, empty when none
	Defects string
	// Parametrized subtest suffix, rendered into the published comment
	Params string
}
