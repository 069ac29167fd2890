package model

// Wire types for the TestRail API v2 resources this tool consumes.

// Run is a remote collection of case executions awaiting results.
type Run struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IsCompleted bool   `json:"is_completed"`
}

// Plan is a remote collection of runs. Results published against a plan
// fan out across its open runs.
type Plan struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	IsCompleted bool        `json:"is_completed"`
	Entries     []PlanEntry `json:"entries"`
}

type PlanEntry struct {
	Runs []Run `json:"runs"`
}

// Test is one row of a run's current test list.
type Test struct {
	ID       int      `json:"id"`
	CaseID   int      `json:"case_id"`
	StatusID StatusID `json:"status_id"`
}

// AddRunRequest is the payload for add_run/{project_id}.
type AddRunRequest struct {
	SuiteID      int    `json:"suite_id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	AssignedToID int    `json:"assignedto_id,omitempty"`
	IncludeAll   bool   `json:"include_all"`
	CaseIDs      []int  `json:"case_ids"`
	MilestoneID  int    `json:"milestone_id,omitempty"`
}

// ResultEntry is one row of an add_results_for_cases batch.
type ResultEntry struct {
	StatusID StatusID `json:"status_id"`
	CaseID   int      `json:"case_id"`
	Defects  string   `json:"defects,omitempty"`
	Version  string   `json:"version,omitempty"`
	Comment  string   `json:"comment,omitempty"`
	// Whole seconds with an "s" suffix; TestRail does not take
	// sub-second durations
	Elapsed string `json:"elapsed,omitempty"`
}

// AddResultsRequest is the payload for add_results_for_cases/{run_id}.
type AddResultsRequest struct {
	Results []ResultEntry `json:"results"`
}

// CreatedResult is one element of the add_results_for_cases response.
// It is keyed by the remote test id, not the case id.
type CreatedResult struct {
	ID       int      `json:"id"`
	TestID   int      `json:"test_id"`
	StatusID StatusID `json:"status_id"`
}
