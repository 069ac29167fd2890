package publish

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gotrail/gotrail/model"
	"github.com/rs/zerolog"
)

// Gateway is the capability surface the engine needs from the remote
// service. *testrail.Client implements it.
type Gateway interface {
	GetRun(id int) (*model.Run, error)
	GetPlan(id int) (*model.Plan, error)
	GetTests(runID int) ([]model.Test, error)
	AddRun(projectID int, req model.AddRunRequest) (*model.Run, error)
	AddResults(runID int, req model.AddResultsRequest) ([]model.CreatedResult, error)
	CloseRun(id int) error
	ClosePlan(id int) error
	AddAttachment(resultID int, path string) error
}

// Options is the session configuration consumed by the engine. It is
// owned by the CLI layer.
type Options struct {
	ProjectID    int
	SuiteID      int
	AssignUserID int
	IncludeAll   bool
	RunID        int
	PlanID       int
	RunName      string
	Description  string
	MilestoneID  int
	Version      string
	// Close the run (or plan) after publishing
	CloseOnComplete bool
	// Publish results for cases currently blocked in the run;
	// disabling it excludes those case ids from the batch
	PublishBlocked bool
	// Skip locally discovered tests whose case ids are absent from
	// the configured run, before execution
	SkipMissing bool
	// Custom preamble prepended to every published comment
	CustomComment string
}

// Selection is the resolved publish target kind for the session.
type Selection int

const (
	SelectionNone Selection = iota
	SelectionRun
	SelectionPlan
)

// ErrTargetUnavailable marks a resolved run or plan that was missing or
// completed. The reconciler filters these out before publishing, so the
// publisher only sees it defensively.
var ErrTargetUnavailable = errors.New("target run or plan unavailable")

// Item pairs a locally discovered test with its mapped case ids.
type Item struct {
	Name    string
	CaseIDs []int
}

const runNameFormat = "02-01-2006 15:04:05"

// DefaultRunName returns the timestamped name used when creating a run
// without an explicit name.
func DefaultRunName(now time.Time) string {
	return "Automated Run " + now.UTC().Format(runNameFormat)
}

// Reconciler decides the target run(s) for a session and matches
// engine output against remote run state. Resolve is evaluated once,
// before execution.
type Reconciler struct {
	gw     Gateway
	opts   Options
	logger zerolog.Logger

	selection Selection
	runID     int
	planID    int
}

func NewReconciler(gw Gateway, opts Options, logger zerolog.Logger) *Reconciler {
	return &Reconciler{gw: gw, opts: opts, logger: logger}
}

// Selected reports the resolved target kind and the remote id it
// refers to.
func (r *Reconciler) Selected() (Selection, int) {
	switch r.selection {
	case SelectionRun:
		return SelectionRun, r.runID
	case SelectionPlan:
		return SelectionPlan, r.planID
	}
	return SelectionNone, 0
}

// Resolve evaluates run selection, in priority order: a usable
// configured plan, then a usable configured run, then a newly created
// run covering every discovered case id. It returns the names of tests
// to skip before execution (non-empty only with the skip-missing
// policy on a configured run).
func (r *Reconciler) Resolve(items []Item) ([]string, error) {
	if r.opts.PlanID != 0 && r.planAvailable(r.opts.PlanID) {
		r.selection = SelectionPlan
		r.planID = r.opts.PlanID
		return nil, nil
	}

	if r.opts.RunID != 0 && r.runAvailable(r.opts.RunID) {
		r.selection = SelectionRun
		r.runID = r.opts.RunID
		if !r.opts.SkipMissing {
			return nil, nil
		}
		skip, err := r.missingTests(r.opts.RunID, items)
		if err != nil {
			return nil, err
		}
		return skip, nil
	}

	return nil, r.createRun(items)
}

func (r *Reconciler) planAvailable(id int) bool {
	plan, err := r.gw.GetPlan(id)
	if err != nil {
		r.logger.Warn().Err(err).Int("plan_id", id).Msg("Failed to retrieve testplan")
		return false
	}
	return !plan.IsCompleted
}

func (r *Reconciler) runAvailable(id int) bool {
	run, err := r.gw.GetRun(id)
	if err != nil {
		r.logger.Warn().Err(err).Int("run_id", id).Msg("Failed to retrieve testrun")
		return false
	}
	return !run.IsCompleted
}

// missingTests returns the tests whose case ids are all absent from
// the run's current case set. The skip decision happens before
// execution, not after.
func (r *Reconciler) missingTests(runID int, items []Item) ([]string, error) {
	tests, err := r.gw.GetTests(runID)
	if err != nil {
		return nil, fmt.Errorf("fetch tests of run %d: %w", runID, err)
	}
	present := make(map[int]struct{}, len(tests))
	for _, t := range tests {
		present[t.CaseID] = struct{}{}
	}

	var skip []string
	for _, item := range items {
		found := false
		for _, id := range item.CaseIDs {
			if _, ok := present[id]; ok {
				found = true
				break
			}
		}
		if !found {
			skip = append(skip, item.Name)
		}
	}
	if len(skip) > 0 {
		r.logger.Info().Strs("tests", skip).Msg("Tests not present in testrun will be skipped")
	}
	return skip, nil
}

func (r *Reconciler) createRun(items []Item) error {
	name := r.opts.RunName
	if name == "" {
		name = DefaultRunName(time.Now())
	}

	seen := make(map[int]struct{})
	var caseIDs []int
	for _, item := range items {
		for _, id := range item.CaseIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			caseIDs = append(caseIDs, id)
		}
	}
	sort.Ints(caseIDs)

	run, err := r.gw.AddRun(r.opts.ProjectID, model.AddRunRequest{
		SuiteID:      r.opts.SuiteID,
		Name:         name,
		Description:  r.opts.Description,
		AssignedToID: r.opts.AssignUserID,
		IncludeAll:   r.opts.IncludeAll,
		CaseIDs:      caseIDs,
		MilestoneID:  r.opts.MilestoneID,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to create testrun")
		return fmt.Errorf("create testrun: %w", err)
	}

	r.selection = SelectionRun
	r.runID = run.ID
	r.logger.Info().Str("name", name).Int("run_id", run.ID).Msg("New testrun created")
	return nil
}

// Targets returns the run ids to publish to: the selected run, or the
// open runs nested under the selected plan. Each is an independent
// publish target.
func (r *Reconciler) Targets() ([]int, error) {
	switch r.selection {
	case SelectionRun:
		return []int{r.runID}, nil
	case SelectionPlan:
		plan, err := r.gw.GetPlan(r.planID)
		if err != nil {
			return nil, fmt.Errorf("expand testplan %d: %w", r.planID, err)
		}
		var runs []int
		for _, entry := range plan.Entries {
			for _, run := range entry.Runs {
				if !run.IsCompleted {
					runs = append(runs, run.ID)
				}
			}
		}
		return runs, nil
	}
	return nil, ErrTargetUnavailable
}

// BlockedCases returns the case ids currently blocked in the run, to be
// excluded from the batch when blocked publishing is off. The set is
// computed independently per run.
func (r *Reconciler) BlockedCases(runID int) (map[int]struct{}, error) {
	tests, err := r.gw.GetTests(runID)
	if err != nil {
		return nil, fmt.Errorf("fetch tests of run %d: %w", runID, err)
	}
	blocked := make(map[int]struct{})
	var ids []int
	for _, t := range tests {
		if t.StatusID == model.StatusBlocked {
			blocked[t.CaseID] = struct{}{}
			ids = append(ids, t.CaseID)
		}
	}
	sort.Ints(ids)
	r.logger.Info().Ints("case_ids", ids).Msg("Blocked testcases excluded")
	return blocked, nil
}

// Attachment pairs a created remote result with the local evidence
// file to upload for it.
type Attachment struct {
	ResultID int
	CaseID   int
	Path     string
}

// ResolveAttachments joins created results (keyed by remote test id)
// against the run's current test list on case id, then against the
// captured evidence. Results without evidence are skipped; evidence
// with no matching remote test is dropped. The join is quadratic over
// results and tests, which is fine at the expected tens-to-hundreds
// scale.
func (r *Reconciler) ResolveAttachments(tests []model.Test, created []model.CreatedResult, evidence map[int]string) []Attachment {
	var out []Attachment
	for _, res := range created {
		for _, t := range tests {
			if t.ID != res.TestID {
				continue
			}
			if path, ok := evidence[t.CaseID]; ok {
				out = append(out, Attachment{ResultID: res.ID, CaseID: t.CaseID, Path: path})
			}
		}
	}
	return out
}
