// Package publish is the result-aggregation and publish-reconciliation
// engine: it collects per-test outcomes during a session, reconciles
// them against the state of the remote run(s), and emits an ordered
// result batch with partial-failure isolation.
package publish

import (
	"sort"

	"github.com/gotrail/gotrail/model"
)

// Aggregator accumulates result records across a session. One completed
// test fans out into one record per mapped case id; recording the same
// case id again replaces the earlier record (last-write-wins, so reruns
// report their most recent outcome).
type Aggregator struct {
	index   map[int]int
	records []model.Result
}

func NewAggregator() *Aggregator {
	return &Aggregator{index: make(map[int]int)}
}

// Record appends one result per case id. It never fails: an invalid
// status is a programming error in the caller, not a runtime condition.
func (a *Aggregator) Record(caseIDs []int, status model.StatusID, comment string, duration float64, defects, params string) {
	for _, id := range caseIDs {
		r := model.Result{
			CaseID:   id,
			Status:   status,
			Comment:  comment,
			Duration: duration,
			Defects:  defects,
			Params:   params,
		}
		if i, ok := a.index[id]; ok {
			a.records[i] = r
			continue
		}
		a.index[id] = len(a.records)
		a.records = append(a.records, r)
	}
}

// Len returns the number of distinct case ids recorded so far.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// CaseIDs returns the recorded case ids in ascending order.
func (a *Aggregator) CaseIDs() []int {
	ids := make([]int, 0, len(a.records))
	for id := range a.index {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Finalize returns all records whose case id is not excluded, sorted
// ascending by case id. The ordering is a published contract: the
// remote system diffs result history by case id order, so it must stay
// stable across reruns. Ordering by status was tried once and reverted,
// rerun batches must not reshuffle the displayed history.
func (a *Aggregator) Finalize(exclude map[int]struct{}) []model.Result {
	out := make([]model.Result, 0, len(a.records))
	for _, r := range a.records {
		if _, skip := exclude[r.CaseID]; skip {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out
}
