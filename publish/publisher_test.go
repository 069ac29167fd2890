package publish

import (
	"strings"
	"testing"

	"github.com/gotrail/gotrail/model"
	"github.com/gotrail/gotrail/testrail"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildComment_Truncation(t *testing.T) {
	long := strings.Repeat("a", commentSizeLimit+1000) + "TAIL"
	out := buildComment(model.Result{Comment: long}, "")

	require.Contains(t, out, truncationMarker)
	require.True(t, strings.HasSuffix(out, "TAIL"), "truncation must keep the tail of the log")
	// Head got cut: the kept text is exactly the size limit
	require.Less(t, len(out), len(long))
}

func TestBuildComment_NoTruncationUnderLimit(t *testing.T) {
	out := buildComment(model.Result{Comment: "short failure log"}, "")

	require.NotContains(t, out, truncationMarker)
	require.Contains(t, out, "short failure log")
}

func TestBuildComment_IndentsEveryLine(t *testing.T) {
	out := buildComment(model.Result{Comment: "line one\nline two"}, "")

	require.Contains(t, out, commentIndent+"line one\n"+commentIndent+"line two")
}

func TestBuildComment_Concatenation(t *testing.T) {
	r := model.Result{Comment: "log text", Params: "n=3"}
	out := buildComment(r, "nightly build")

	preamble := strings.Index(out, "nightly build")
	params := strings.Index(out, "# Parametrized test: #\nn=3")
	result := strings.Index(out, "# Test result: #")
	require.GreaterOrEqual(t, preamble, 0)
	require.Greater(t, params, preamble)
	require.Greater(t, result, params)
}

func TestBuildComment_EmptyLogKeepsPreamble(t *testing.T) {
	out := buildComment(model.Result{}, "nightly build")
	require.Equal(t, "nightly build\n", out)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0.3, "1s"},
		{1.0, "1s"},
		{4.6, "5s"},
		{59.4, "59s"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, formatElapsed(tt.seconds))
	}
}

func TestBuildEntry_ElapsedOmittedAtZero(t *testing.T) {
	p := &Publisher{opts: Options{Version: "1.2"}}

	entry := p.buildEntry(model.Result{CaseID: 3, Status: model.StatusPassed, Duration: 0})
	require.Empty(t, entry.Elapsed)
	require.Equal(t, "1.2", entry.Version)

	entry = p.buildEntry(model.Result{CaseID: 3, Status: model.StatusPassed, Duration: 0.3})
	require.Equal(t, "1s", entry.Elapsed)
}

func sessionPublisher(gw Gateway, agg *Aggregator, opts Options, evidence map[int]string) (*Publisher, *Reconciler) {
	rec := NewReconciler(gw, opts, zerolog.Nop())
	return NewPublisher(gw, agg, rec, evidence, opts, zerolog.Nop()), rec
}

func TestPublisher_OrderedBatch(t *testing.T) {
	gw := newFakeGateway()
	gw.runs[9] = &model.Run{ID: 9}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")
	agg.Record([]int{7}, model.StatusFailed, "boom", 2, "", "")

	pub, rec := sessionPublisher(gw, agg, Options{RunID: 9, PublishBlocked: true}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()

	batch, ok := gw.batches[9]
	require.True(t, ok)
	require.Len(t, batch.Results, 2)
	require.Equal(t, 7, batch.Results[0].CaseID)
	require.Equal(t, model.StatusFailed, batch.Results[0].StatusID)
	require.Equal(t, 42, batch.Results[1].CaseID)
	require.Equal(t, model.StatusPassed, batch.Results[1].StatusID)
}

func TestPublisher_BlockedExclusion(t *testing.T) {
	gw := newFakeGateway()
	gw.runs[9] = &model.Run{ID: 9}
	gw.tests[9] = []model.Test{
		{ID: 1, CaseID: 7, StatusID: model.StatusBlocked},
		{ID: 2, CaseID: 42, StatusID: model.StatusUntested},
	}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")
	agg.Record([]int{7}, model.StatusFailed, "", 1, "", "")

	pub, rec := sessionPublisher(gw, agg, Options{RunID: 9, PublishBlocked: false}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()

	batch := gw.batches[9]
	require.Len(t, batch.Results, 1)
	require.Equal(t, 42, batch.Results[0].CaseID)
}

func TestPublisher_PlanFansOutToOpenRuns(t *testing.T) {
	gw := newFakeGateway()
	gw.plans[5] = &model.Plan{
		ID: 5,
		Entries: []model.PlanEntry{
			{Runs: []model.Run{{ID: 11}, {ID: 12, IsCompleted: true}, {ID: 13}}},
		},
	}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")

	pub, rec := sessionPublisher(gw, agg, Options{PlanID: 5, PublishBlocked: true}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()

	require.Contains(t, gw.batches, 11)
	require.Contains(t, gw.batches, 13)
	require.NotContains(t, gw.batches, 12)
}

func TestPublisher_AttachesEvidenceForMatchedCase(t *testing.T) {
	gw := newFakeGateway()
	gw.runs[9] = &model.Run{ID: 9}
	gw.tests[9] = []model.Test{
		{ID: 201, CaseID: 7},
		{ID: 202, CaseID: 42},
	}
	gw.created[9] = []model.CreatedResult{
		{ID: 301, TestID: 201},
		{ID: 302, TestID: 202},
	}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")
	agg.Record([]int{7}, model.StatusFailed, "", 1, "", "")

	evidence := map[int]string{42: "screenshots/TestCheckout.png"}
	pub, rec := sessionPublisher(gw, agg, Options{RunID: 9, PublishBlocked: true}, evidence)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()

	require.Len(t, gw.attachments, 1)
	require.Equal(t, 302, gw.attachments[0].ResultID)
	require.Equal(t, "screenshots/TestCheckout.png", gw.attachments[0].Path)
}

func TestPublisher_ServiceErrorScopedToTarget(t *testing.T) {
	gw := newFakeGateway()
	gw.runs[9] = &model.Run{ID: 9}
	gw.resultsErr = &testrail.RemoteError{Op: "add_results_for_cases/9", Message: "This operation is not allowed"}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")

	pub, rec := sessionPublisher(gw, agg, Options{RunID: 9, PublishBlocked: true, CloseOnComplete: true}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	// Must not panic or abort the session; close still happens
	pub.Publish()

	require.Empty(t, gw.attachments)
	require.Equal(t, []int{9}, gw.closedRuns)
}

func TestPublisher_CloseOnCompletePlan(t *testing.T) {
	gw := newFakeGateway()
	gw.plans[5] = &model.Plan{ID: 5, Entries: []model.PlanEntry{{Runs: []model.Run{{ID: 11}}}}}

	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")

	pub, rec := sessionPublisher(gw, agg, Options{PlanID: 5, PublishBlocked: true, CloseOnComplete: true}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()

	require.Equal(t, []int{5}, gw.closedPlans)
	require.Empty(t, gw.closedRuns)
}

func TestPublisher_NoResultsPublishesNothing(t *testing.T) {
	gw := newFakeGateway()
	gw.runs[9] = &model.Run{ID: 9}

	pub, rec := sessionPublisher(gw, NewAggregator(), Options{RunID: 9, PublishBlocked: true}, nil)
	_, err := rec.Resolve(nil)
	require.NoError(t, err)

	pub.Publish()
	require.Empty(t, gw.batches)
}
