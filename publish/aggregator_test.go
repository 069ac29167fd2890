package publish

import (
	"testing"

	"github.com/gotrail/gotrail/model"
	"github.com/stretchr/testify/require"
)

func TestAggregator_FinalizeSortsByCaseID(t *testing.T) {
	agg := NewAggregator()
	agg.Record([]int{42}, model.StatusPassed, "", 1, "", "")
	agg.Record([]int{7}, model.StatusFailed, "", 1, "", "")
	agg.Record([]int{19}, model.StatusBlocked, "", 0, "", "")

	out := agg.Finalize(nil)
	require.Len(t, out, 3)
	require.Equal(t, 7, out[0].CaseID)
	require.Equal(t, 19, out[1].CaseID)
	require.Equal(t, 42, out[2].CaseID)

	// Ordering follows case id regardless of status interleaving
	require.Equal(t, model.StatusFailed, out[0].Status)
	require.Equal(t, model.StatusBlocked, out[1].Status)
	require.Equal(t, model.StatusPassed, out[2].Status)
}

func TestAggregator_FanOut(t *testing.T) {
	agg := NewAggregator()
	agg.Record([]int{3, 1, 2}, model.StatusPassed, "log", 2.5, "PF-1", "")

	out := agg.Finalize(nil)
	require.Len(t, out, 3)
	for i, want := range []int{1, 2, 3} {
		require.Equal(t, want, out[i].CaseID)
		require.Equal(t, "log", out[i].Comment)
		require.Equal(t, "PF-1", out[i].Defects)
	}
}

func TestAggregator_LastWriteWins(t *testing.T) {
	agg := NewAggregator()
	agg.Record([]int{7}, model.StatusFailed, "first attempt", 3, "", "")
	agg.Record([]int{7}, model.StatusPassed, "rerun", 2, "", "")

	out := agg.Finalize(nil)
	require.Len(t, out, 1)
	require.Equal(t, model.StatusPassed, out[0].Status)
	require.Equal(t, "rerun", out[0].Comment)
	require.Equal(t, 2.0, out[0].Duration)
}

func TestAggregator_FinalizeExcludesExactly(t *testing.T) {
	agg := NewAggregator()
	agg.Record([]int{1, 2, 3, 4}, model.StatusPassed, "", 1, "", "")

	out := agg.Finalize(map[int]struct{}{2: {}, 4: {}, 99: {}})
	require.Len(t, out, 2)
	require.Equal(t, 1, out[0].CaseID)
	require.Equal(t, 3, out[1].CaseID)
}

func TestAggregator_CaseIDs(t *testing.T) {
	agg := NewAggregator()
	require.Zero(t, agg.Len())

	agg.Record([]int{9, 4}, model.StatusPassed, "", 0, "", "")
	agg.Record([]int{4}, model.StatusFailed, "", 0, "", "")
	require.Equal(t, 2, agg.Len())
	require.Equal(t, []int{4, 9}, agg.CaseIDs())
}
