package cli

// This file renders the pre-publish summary table of collected
// results.

import (
	"fmt"
	"os"

	"github.com/gotrail/gotrail/evidence"
	"github.com/gotrail/gotrail/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func renderSummary(results []model.Result, store *evidence.Store) {
	if len(results) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"CASE", "STATUS", "ELAPSED", "DEFECTS", "EVIDENCE"})

	for _, r := range results {
		ev := ""
		if _, ok := store.Get(r.CaseID); ok {
			ev = "yes"
		}
		t.AppendRow(table.Row{
			r.CaseID,
			colorStatus(r.Status),
			fmt.Sprintf("%.2fs", r.Duration),
			r.Defects,
			ev,
		})
	}
	t.Render()
}

func colorStatus(s model.StatusID) string {
	switch s {
	case model.StatusPassed:
		return text.FgGreen.Sprint(s)
	case model.StatusFailed:
		return text.FgRed.Sprint(s)
	case model.StatusBlocked:
		return text.FgYellow.Sprint(s)
	}
	return s.String()
}
