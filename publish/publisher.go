package publish

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gotrail/gotrail/model"
	"github.com/gotrail/gotrail/testrail"
	"github.com/rs/zerolog"
)

// Comments larger than this are truncated from the head, keeping the
// tail: the end of a failure log is the part worth reading.
const commentSizeLimit = 4000000

const truncationMarker = "Log truncated\n...\n"

// commentIndent is prepended to every log line so the remote markup
// engine does not reinterpret the text.
const commentIndent = "    "

// Publisher drives the reconciler and gateway to emit the finalized
// batch, attach evidence and optionally close the target. Failures are
// reported and scoped: a rejected batch abandons that target only, a
// rejected attachment abandons that attachment only.
type Publisher struct {
	gw       Gateway
	agg      *Aggregator
	rec      *Reconciler
	opts     Options
	evidence map[int]string
	logger   zerolog.Logger
}

func NewPublisher(gw Gateway, agg *Aggregator, rec *Reconciler, evidence map[int]string, opts Options, logger zerolog.Logger) *Publisher {
	if evidence == nil {
		evidence = map[int]string{}
	}
	return &Publisher{gw: gw, agg: agg, rec: rec, opts: opts, evidence: evidence, logger: logger}
}

// Publish sends the session's results to every target run. It has no
// return value: every outcome is reported through diagnostics and never
// alters the host test session's exit status.
func (p *Publisher) Publish() {
	p.logger.Info().Msg("Start publishing")
	defer p.logger.Info().Msg("End publishing")

	if p.agg.Len() == 0 {
		p.logger.Info().Msg("No results collected, nothing to publish")
		return
	}
	p.logger.Info().Ints("case_ids", p.agg.CaseIDs()).Msg("Testcases to publish")

	targets, err := p.rec.Targets()
	if err != nil || len(targets) == 0 {
		p.logger.Info().Msg("No data published")
		return
	}
	if len(targets) > 1 {
		p.logger.Info().Ints("run_ids", targets).Msg("Testruns to update")
	}

	for _, runID := range targets {
		p.publishRun(runID)
	}

	if p.opts.CloseOnComplete {
		p.closeTarget()
	}
}

// publishRun emits the batch for one run. A service-level rejection
// ceases processing for this target only.
func (p *Publisher) publishRun(runID int) {
	exclude := map[int]struct{}{}
	if !p.opts.PublishBlocked {
		p.logger.Info().Msg(`Option "Don't publish blocked testcases" activated`)
		var err error
		exclude, err = p.rec.BlockedCases(runID)
		if err != nil {
			p.logger.Warn().Err(err).Int("run_id", runID).Msg("Failed to resolve blocked testcases, publishing all")
			exclude = map[int]struct{}{}
		}
	}
	if p.opts.IncludeAll {
		p.logger.Info().Msg(`Option "Include all testcases from test suite for test run" activated`)
	}

	results := p.agg.Finalize(exclude)
	batch := model.AddResultsRequest{Results: make([]model.ResultEntry, 0, len(results))}
	for _, r := range results {
		batch.Results = append(batch.Results, p.buildEntry(r))
	}

	created, err := p.gw.AddResults(runID, batch)
	if err != nil {
		var remote *testrail.RemoteError
		if errors.As(err, &remote) {
			p.logger.Error().Str("reason", remote.Message).Int("run_id", runID).Msg("Testcases not published")
		} else {
			p.logger.Error().Err(err).Int("run_id", runID).Msg("Testcases not published")
		}
		return
	}
	p.logger.Info().Int("run_id", runID).Int("results", len(created)).Msg("Results published")

	p.attachEvidence(runID, created)
}

// attachEvidence uploads evidence for each created result that has
// some. Attachment failures are reported per item and do not cancel
// the rest of the loop.
func (p *Publisher) attachEvidence(runID int, created []model.CreatedResult) {
	if len(p.evidence) == 0 {
		return
	}
	tests, err := p.gw.GetTests(runID)
	if err != nil {
		p.logger.Warn().Err(err).Int("run_id", runID).Msg("Failed to fetch tests, skipping attachments")
		return
	}
	for _, att := range p.rec.ResolveAttachments(tests, created, p.evidence) {
		if err := p.gw.AddAttachment(att.ResultID, att.Path); err != nil {
			p.logger.Warn().Err(err).
				Str("file", att.Path).
				Int("result_id", att.ResultID).
				Msg("Unable to attach file to result")
			continue
		}
		p.logger.Info().
			Str("file", att.Path).
			Int("case_id", att.CaseID).
			Msg("Evidence attached")
	}
}

// closeTarget closes the run or plan that drove this publish. Closing
// is best-effort terminal housekeeping: a failure is reported, not
// fatal.
func (p *Publisher) closeTarget() {
	switch sel, id := p.rec.Selected(); sel {
	case SelectionRun:
		if err := p.gw.CloseRun(id); err != nil {
			p.logger.Warn().Err(err).Int("run_id", id).Msg("Failed to close test run")
			return
		}
		p.logger.Info().Int("run_id", id).Msg("Test run closed")
	case SelectionPlan:
		if err := p.gw.ClosePlan(id); err != nil {
			p.logger.Warn().Err(err).Int("plan_id", id).Msg("Failed to close test plan")
			return
		}
		p.logger.Info().Int("plan_id", id).Msg("Test plan closed")
	}
}

// buildEntry renders one finalized record as a wire entry.
func (p *Publisher) buildEntry(r model.Result) model.ResultEntry {
	entry := model.ResultEntry{
		StatusID: r.Status,
		CaseID:   r.CaseID,
		Defects:  r.Defects,
		Version:  p.opts.Version,
		Comment:  buildComment(r, p.opts.CustomComment),
	}
	if r.Duration != 0 {
		entry.Elapsed = formatElapsed(r.Duration)
	}
	return entry
}

// buildComment concatenates the optional custom preamble, the
// parametrization block and the truncated, re-indented test log.
func buildComment(r model.Result, custom string) string {
	var b strings.Builder
	if custom != "" {
		b.WriteString(custom)
		b.WriteString("\n")
	}
	if r.Params != "" {
		b.WriteString("# Parametrized test: #\n")
		b.WriteString(r.Params)
		b.WriteString("\n\n")
	}
	if r.Comment != "" {
		b.WriteString("# Test result: #\n")
		comment := r.Comment
		if len(comment) > commentSizeLimit {
			b.WriteString(truncationMarker)
			comment = comment[len(comment)-commentSizeLimit:]
		}
		b.WriteString(commentIndent)
		b.WriteString(strings.ReplaceAll(comment, "\n", "\n"+commentIndent))
	}
	return b.String()
}

// formatElapsed renders a duration as whole seconds. TestRail does not
// take sub-second durations, so anything under a second becomes 1s
// rather than rounding down to an invalid 0.
func formatElapsed(seconds float64) string {
	if seconds < 1 {
		return "1s"
	}
	return fmt.Sprintf("%ds", int(math.Round(seconds)))
}
