package cli

// This file orchestrates a publish session: resolve the target run(s),
// execute (or replay) the tests, aggregate outcomes and publish them.

import (
	"fmt"
	"os"

	"github.com/gotrail/gotrail/casemap"
	"github.com/gotrail/gotrail/evidence"
	"github.com/gotrail/gotrail/gotest"
	"github.com/gotrail/gotrail/model"
	"github.com/gotrail/gotrail/publish"
	"github.com/gotrail/gotrail/testrail"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	cfg, err := a.buildConfig(ctx)
	if err != nil {
		return err
	}
	mapping, err := a.loadMapping(cfg)
	if err != nil {
		return err
	}

	client := testrail.New(a.logger, cfg.url, cfg.user, cfg.apiKey, cfg.timeout, cfg.insecure)
	rec := publish.NewReconciler(client, cfg.opts, a.logger)
	a.reportTarget(cfg.opts)

	// Target selection happens before execution so that skip-missing
	// can keep absent tests from running at all.
	skipTests, err := rec.Resolve(items(mapping))
	if err != nil {
		a.logger.Warn().Err(err).Msg("Target resolution incomplete")
	}

	packages, extraArgs := splitRunArgs(ctx.Args().Slice())
	outcomes, exitCode, err := gotest.NewRunner(a.logger).Run(packages, extraArgs, skipTests)
	if err != nil {
		return err
	}

	a.publishOutcomes(cfg, client, rec, mapping, outcomes)

	// The session exit code is the test exit code; publishing failures
	// never change it.
	if exitCode != 0 {
		return cli.Exit(fmt.Sprintf("tests failed with exit code %d", exitCode), exitCode)
	}
	return nil
}

func (a *App) replay(ctx *cli.Context) error {
	cfg, err := a.buildConfig(ctx)
	if err != nil {
		return err
	}
	mapping, err := a.loadMapping(cfg)
	if err != nil {
		return err
	}
	outcomes, err := gotest.ParseFile(ctx.String("input"))
	if err != nil {
		return err
	}

	client := testrail.New(a.logger, cfg.url, cfg.user, cfg.apiKey, cfg.timeout, cfg.insecure)
	rec := publish.NewReconciler(client, cfg.opts, a.logger)
	a.reportTarget(cfg.opts)
	if _, err := rec.Resolve(items(mapping)); err != nil {
		a.logger.Warn().Err(err).Msg("Target resolution incomplete")
	}

	a.publishOutcomes(cfg, client, rec, mapping, outcomes)
	return nil
}

// publishOutcomes folds the outcomes into the aggregator, captures
// evidence and runs the publish phase.
func (a *App) publishOutcomes(cfg *config, client *testrail.Client, rec *publish.Reconciler, mapping *casemap.Mapping, outcomes []gotest.Outcome) {
	provider := evidence.NewDirProvider(a.logger, cfg.evidenceDir, cfg.evidenceAsJPG)

	agg := publish.NewAggregator()
	store := evidence.NewStore()
	for _, out := range outcomes {
		entry, ok := mapping.Lookup(out.Name)
		if !ok || len(entry.CaseIDs) == 0 {
			continue
		}
		status, ok := model.OutcomeStatus(out.Action)
		if !ok {
			continue
		}
		_, params := gotest.SplitParams(out.Name)
		agg.Record(entry.CaseIDs, status, out.Output, out.Elapsed, casemap.JoinDefects(entry.Defects), params)
		if path, ok := provider.Capture(out.Name); ok {
			store.Put(entry.CaseIDs, path)
		}
	}

	renderSummary(agg.Finalize(nil), store)

	pub := publish.NewPublisher(client, agg, rec, store.Snapshot(), cfg.opts, a.logger)
	pub.Publish()
}

func (a *App) loadMapping(cfg *config) (*casemap.Mapping, error) {
	if _, err := os.Stat(cfg.caseMap); os.IsNotExist(err) {
		a.logger.Debug().Str("file", cfg.caseMap).Msg("No case-mapping file, relying on test name suffixes")
		return casemap.Empty(), nil
	}
	return casemap.Load(a.logger, cfg.caseMap)
}

// reportTarget announces the selected target kind before execution.
func (a *App) reportTarget(opts publish.Options) {
	switch {
	case opts.PlanID != 0:
		a.logger.Info().Int("plan_id", opts.PlanID).Msg("Existing testplan selected")
	case opts.RunID != 0:
		a.logger.Info().Int("run_id", opts.RunID).Msg("Existing testrun selected")
	default:
		a.logger.Info().Msg("A new testrun will be created")
	}
}

func items(mapping *casemap.Mapping) []publish.Item {
	entries := mapping.Items()
	out := make([]publish.Item, 0, len(entries))
	for _, e := range entries {
		out = append(out, publish.Item{Name: e.Test, CaseIDs: e.CaseIDs})
	}
	return out
}

// splitRunArgs separates package patterns from go test arguments; a
// "--" separator forces everything after it through to go test.
func splitRunArgs(args []string) (packages, extra []string) {
	packages = args
	for i, arg := range args {
		if arg == "--" {
			packages = args[:i]
			extra = args[i+1:]
			break
		}
	}
	if len(packages) == 0 {
		packages = []string{"./..."}
	}
	return packages, extra
}
