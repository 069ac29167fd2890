package cli

// This file assembles the session configuration from flags and
// environment.

import (
	"fmt"
	"time"

	"github.com/gotrail/gotrail/publish"
	"github.com/urfave/cli/v2"
)

type config struct {
	url     string
	user    string
	apiKey  string
	timeout time.Duration
	// Skip TLS verification
	insecure bool

	caseMap       string
	evidenceDir   string
	evidenceAsJPG bool

	opts publish.Options
}

func (a *App) buildConfig(ctx *cli.Context) (*config, error) {
	cfg := &config{
		url:           ctx.String("url"),
		user:          ctx.String("user"),
		apiKey:        ctx.String("api-key"),
		timeout:       ctx.Duration("timeout"),
		insecure:      ctx.Bool("insecure"),
		caseMap:       ctx.String("case-map"),
		evidenceDir:   ctx.String("evidence-dir"),
		evidenceAsJPG: ctx.Bool("evidence-as-jpg"),
		opts: publish.Options{
			ProjectID:       ctx.Int("project-id"),
			SuiteID:         ctx.Int("suite-id"),
			AssignUserID:    ctx.Int("assign-user-id"),
			IncludeAll:      ctx.Bool("include-all"),
			RunID:           ctx.Int("run-id"),
			PlanID:          ctx.Int("plan-id"),
			RunName:         ctx.String("run-name"),
			Description:     ctx.String("run-description"),
			MilestoneID:     ctx.Int("milestone-id"),
			Version:         ctx.String("version-tag"),
			CloseOnComplete: ctx.Bool("close-on-complete"),
			PublishBlocked:  !ctx.Bool("no-publish-blocked"),
			SkipMissing:     ctx.Bool("skip-missing"),
			CustomComment:   ctx.String("custom-comment"),
		},
	}

	if cfg.url == "" || cfg.user == "" || cfg.apiKey == "" {
		return nil, fmt.Errorf("TestRail connection requires --url, --user and --api-key (or TESTRAIL_URL, TESTRAIL_USER, TESTRAIL_PASSWORD)")
	}

	// Stamp new runs with the state of the working tree (non-fatal if
	// this is not a git checkout)
	if cfg.opts.Description == "" {
		if commit, branch, err := a.getGitInfo(); err == nil {
			cfg.opts.Description = fmt.Sprintf("Published by %s from %s@%s", AppName, branch, commit)
		}
	}

	return cfg, nil
}
