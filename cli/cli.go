package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "gotrail"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Publish go test results to TestRail",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				// Credentials may live in a .env file next to the tests
				_ = godotenv.Load()
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run go test and publish the results",
		ArgsUsage: "[packages] [-- go test args]",
		Action:    app.run,
		Flags:     append(connectionFlags(), sessionFlags()...),
		Description: `Run go test -json for the given packages (default ./...), map the
executed tests to TestRail case ids via the case-mapping file (or a
_C<digits> test name suffix), and publish the outcomes as a batch.

Arguments after -- are passed to go test unchanged.

Examples:
  gotrail run --project-id 4 ./...
  gotrail run --run-id 117 --skip-missing ./pkg/checkout -- -count=1
  gotrail run --plan-id 93 --close-on-complete ./...`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "replay",
		Usage:  "Publish results from a saved go test -json stream",
		Action: app.replay,
		Flags: append(append(connectionFlags(), sessionFlags()...),
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to a saved go test -json output file",
				Required: true,
			}),
	})
	return app
}

func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "TestRail base URL (as used in the browser)",
			EnvVars: []string{"TESTRAIL_URL"},
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "TestRail user (email)",
			EnvVars: []string{"TESTRAIL_USER"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "TestRail API key or password",
			EnvVars: []string{"TESTRAIL_PASSWORD"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "HTTP timeout for TestRail requests",
			Value: 10 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
	}
}

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "case-map",
			Usage: "YAML file mapping test names to case ids",
			Value: "testrail.yml",
		},
		&cli.IntFlag{
			Name:  "project-id",
			Usage: "Project id used when creating a new run",
		},
		&cli.IntFlag{
			Name:  "suite-id",
			Usage: "Suite id used when creating a new run",
		},
		&cli.IntFlag{
			Name:  "assign-user-id",
			Usage: "User id a newly created run is assigned to",
		},
		&cli.BoolFlag{
			Name:  "include-all",
			Usage: "Include all suite cases in a newly created run",
		},
		&cli.IntFlag{
			Name:  "run-id",
			Usage: "Existing run id to publish to",
		},
		&cli.IntFlag{
			Name:  "plan-id",
			Usage: "Existing plan id whose open runs receive the results",
		},
		&cli.StringFlag{
			Name:  "run-name",
			Usage: "Name for a newly created run (default: timestamped)",
		},
		&cli.StringFlag{
			Name:  "run-description",
			Usage: "Description for a newly created run",
		},
		&cli.IntFlag{
			Name:  "milestone-id",
			Usage: "Milestone id for a newly created run",
		},
		&cli.StringFlag{
			Name:  "version-tag",
			Usage: "Version string stamped on every published result",
		},
		&cli.BoolFlag{
			Name:  "close-on-complete",
			Usage: "Close the run (or plan) after publishing",
		},
		&cli.BoolFlag{
			Name:  "no-publish-blocked",
			Usage: "Exclude cases currently blocked in the run",
		},
		&cli.BoolFlag{
			Name:  "skip-missing",
			Usage: "Skip tests whose cases are absent from the configured run",
		},
		&cli.StringFlag{
			Name:  "custom-comment",
			Usage: "Preamble prepended to every published comment",
		},
		&cli.StringFlag{
			Name:  "evidence-dir",
			Usage: "Directory scanned for per-test evidence files",
			Value: "screenshots",
		},
		&cli.BoolFlag{
			Name:  "evidence-as-jpg",
			Usage: "Convert PNG evidence to JPG before upload",
		},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
