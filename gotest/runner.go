package gotest

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// Runner executes `go test -json` for a set of packages.
type Runner struct {
	logger zerolog.Logger
	// Overridable for tests; defaults to "go"
	goBin string
}

func NewRunner(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger, goBin: "go"}
}

// SkipPattern builds the -skip regexp matching exactly the given test
// names.
func SkipPattern(names []string) string {
	if len(names) == 0 {
		return ""
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return fmt.Sprintf("^(%s)$", strings.Join(quoted, "|"))
}

// Run executes the test session and returns the folded outcomes plus
// the exit code of the go test command. Test failures are an expected
// non-zero exit, not an error; only failures to execute the command at
// all are returned as errors.
func (r *Runner) Run(packages, extraArgs, skipTests []string) ([]Outcome, int, error) {
	args := []string{"test", "-json"}
	args = append(args, packages...)
	if pattern := SkipPattern(skipTests); pattern != "" {
		args = append(args, "-skip", pattern)
	}
	args = append(args, extraArgs...)

	cmd := exec.Command(r.goBin, args...)
	cmd.Stderr = os.Stderr

	r.logger.Debug().
		Str("command", shellescape.QuoteCommand(append([]string{r.goBin}, args...))).
		Msg("Starting test execution")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, fmt.Errorf("pipe test output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, 0, fmt.Errorf("start go test: %w", err)
	}

	outcomes, parseErr := ParseStream(io.TeeReader(stdout, os.Stdout))

	err = cmd.Wait()
	if parseErr != nil {
		return nil, 0, parseErr
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			r.logger.Info().
				Int("exit_code", exitErr.ExitCode()).
				Msg("Tests completed with failures")
			return outcomes, exitErr.ExitCode(), nil
		}
		return nil, 0, fmt.Errorf("execute go test: %w", err)
	}

	r.logger.Info().Msg("Tests completed successfully")
	return outcomes, 0, nil
}
