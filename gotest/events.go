// Package gotest executes `go test -json` sessions and folds the
// test2json event stream into per-test outcomes.
package gotest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Event is a single record of the `go test -json` stream.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// Outcome is the terminal result of one test.
type Outcome struct {
	Package string
	// Full test name including any subtest path
	Name string
	// Terminal action: pass, fail or skip
	Action string
	// Duration in seconds
	Elapsed float64
	// Accumulated test output
	Output string
}

// SplitParams splits a subtest path into the parent test name and the
// parametrized suffix, e.g. "TestSum/n=3" -> ("TestSum", "n=3").
func SplitParams(name string) (base, params string) {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

type testKey struct {
	pkg  string
	name string
}

// ParseStream folds a test2json event stream into outcomes, in order of
// test completion. Package-level events and lines that are not JSON
// records are skipped.
func ParseStream(r io.Reader) ([]Outcome, error) {
	var outcomes []Outcome
	output := make(map[testKey]*strings.Builder)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Test == "" {
			continue
		}
		key := testKey{pkg: ev.Package, name: ev.Test}
		switch ev.Action {
		case "output":
			b, ok := output[key]
			if !ok {
				b = &strings.Builder{}
				output[key] = b
			}
			b.WriteString(ev.Output)
		case "pass", "fail", "skip":
			out := Outcome{
				Package: ev.Package,
				Name:    ev.Test,
				Action:  ev.Action,
				Elapsed: ev.Elapsed,
			}
			if b, ok := output[key]; ok {
				out.Output = b.String()
				delete(output, key)
			}
			outcomes = append(outcomes, out)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read test event stream: %w", err)
	}
	return outcomes, nil
}

// ParseFile parses a saved `go test -json` stream from disk.
func ParseFile(path string) ([]Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test event file: %w", err)
	}
	return ParseStream(bytes.NewReader(data))
}
