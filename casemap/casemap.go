// Package casemap maps locally discovered test names to TestRail case
// and defect ids. Mappings come from a YAML file and, for tests named
// with a _C<digits> suffix, from the test name itself.
package casemap

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Mapping file keys. "testrail" is a deprecated alias for "cases" kept
// for files written against the old marker vocabulary; resolving it
// logs a deprecation warning once per load.
const (
	keyCases   = "cases"
	keyDefects = "defects"
	keyLegacy  = "testrail"
)

var markerAliases = map[string]struct {
	canonical  string
	deprecated bool
}{
	keyCases:   {canonical: keyCases},
	keyDefects: {canonical: keyDefects},
	keyLegacy:  {canonical: keyCases, deprecated: true},
}

var (
	caseIDPattern = regexp.MustCompile(`([0-9]+)$`)
	suffixPattern = regexp.MustCompile(`_C([0-9]+)$`)
)

// ParseCaseID extracts the numeric case id from an annotated id such as
// "C1234". An id without trailing digits is malformed.
func ParseCaseID(s string) (int, error) {
	m := caseIDPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("malformed case id %q: no trailing digits", s)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("malformed case id %q: %w", s, err)
	}
	return id, nil
}

// JoinDefects normalizes a defect id list into the comma-joined form
// the results endpoint takes.
func JoinDefects(ids []string) string {
	return strings.Join(ids, ", ")
}

// Entry is the mapping of one test to its case and defect ids.
type Entry struct {
	Test    string
	CaseIDs []int
	Defects []string
}

// Mapping is the full test-to-case mapping for a session.
type Mapping struct {
	entries map[string]Entry
}

type mappingFile struct {
	Tests map[string]map[string][]string `yaml:"tests"`
}

// Load reads a mapping file. A malformed case id is a hard error: a
// wrong numeric id must never be published silently.
func Load(logger zerolog.Logger, path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case mapping: %w", err)
	}

	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse case mapping %s: %w", path, err)
	}

	m := &Mapping{entries: make(map[string]Entry, len(file.Tests))}
	deprecationLogged := false
	for name, markers := range file.Tests {
		entry := Entry{Test: name}
		for key, values := range markers {
			alias, ok := markerAliases[key]
			if !ok {
				return nil, fmt.Errorf("case mapping %s: unknown key %q for test %s", path, key, name)
			}
			if alias.deprecated && !deprecationLogged {
				logger.Warn().
					Str("key", key).
					Str("replacement", alias.canonical).
					Msgf("The %q mapping key is deprecated and will be removed", key)
				deprecationLogged = true
			}
			switch alias.canonical {
			case keyCases:
				for _, v := range values {
					id, err := ParseCaseID(v)
					if err != nil {
						return nil, fmt.Errorf("case mapping %s, test %s: %w", path, name, err)
					}
					entry.CaseIDs = append(entry.CaseIDs, id)
				}
			case keyDefects:
				entry.Defects = append(entry.Defects, values...)
			}
		}
		m.entries[name] = entry
	}
	return m, nil
}

// Empty returns a mapping with no entries; implicit _C<digits> suffix
// lookups still resolve.
func Empty() *Mapping {
	return &Mapping{entries: map[string]Entry{}}
}

// Lookup resolves a test name to its mapping entry. Subtest paths fall
// back to their parent test, and a _C<digits> suffix on the test name
// maps implicitly to that case id.
func (m *Mapping) Lookup(testName string) (Entry, bool) {
	if e, ok := m.entries[testName]; ok {
		return e, true
	}
	base := testName
	if i := strings.IndexByte(base, '/'); i >= 0 {
		base = base[:i]
		if e, ok := m.entries[base]; ok {
			return e, true
		}
	}
	if sm := suffixPattern.FindStringSubmatch(base); sm != nil {
		id, err := strconv.Atoi(sm[1])
		if err == nil {
			return Entry{Test: base, CaseIDs: []int{id}}, true
		}
	}
	return Entry{}, false
}

// Items returns all file-declared entries sorted by test name.
func (m *Mapping) Items() []Entry {
	items := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		items = append(items, e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Test < items[j].Test })
	return items
}
