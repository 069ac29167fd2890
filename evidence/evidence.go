// Package evidence locates per-test artifact files (screenshots,
// profiles) to attach to published results.
package evidence

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"
)

// Provider resolves a completed test to an evidence file. A test with
// no evidence yields ok=false; provider failures degrade to "no
// evidence" and are never fatal.
type Provider interface {
	Capture(testName string) (path string, ok bool)
}

// Known evidence extensions, in lookup priority order.
var extensions = []string{".png", ".jpg", ".jpeg", ".pb.gz"}

// DirProvider scans a directory for files named after the test.
// Subtest slashes in the name are flattened to underscores.
type DirProvider struct {
	logger zerolog.Logger
	dir    string
	asJPG  bool
}

// NewDirProvider creates a provider over dir. When asJPG is set, PNG
// evidence is converted to JPG before upload.
func NewDirProvider(logger zerolog.Logger, dir string, asJPG bool) *DirProvider {
	return &DirProvider{logger: logger, dir: dir, asJPG: asJPG}
}

func sanitize(testName string) string {
	return strings.ReplaceAll(testName, "/", "_")
}

func (p *DirProvider) Capture(testName string) (string, bool) {
	base := filepath.Join(p.dir, sanitize(testName))
	for _, ext := range extensions {
		path := base + ext
		if _, err := os.Stat(path); err != nil {
			continue
		}
		switch ext {
		case ".png":
			if p.asJPG {
				jpgPath, err := ConvertPNGToJPG(path)
				if err != nil {
					p.logger.Warn().Err(err).Str("file", path).Msg("Failed to convert screenshot, attaching PNG")
					return path, true
				}
				return jpgPath, true
			}
		case ".pb.gz":
			if err := validateProfile(path); err != nil {
				p.logger.Warn().Err(err).Str("file", path).Msg("Skipping unreadable profile evidence")
				return "", false
			}
		}
		return path, true
	}
	return "", false
}

// ConvertPNGToJPG converts a PNG screenshot to JPG next to the
// original and returns the new path.
func ConvertPNGToJPG(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	jpgPath := strings.TrimSuffix(path, ".png") + ".jpg"
	out, err := os.Create(jpgPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, nil); err != nil {
		return "", fmt.Errorf("encode %s: %w", jpgPath, err)
	}
	return jpgPath, nil
}

// validateProfile checks that a pprof profile parses before it is
// offered as evidence.
func validateProfile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := profile.Parse(f); err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}
	return nil
}

// Store maps case ids to captured evidence paths. It is populated
// during the execution phase and consumed once at publish time; entries
// with no matching remote test are silently dropped.
type Store struct {
	paths map[int]string
}

func NewStore() *Store {
	return &Store{paths: make(map[int]string)}
}

// Put registers the evidence path for every given case id.
func (s *Store) Put(caseIDs []int, path string) {
	for _, id := range caseIDs {
		s.paths[id] = path
	}
}

// Get returns the evidence path for a case id.
func (s *Store) Get(caseID int) (string, bool) {
	p, ok := s.paths[caseID]
	return p, ok
}

// Len returns the number of cases with evidence.
func (s *Store) Len() int {
	return len(s.paths)
}

// Snapshot returns a copy of the case-to-path mapping.
func (s *Store) Snapshot() map[int]string {
	out := make(map[int]string, len(s.paths))
	for k, v := range s.paths {
		out[k] = v
	}
	return out
}
