package migrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is one versioned schema change
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Label identifies the migration in logs and errors, e.g. 002_create_sync_runs
func (m Migration) Label() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

var (
	fileNamePattern  = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.sql$`)
	upMarkerPattern  = regexp.MustCompile(`^--\s*\+migrate\s+Up\s*$`)
	directivePattern = regexp.MustCompile(`^--\s*\+migrate\b`)
)

// Parse reads a migration from its file name and content.
// Everything after the "-- +migrate Up" marker is the statement body.
func Parse(fileName string, content []byte) (Migration, error) {
	m := fileNamePattern.FindStringSubmatch(fileName)
	if m == nil {
		return Migration{}, fmt.Errorf("invalid migration file name %q (want NNN_name.sql)", fileName)
	}
	version, _ := strconv.Atoi(m[1])
	if version == 0 {
		return Migration{}, fmt.Errorf("migration %s: versions start at 001", fileName)
	}

	lines := strings.Split(string(content), "\n")
	start := -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if upMarkerPattern.MatchString(line) {
			start = i + 1
			break
		}
		if directivePattern.MatchString(line) {
			return Migration{}, fmt.Errorf("migration %s: unsupported directive %q", fileName, line)
		}
	}
	if start < 0 {
		return Migration{}, fmt.Errorf("migration %s: missing \"-- +migrate Up\" marker", fileName)
	}

	body := strings.TrimSpace(strings.Join(lines[start:], "\n"))
	if body == "" {
		return Migration{}, fmt.Errorf("migration %s: no statements after the Up marker", fileName)
	}

	sum := sha256.Sum256([]byte(body))
	return Migration{
		Version:  version,
		Name:     m[2],
		SQL:      body,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Load parses every NNN_name.sql file at the root of fsys. Other files are ignored.
// Versions must run 1..n without gaps or duplicates.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !fileNamePattern.MatchString(entry.Name()) {
			continue
		}
		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		m, err := Parse(entry.Name(), content)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})

	for i, m := range out {
		want := i + 1
		switch {
		case m.Version < want:
			return nil, fmt.Errorf("duplicate migration version %03d", m.Version)
		case m.Version > want:
			return nil, fmt.Errorf("missing migration version %03d before %s", want, m.Label())
		}
	}

	return out, nil
}
