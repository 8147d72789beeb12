// Package discovery enumerates yearly input files for one variable and
// scenario, dropping filesystem artifacts before any file is opened.
package discovery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// Exclusion reasons.
const (
	ReasonHidden     = "hidden or metadata companion"
	ReasonBackup     = "backup or temporary name"
	ReasonSystem     = "system file"
	ReasonDirectory  = "directory"
	ReasonEmpty      = "zero-byte file"
	ReasonNoYear     = "no year token"
	ReasonSuperseded = "superseded by a later release of the same year"
	ReasonFilter     = "variable or scenario mismatch"
	ReasonUnreadable = "unreadable entry"
)

// Filter selects candidate files.
type Filter struct {
	Variable string
	Scenario string
	// Pattern is a filepath.Match glob applied to base names. Empty means "*".
	Pattern string
}

// File is a candidate believed to hold one year of daily data.
type File struct {
	Path string `json:"path"`
	Year int    `json:"year"`
	Size int64  `json:"size"`
}

// Exclusion records a name that was dropped and why.
type Exclusion struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the ordered candidate list plus everything that was dropped.
type Result struct {
	Files    []File
	Excluded []Exclusion
}

// Years returns candidate years in order.
func (r Result) Years() []int {
	ys := make([]int, len(r.Files))
	for i, f := range r.Files {
		ys[i] = f.Year
	}
	return ys
}

// Discoverer enumerates input directories.
type Discoverer struct {
	logger *slog.Logger
}

// New creates a Discoverer.
func New(logger *slog.Logger) *Discoverer {
	return &Discoverer{logger: logger}
}

// Discover lists dir and returns candidate files ordered by the year embedded
// in their names. Read validation is left to the store builder. It fails with
// a *domain.DiscoveryError when nothing survives filtering.
func (d *Discoverer) Discover(dir string, f Filter) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("read input directory: %w", err)
	}
	pattern := f.Pattern
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return Result{}, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	var res Result
	byYear := make(map[int]File)
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)

		if reason, skip := artifactReason(name); skip {
			res.Excluded = append(res.Excluded, Exclusion{Path: path, Reason: reason})
			continue
		}
		if e.IsDir() {
			res.Excluded = append(res.Excluded, Exclusion{Path: path, Reason: ReasonDirectory})
			continue
		}
		if ok, _ := filepath.Match(pattern, name); !ok || !matchesFilter(name, f) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			d.logger.Warn("stat input file failed", "path", path, "error", err)
			res.Excluded = append(res.Excluded, Exclusion{Path: path, Reason: ReasonUnreadable})
			continue
		}
		if info.Size() == 0 {
			res.Excluded = append(res.Excluded, Exclusion{Path: path, Reason: ReasonEmpty})
			continue
		}
		year, ok := YearToken(name)
		if !ok {
			res.Excluded = append(res.Excluded, Exclusion{Path: path, Reason: ReasonNoYear})
			continue
		}

		cand := File{Path: path, Year: year, Size: info.Size()}
		if prev, dup := byYear[year]; dup {
			loser := prev
			if filepath.Base(prev.Path) > name {
				loser, cand = cand, prev
			}
			res.Excluded = append(res.Excluded, Exclusion{Path: loser.Path, Reason: ReasonSuperseded})
		}
		byYear[year] = cand
	}

	for _, file := range byYear {
		res.Files = append(res.Files, file)
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Year < res.Files[j].Year })
	sort.Slice(res.Excluded, func(i, j int) bool { return res.Excluded[i].Path < res.Excluded[j].Path })

	for _, ex := range res.Excluded {
		d.logger.Debug("excluded input", "path", ex.Path, "reason", ex.Reason)
	}
	if len(res.Files) == 0 {
		return res, &domain.DiscoveryError{Dir: dir, Variable: f.Variable, Scenario: f.Scenario, Excluded: len(res.Excluded)}
	}
	d.logger.Info("discovered input files",
		"variable", f.Variable, "scenario", f.Scenario,
		"files", len(res.Files), "excluded", len(res.Excluded),
		"first_year", res.Files[0].Year, "last_year", res.Files[len(res.Files)-1].Year)
	return res, nil
}

// artifactReason classifies names that are never data regardless of their
// extension.
func artifactReason(name string) (string, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "."):
		return ReasonHidden, true
	case strings.HasPrefix(name, "~"), strings.HasSuffix(name, "~"):
		return ReasonBackup, true
	case lower == "thumbs.db" || lower == "desktop.ini":
		return ReasonSystem, true
	}
	for _, marker := range []string{".corrupted", ".backup", ".bak", ".tmp", ".part"} {
		if strings.Contains(lower, marker) {
			return ReasonBackup, true
		}
	}
	return "", false
}

func matchesFilter(name string, f Filter) bool {
	tokens := tokens(name)
	if len(tokens) == 0 {
		return false
	}
	if f.Variable != "" && tokens[0] != f.Variable {
		return false
	}
	if f.Scenario == "" {
		return true
	}
	for _, t := range tokens[1:] {
		if t == f.Scenario {
			return true
		}
	}
	return false
}

func tokens(name string) []string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.FieldsFunc(stem, func(r rune) bool { return r == '_' || r == '-' })
}

// YearToken returns the last underscore- or hyphen-separated token of the
// extension-less name that is a 1 to 4 digit number. Unpadded years parse.
func YearToken(name string) (int, bool) {
	ts := tokens(name)
	for i := len(ts) - 1; i >= 0; i-- {
		t := ts[i]
		if len(t) == 0 || len(t) > 4 || strings.TrimLeft(t, "0123456789") != "" {
			continue
		}
		y, err := strconv.Atoi(t)
		if err != nil {
			continue
		}
		return y, true
	}
	return 0, false
}
