package store

import (
	"path/filepath"
	"sort"

	"github.com/couchcryptid/climate-region-stats/internal/discovery"
)

// Status is the outcome of one input file.
type Status string

const (
	StatusIngested Status = "ingested"
	StatusSkipped  Status = "skipped"
	StatusFlagged  Status = "flagged"
)

// Entry is the provenance of one input file.
type Entry struct {
	Path         string `json:"path"`
	FilenameYear int    `json:"filename_year"`
	MetadataYear int    `json:"metadata_year,omitempty"`
	Days         int    `json:"days"`
	Status       Status `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// Chunk is the checksum record of one persisted chunk.
type Chunk struct {
	Key      string `json:"key"`
	Bytes    int    `json:"bytes"`
	Checksum uint64 `json:"xxhash64"`
}

// Manifest describes what went into a store and what was left out.
type Manifest struct {
	Variable    string                `json:"variable"`
	Scenario    string                `json:"scenario"`
	Entries     []Entry               `json:"entries"`
	Excluded    []discovery.Exclusion `json:"excluded"`
	FilledYears []int                 `json:"filled_years"`
	Chunks      []Chunk               `json:"chunks"`
}

// Summary counts manifest entries by outcome.
type Summary struct {
	Ingested    int   `json:"ingested"`
	Skipped     int   `json:"skipped"`
	Flagged     int   `json:"flagged"`
	Excluded    int   `json:"excluded"`
	FilledYears []int `json:"filled_years"`
	Chunks      int   `json:"chunks"`
	ChunkBytes  int64 `json:"chunk_bytes"`
}

// Summary returns outcome counts.
func (m *Manifest) Summary() Summary {
	s := Summary{Excluded: len(m.Excluded), FilledYears: m.FilledYears, Chunks: len(m.Chunks)}
	for _, e := range m.Entries {
		switch e.Status {
		case StatusIngested:
			s.Ingested++
		case StatusSkipped:
			s.Skipped++
		case StatusFlagged:
			s.Flagged++
		}
	}
	for _, c := range m.Chunks {
		s.ChunkBytes += int64(c.Bytes)
	}
	return s
}

// ByStatus returns the entries with the given status in year order.
func (m *Manifest) ByStatus(st Status) []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}

func (m *Manifest) add(e Entry) { m.Entries = append(m.Entries, e) }

func (m *Manifest) sort() {
	sort.SliceStable(m.Entries, func(i, j int) bool {
		if m.Entries[i].FilenameYear != m.Entries[j].FilenameYear {
			return m.Entries[i].FilenameYear < m.Entries[j].FilenameYear
		}
		return m.Entries[i].Path < m.Entries[j].Path
	})
	sort.Ints(m.FilledYears)
}

// ReadManifest loads manifest.json from a store directory.
func ReadManifest(dir string) (*Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(dir, manifestFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
