package domain

import (
	"fmt"
	"strings"
)

// DiscoveryError reports that no candidate input file survived filtering.
type DiscoveryError struct {
	Dir      string
	Variable string
	Scenario string
	Excluded int
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no input files for variable %q scenario %q in %s (%d excluded)",
		e.Variable, e.Scenario, e.Dir, e.Excluded)
}

// ProvenanceMismatchError reports a file whose metadata disagrees with the
// identity derived from its name, or whose grid differs from the cube's.
type ProvenanceMismatchError struct {
	Path         string
	FilenameYear int
	MetadataYear int
	Reason       string
}

func (e *ProvenanceMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("provenance mismatch in %s (filename year %d, metadata year %d): %s",
			e.Path, e.FilenameYear, e.MetadataYear, e.Reason)
	}
	return fmt.Sprintf("provenance mismatch in %s: filename year %d, metadata year %d",
		e.Path, e.FilenameYear, e.MetadataYear)
}

// CorruptInputError reports a file that could not be read as structured
// data. Builders skip such files.
type CorruptInputError struct {
	Path string
	Err  error
}

func (e *CorruptInputError) Error() string {
	return fmt.Sprintf("corrupt input %s: %v", e.Path, e.Err)
}

func (e *CorruptInputError) Unwrap() error { return e.Err }

// TemporalGapError reports a year whose daily coverage is incomplete.
type TemporalGapError struct {
	Path     string
	Year     int
	Expected int
	Got      int
	Detail   string
}

func (e *TemporalGapError) Error() string {
	msg := fmt.Sprintf("temporal gap in %s: year %d has %d of %d days", e.Path, e.Year, e.Got, e.Expected)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// NoCoverageError lists regions left without any grid cell.
type NoCoverageError struct {
	RegionSet string
	RegionIDs []string
}

func (e *NoCoverageError) Error() string {
	return fmt.Sprintf("region set %q: %d region(s) cover no grid cell: %s",
		e.RegionSet, len(e.RegionIDs), strings.Join(e.RegionIDs, ", "))
}

// StageError records which pipeline stage failed.
type StageError struct {
	Stage    string
	Variable string
	Err      error
}

func (e *StageError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Variable, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
