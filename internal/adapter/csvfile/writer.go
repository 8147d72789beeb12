// Package csvfile writes result tables as CSV and checks written files.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/climate-region-stats/internal/assemble"
)

// Writer writes tables under one output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// TablePath returns the per-variable output path.
func TablePath(dir, variable, scenario string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s_stats.csv", variable, scenario))
}

// WidePath returns the merged output path of a scenario.
func WidePath(dir, scenario string) string {
	return filepath.Join(dir, scenario+"_merged.csv")
}

// WriteTable writes t to TablePath and returns the path. The file is
// replaced atomically.
func (w *Writer) WriteTable(t *assemble.Table) (string, error) {
	path := TablePath(w.dir, t.Meta.Variable, t.Meta.Scenario)
	err := writeAtomic(path, func(out io.Writer) error { return EncodeTable(out, t) })
	if err != nil {
		return "", err
	}
	w.logger.Info("result table written", "path", path, "variable", t.Meta.Variable,
		"scenario", t.Meta.Scenario, "rows", len(t.Rows), "missing", t.Missing(), "absent", len(t.Absent))
	return path, nil
}

// WriteWide writes merged rows to WidePath and returns the path.
func (w *Writer) WriteWide(scenario string, rows []assemble.WideRow) (string, error) {
	path := WidePath(w.dir, scenario)
	if err := writeAtomic(path, func(out io.Writer) error { return EncodeWide(out, rows) }); err != nil {
		return "", err
	}
	w.logger.Info("merged table written", "path", path, "scenario", scenario, "rows", len(rows))
	return path, nil
}

// EncodeTable writes the header and rows of t. Statistics of missing rows
// are empty.
func EncodeTable(out io.Writer, t *assemble.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	rec := make([]string, 0, len(t.Columns)+9)
	for _, r := range t.Rows {
		rec = append(rec[:0], r.RegionID, r.RegionName, r.State, strconv.Itoa(r.Year), r.Scenario, r.Variable)
		for _, col := range t.Columns {
			v, ok := r.Stats[col]
			if r.Missing || !ok {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, formatFloat(v))
		}
		rec = append(rec, strconv.FormatBool(r.Missing), r.RunID, r.Processed.UTC().Format(time.RFC3339))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeWide writes merged rows under assemble.WideColumns.
func EncodeWide(out io.Writer, rows []assemble.WideRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(assemble.WideColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.CID2, strconv.Itoa(r.Year), r.Scenario, r.Name,
			optional(r.DaysAbove1in), optional(r.DaysAbove90F), optional(r.TmaxAvg),
			optional(r.AnnualMeanTemp), optional(r.AnnualTotalPrecip),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func writeAtomic(path string, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck // gone after a successful rename

	if err := encode(f); err != nil {
		f.Close() //nolint:errcheck // encode error wins
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}
