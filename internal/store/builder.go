// Package store builds and reads the chunked, compressed time-series cube of
// one variable and scenario.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// YearData is one decoded input file.
type YearData struct {
	Variable  string
	Units     string
	Calendar  domain.Calendar
	TimeUnits domain.TimeUnits
	Times     []float64
	Grid      domain.Grid
	// Values holds (time, row, col) samples in C order. Fill values are NaN.
	Values []float32
}

// Opener decodes one yearly input file. Any error marks the file corrupt.
type Opener interface {
	Open(path, variable string) (*YearData, error)
}

// Options controls one build.
type Options struct {
	Variable  string
	Scenario  string
	Codec     Codec
	ChunkTime int
	ChunkTile int
	// Strict fails the build on any provenance mismatch. Otherwise the file
	// is flagged and its year is filled with NaN.
	Strict   bool
	Workers  int
	Excluded []discovery.Exclusion
}

// OptionsFor derives build options for one variable from the run config.
func OptionsFor(cfg domain.RunConfig, variable string, excluded []discovery.Exclusion) (Options, error) {
	codec, err := NewCodec(cfg.Codec, cfg.CodecLevel)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Variable:  variable,
		Scenario:  cfg.Scenario,
		Codec:     codec,
		ChunkTime: cfg.ChunkTime,
		ChunkTile: cfg.ChunkTile,
		Strict:    cfg.StrictProvenance,
		Workers:   cfg.Workers,
		Excluded:  excluded,
	}, nil
}

// Path returns the store directory of a variable and scenario.
func Path(storeDir, variable, scenario string) string {
	return filepath.Join(storeDir, variable+"_"+scenario)
}

// Builder persists yearly files as one chunked cube.
type Builder struct {
	opener Opener
	logger *slog.Logger
}

// NewBuilder creates a Builder reading inputs through opener.
func NewBuilder(opener Opener, logger *slog.Logger) *Builder {
	return &Builder{opener: opener, logger: logger}
}

// Build ingests files, which must be ordered by year with one file per year,
// and publishes the store at dest. Nothing is published on error.
func (b *Builder) Build(ctx context.Context, files []discovery.File, dest string, opts Options) (*Manifest, error) {
	if len(files) == 0 {
		return nil, errors.New("no input files to build")
	}
	if opts.Codec == nil {
		opts.Codec = noopCodec{}
	}
	if opts.ChunkTime <= 0 || opts.ChunkTile <= 0 {
		return nil, fmt.Errorf("invalid chunk shape time=%d tile=%d", opts.ChunkTime, opts.ChunkTile)
	}
	opts.Workers = max(opts.Workers, 1)

	tmp := fmt.Sprintf("%s.tmp-%s", dest, uuid.NewString())
	if err := os.MkdirAll(filepath.Join(tmp, opts.Variable), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(tmp)
		}
	}()

	st := &build{
		opts:     opts,
		logger:   b.logger.With("variable", opts.Variable, "scenario", opts.Scenario),
		opener:   b.opener,
		dir:      tmp,
		manifest: &Manifest{Variable: opts.Variable, Scenario: opts.Scenario, Excluded: opts.Excluded},
	}
	if err := st.run(ctx, files); err != nil {
		return nil, err
	}
	if err := st.finish(ctx); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("remove previous store: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return nil, fmt.Errorf("publish store: %w", err)
	}
	published = true

	s := st.manifest.Summary()
	st.logger.Info("store published", "path", dest,
		"ingested", s.Ingested, "skipped", s.Skipped, "flagged", s.Flagged,
		"filled_years", len(s.FilledYears), "chunks", s.Chunks, "bytes", s.ChunkBytes)
	return st.manifest, nil
}

// build is the state of one Build call.
type build struct {
	opts     Options
	logger   *slog.Logger
	opener   Opener
	dir      string
	manifest *Manifest

	writer   *chunkWriter
	grid     domain.Grid
	calendar domain.Calendar
	units    string
	spans    []domain.YearSpan
	// pending holds leading years to fill once the calendar is known.
	pending    []int
	mismatches []error
}

func (st *build) run(ctx context.Context, files []discovery.File) error {
	byYear := make(map[int]discovery.File, len(files))
	for i, f := range files {
		if i > 0 && f.Year <= files[i-1].Year {
			return fmt.Errorf("input files out of year order at %s", f.Path)
		}
		byYear[f.Year] = f
	}
	first, last := files[0].Year, files[len(files)-1].Year

	for year := first; year <= last; year++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := byYear[year]
		if !ok {
			st.logger.Warn("no input file for year, filling with NaN", "year", year)
			if err := st.missing(ctx, year); err != nil {
				return err
			}
			continue
		}
		if err := st.ingest(ctx, f); err != nil {
			return err
		}
	}

	if len(st.mismatches) > 0 && st.opts.Strict {
		return errors.Join(st.mismatches...)
	}
	if st.writer == nil {
		return fmt.Errorf("none of %d input files could be ingested", len(files))
	}
	return nil
}

func (st *build) ingest(ctx context.Context, f discovery.File) error {
	data, err := st.opener.Open(f.Path, st.opts.Variable)
	if err != nil {
		return st.skip(ctx, f, &domain.CorruptInputError{Path: f.Path, Err: err})
	}
	if len(data.Values) != len(data.Times)*data.Grid.Cells() {
		return st.skip(ctx, f, &domain.CorruptInputError{Path: f.Path,
			Err: fmt.Errorf("%d values for %d steps on %s", len(data.Values), len(data.Times), data.Grid)})
	}
	conv, err := domain.NormalizeUnits(st.opts.Variable, data.Units)
	if err != nil {
		return st.skip(ctx, f, &domain.CorruptInputError{Path: f.Path, Err: err})
	}

	spans := data.TimeUnits.SplitYears(data.Times)
	if len(spans) == 0 {
		return st.skip(ctx, f, &domain.CorruptInputError{Path: f.Path, Err: errors.New("empty time axis")})
	}
	mismatch := &domain.ProvenanceMismatchError{Path: f.Path, FilenameYear: f.Year, MetadataYear: spans[0].Year}
	switch {
	case len(spans) > 1:
		mismatch.Reason = fmt.Sprintf("time axis covers years %d to %d", spans[0].Year, spans[len(spans)-1].Year)
	case spans[0].Year != f.Year:
	case st.writer != nil && !st.grid.SameGeometry(data.Grid):
		mismatch.Reason = fmt.Sprintf("grid %s differs from %s", data.Grid, st.grid)
	case st.writer != nil && data.Calendar != st.calendar:
		mismatch.Reason = fmt.Sprintf("calendar %s differs from %s", data.Calendar, st.calendar)
	default:
		mismatch = nil
	}
	if mismatch != nil {
		return st.flag(ctx, f, mismatch)
	}

	n, err := data.TimeUnits.CheckDaily(data.Times, f.Year)
	if err != nil {
		return &domain.TemporalGapError{
			Path:     f.Path,
			Year:     f.Year,
			Expected: data.Calendar.DaysInYear(f.Year),
			Got:      n,
			Detail:   err.Error(),
		}
	}
	if st.failing() {
		return nil
	}

	if st.writer == nil {
		if err := st.start(ctx, data, conv); err != nil {
			return err
		}
	}
	conv.ApplyAll(data.Values)
	if err := st.append(ctx, f.Year, data.Values, n, false); err != nil {
		return err
	}
	st.manifest.add(Entry{Path: f.Path, FilenameYear: f.Year, MetadataYear: spans[0].Year, Days: n, Status: StatusIngested})
	st.logger.Debug("ingested input", "path", f.Path, "year", f.Year, "days", n)
	return nil
}

// start fixes the cube geometry from the first ingestible file.
func (st *build) start(ctx context.Context, data *YearData, conv domain.Conversion) error {
	st.grid = data.Grid
	st.calendar = data.Calendar
	st.units = conv.To
	tile := st.opts.ChunkTile
	st.writer = &chunkWriter{
		dir:     filepath.Join(st.dir, st.opts.Variable),
		grid:    data.Grid,
		chunkT:  st.opts.ChunkTime,
		tileR:   min(tile, data.Grid.Rows),
		tileC:   min(tile, data.Grid.Cols),
		codec:   st.opts.Codec,
		workers: st.opts.Workers,
		buf:     make([]float32, st.opts.ChunkTime*data.Grid.Cells()),
	}
	pending := st.pending
	st.pending = nil
	for _, y := range pending {
		if err := st.missing(ctx, y); err != nil {
			return err
		}
	}
	return nil
}

func (st *build) skip(ctx context.Context, f discovery.File, err *domain.CorruptInputError) error {
	st.logger.Warn("skipping unreadable input", "path", f.Path, "year", f.Year, "error", err.Err)
	st.manifest.add(Entry{Path: f.Path, FilenameYear: f.Year, Status: StatusSkipped, Reason: err.Error()})
	return st.missing(ctx, f.Year)
}

func (st *build) flag(ctx context.Context, f discovery.File, err *domain.ProvenanceMismatchError) error {
	st.logger.Warn("provenance mismatch", "path", f.Path, "year", f.Year,
		"metadata_year", err.MetadataYear, "reason", err.Reason, "strict", st.opts.Strict)
	st.manifest.add(Entry{Path: f.Path, FilenameYear: f.Year, MetadataYear: err.MetadataYear,
		Status: StatusFlagged, Reason: err.Error()})
	if st.opts.Strict {
		st.mismatches = append(st.mismatches, err)
		return nil
	}
	return st.missing(ctx, f.Year)
}

func (st *build) failing() bool { return st.opts.Strict && len(st.mismatches) > 0 }

// missing places a NaN-filled year on the time axis.
func (st *build) missing(ctx context.Context, year int) error {
	if st.failing() {
		return nil
	}
	if st.writer == nil {
		st.pending = append(st.pending, year)
		return nil
	}
	st.manifest.FilledYears = append(st.manifest.FilledYears, year)
	return st.append(ctx, year, nil, st.calendar.DaysInYear(year), true)
}

func (st *build) append(ctx context.Context, year int, values []float32, days int, filled bool) error {
	start := 0
	if n := len(st.spans); n > 0 {
		start = st.spans[n-1].End()
	}
	if err := st.writer.write(ctx, values, days); err != nil {
		return err
	}
	st.spans = append(st.spans, domain.YearSpan{Year: year, Start: start, Days: days, Filled: filled})
	return nil
}

// finish flushes the last time chunk and writes the metadata documents.
func (st *build) finish(ctx context.Context) error {
	if err := st.writer.flush(ctx); err != nil {
		return err
	}
	times := st.spans[len(st.spans)-1].End()
	meta := newArrayMeta(times, st.grid, st.opts.ChunkTime, st.opts.ChunkTile, st.opts.Codec)
	attrs := CubeAttrs{
		Variable:   st.opts.Variable,
		Scenario:   st.opts.Scenario,
		Units:      st.units,
		Calendar:   st.calendar,
		Grid:       st.grid,
		Years:      st.spans,
		Dimensions: []string{"time", "lat", "lon"},
	}
	st.manifest.Chunks = st.writer.chunks
	st.manifest.sort()

	docs := []struct {
		path string
		v    any
	}{
		{filepath.Join(st.dir, groupFile), map[string]int{"zarr_format": zarrFormat}},
		{filepath.Join(st.dir, attrsFile), attrs},
		{filepath.Join(st.dir, st.opts.Variable, arrayFile), meta},
		{filepath.Join(st.dir, manifestFile), st.manifest},
	}
	for _, d := range docs {
		if err := writeJSON(d.path, d.v); err != nil {
			return err
		}
	}
	return nil
}

// chunkWriter buffers one time chunk of the full grid and writes it out as
// spatial tiles once full.
type chunkWriter struct {
	dir          string
	grid         domain.Grid
	chunkT       int
	tileR, tileC int
	codec        Codec
	workers      int

	buf    []float32
	used   int
	tIndex int
	chunks []Chunk
}

// write appends days time steps. nil values appends NaN steps.
func (w *chunkWriter) write(ctx context.Context, values []float32, days int) error {
	cells := w.grid.Cells()
	nan := float32(math.NaN())
	for off := 0; off < days; {
		n := min(days-off, w.chunkT-w.used)
		dst := w.buf[w.used*cells : (w.used+n)*cells]
		if values == nil {
			for i := range dst {
				dst[i] = nan
			}
		} else {
			copy(dst, values[off*cells:(off+n)*cells])
		}
		w.used += n
		off += n
		if w.used == w.chunkT {
			if err := w.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *chunkWriter) flush(ctx context.Context) error {
	if w.used == 0 {
		return nil
	}
	cells := w.grid.Cells()
	nan := float32(math.NaN())
	for i := w.used * cells; i < len(w.buf); i++ {
		w.buf[i] = nan
	}

	nr, nc := ceilDiv(w.grid.Rows, w.tileR), ceilDiv(w.grid.Cols, w.tileC)
	out := make([]Chunk, nr*nc)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for r := 0; r < nr; r++ {
		for c := 0; c < nc; c++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				chunk, err := w.writeTile(r, c)
				if err != nil {
					return err
				}
				out[r*nc+c] = chunk
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	w.chunks = append(w.chunks, out...)
	w.tIndex++
	w.used = 0
	return nil
}

func (w *chunkWriter) writeTile(r, c int) (Chunk, error) {
	rows, cols := w.grid.Rows, w.grid.Cols
	cells := rows * cols
	vals := nanSlice(w.chunkT * w.tileR * w.tileC)
	for t := 0; t < w.chunkT; t++ {
		for rr := 0; rr < w.tileR; rr++ {
			row := r*w.tileR + rr
			if row >= rows {
				break
			}
			c0 := c * w.tileC
			n := min(w.tileC, cols-c0)
			src := t*cells + row*cols + c0
			dst := (t*w.tileR + rr) * w.tileC
			copy(vals[dst:dst+n], w.buf[src:src+n])
		}
	}
	comp, err := w.codec.Compress(encodeFloat32s(vals))
	if err != nil {
		return Chunk{}, err
	}
	key := chunkKey(w.tIndex, r, c)
	if err := os.WriteFile(filepath.Join(w.dir, key), comp, 0o644); err != nil {
		return Chunk{}, fmt.Errorf("write chunk %s: %w", key, err)
	}
	return Chunk{Key: key, Bytes: len(comp), Checksum: xxhash.Sum64(comp)}, nil
}
