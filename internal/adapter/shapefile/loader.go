// Package shapefile loads region boundaries from ESRI shapefiles.
package shapefile

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// Candidate attribute columns, in order of preference.
var (
	idColumns    = []string{"GEOID", "FIPS", "GEOID20", "GEOID10", "CNTY_FIPS", "ID"}
	nameColumns  = []string{"NAME", "NAMELSAD", "NAME20", "COUNTY", "CNTY_NAME"}
	stateColumns = []string{"STUSPS", "STATE_ABBR", "STATE_NAME", "STATEFP", "STATE"}
)

// Options controls how regions are read.
type Options struct {
	// Field overrides; empty means detect.
	IDField    string
	NameField  string
	StateField string
	// States keeps only regions in these postal abbreviations when set.
	States []string
	// TargetCRS is the proj4 definition regions are transformed into.
	// Empty keeps source coordinates.
	TargetCRS string
}

// Loader reads region sets.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads every polygon record of the shapefile at path into a RegionSet
// named after the file.
func (l *Loader) Load(path string, opts Options) (domain.RegionSet, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return domain.RegionSet{}, fmt.Errorf("open shapefile: %w", err)
	}
	defer d.Close()

	trans, err := l.transform(d, path, opts.TargetCRS)
	if err != nil {
		return domain.RegionSet{}, err
	}

	cols, err := requestedColumns(opts, fieldNames(d))
	if err != nil {
		return domain.RegionSet{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	keep := make(map[string]bool, len(opts.States))
	for _, s := range opts.States {
		keep[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	var regions []domain.Region
	row := 0
	for {
		g, fields, more := d.DecodeRowFields(cols...)
		if !more {
			break
		}
		row++
		r, err := regionFromRow(g, fields, opts)
		if err != nil {
			return domain.RegionSet{}, fmt.Errorf("%s row %d: %w", filepath.Base(path), row, err)
		}
		if len(keep) > 0 && !keep[r.State] {
			continue
		}
		if trans != nil {
			gg, err := r.Geometry.Transform(trans)
			if err != nil {
				return domain.RegionSet{}, fmt.Errorf("region %s: reproject: %w", r.ID, err)
			}
			p, ok := gg.(geom.Polygonal)
			if !ok {
				return domain.RegionSet{}, fmt.Errorf("region %s: reprojected geometry is %T", r.ID, gg)
			}
			r.Geometry = p
		}
		regions = append(regions, r)
	}
	if err := d.Error(); err != nil {
		return domain.RegionSet{}, fmt.Errorf("read shapefile: %w", err)
	}
	if len(regions) == 0 {
		return domain.RegionSet{}, fmt.Errorf("no regions in %s after filtering", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	set, err := domain.NewRegionSet(name, regions)
	if err != nil {
		return domain.RegionSet{}, err
	}
	l.logger.Info("loaded regions", "path", path, "regions", set.Len(), "rows", row)
	return set, nil
}

func (l *Loader) transform(d *shp.Decoder, path, target string) (proj.Transformer, error) {
	if target == "" {
		return nil, nil
	}
	src, err := d.SR()
	if err != nil {
		l.logger.Warn("shapefile has no usable projection, assuming grid coordinates", "path", path, "error", err)
		return nil, nil
	}
	dst, err := proj.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target projection: %w", err)
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("projection transform: %w", err)
	}
	return t, nil
}

// fieldNames returns the lower-cased attribute names of the file.
func fieldNames(d *shp.Decoder) map[string]bool {
	names := make(map[string]bool)
	for _, f := range d.Fields() {
		names[strings.ToLower(strings.TrimSpace(f.String()))] = true
	}
	return names
}

// requestedColumns lists the override and candidate columns present in the
// file. The decoder stops at the first absent column, so only present ones are
// requested. An absent override is an error.
func requestedColumns(opts Options, present map[string]bool) ([]string, error) {
	for _, o := range []string{opts.IDField, opts.NameField, opts.StateField} {
		if o != "" && !present[strings.ToLower(o)] {
			return nil, fmt.Errorf("field %q not in shapefile", o)
		}
	}
	seen := make(map[string]bool)
	var cols []string
	for _, group := range [][]string{{opts.IDField, opts.NameField, opts.StateField}, idColumns, nameColumns, stateColumns} {
		for _, c := range group {
			if c != "" && !seen[c] && present[strings.ToLower(c)] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols, nil
}

func regionFromRow(g geom.Geom, fields map[string]string, opts Options) (domain.Region, error) {
	poly, ok := g.(geom.Polygonal)
	if !ok {
		return domain.Region{}, fmt.Errorf("geometry %T is not a polygon", g)
	}
	id := pick(fields, opts.IDField, idColumns)
	if id == "" {
		return domain.Region{}, errors.New("no identifier column")
	}
	name := pick(fields, opts.NameField, nameColumns)
	if name == "" {
		name = id
	}
	return domain.Region{
		ID:       id,
		Name:     name,
		State:    StateAbbrev(pick(fields, opts.StateField, stateColumns)),
		Geometry: poly,
	}, nil
}

// pick returns the first non-empty value among the override and candidates.
func pick(fields map[string]string, override string, candidates []string) string {
	if override != "" {
		return clean(fields[override])
	}
	for _, c := range candidates {
		if v := clean(fields[c]); v != "" {
			return v
		}
	}
	return ""
}

// clean strips the NUL padding of DBF text fields.
func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// StateAbbrev normalizes a FIPS code, full state name or abbreviation to a
// postal abbreviation. Unknown values are returned unchanged.
func StateAbbrev(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 2 && s[0] >= '0' && s[0] <= '9' {
		if len(s) == 1 {
			s = "0" + s
		}
		if ab, ok := stateFIPS[s]; ok {
			return ab
		}
	}
	if ab, ok := stateNames[strings.ToLower(s)]; ok {
		return ab
	}
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	return s
}
