package shapefile

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// wgs84 is the .prj text written next to generated shapefiles.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

type countyRecord struct {
	geom.Polygon
	GEOID  string
	NAME   string
	STUSPS string
}

// Write stores single-polygon regions as a county-style shapefile with a
// WGS84 projection file.
func Write(path string, regions []domain.Region) error {
	e, err := shp.NewEncoder(path, countyRecord{})
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	for _, r := range regions {
		polys := r.Geometry.Polygons()
		if len(polys) != 1 {
			e.Close()
			return fmt.Errorf("region %s has %d polygons, want 1", r.ID, len(polys))
		}
		if err := e.Encode(countyRecord{Polygon: polys[0], GEOID: r.ID, NAME: r.Name, STUSPS: r.State}); err != nil {
			e.Close()
			return fmt.Errorf("encode region %s: %w", r.ID, err)
		}
	}
	e.Close()

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if err := os.WriteFile(prj, []byte(wgs84), 0o644); err != nil {
		return fmt.Errorf("write projection: %w", err)
	}
	return nil
}
