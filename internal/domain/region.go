package domain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/ctessum/geom"
)

// Region is one aggregation boundary, typically a county.
type Region struct {
	ID       string
	Name     string
	State    string
	Geometry geom.Polygonal
}

// DisplayName renders "Name, ST" when the state is known.
func (r Region) DisplayName() string {
	if r.State == "" {
		return r.Name
	}
	return r.Name + ", " + r.State
}

// RegionSet is an ordered, identifier-unique collection of regions.
type RegionSet struct {
	Name    string
	Regions []Region
}

// NewRegionSet sorts regions by identifier and rejects blank or duplicate
// identifiers and missing geometries.
func NewRegionSet(name string, regions []Region) (RegionSet, error) {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, r := range sorted {
		if r.ID == "" {
			return RegionSet{}, errors.New("region with empty identifier")
		}
		if r.Geometry == nil {
			return RegionSet{}, fmt.Errorf("region %s has no geometry", r.ID)
		}
		if i > 0 && sorted[i-1].ID == r.ID {
			return RegionSet{}, fmt.Errorf("duplicate region identifier %s", r.ID)
		}
	}
	return RegionSet{Name: name, Regions: sorted}, nil
}

// Len returns the number of regions.
func (s RegionSet) Len() int { return len(s.Regions) }

// Index returns the position of the region with the given identifier.
func (s RegionSet) Index(id string) (int, bool) {
	i := sort.Search(len(s.Regions), func(i int) bool { return s.Regions[i].ID >= id })
	if i < len(s.Regions) && s.Regions[i].ID == id {
		return i, true
	}
	return 0, false
}

// IDs returns region identifiers in set order.
func (s RegionSet) IDs() []string {
	ids := make([]string, len(s.Regions))
	for i, r := range s.Regions {
		ids[i] = r.ID
	}
	return ids
}

// Fingerprint hashes identifiers and vertex coordinates so that two sets
// with the same geometry share a raster cache entry.
func (s RegionSet) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, r := range s.Regions {
		_, _ = h.WriteString(r.ID)
		_, _ = h.Write([]byte{0})
		for _, poly := range r.Geometry.Polygons() {
			for _, ring := range poly {
				for _, p := range ring {
					binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.X))
					_, _ = h.Write(buf[:])
					binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Y))
					_, _ = h.Write(buf[:])
				}
				_, _ = h.Write([]byte{1})
			}
		}
	}
	return h.Sum64()
}
