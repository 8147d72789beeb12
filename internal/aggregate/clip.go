package aggregate

import (
	"context"
	"fmt"
)

// geometryClip reads each region's bounding window separately. Units are
// regions.
type geometryClip struct{}

func (geometryClip) units(p *plan) int { return len(p.members) }

func (geometryClip) run(ctx context.Context, p *plan, region int) error {
	cells := p.members[region]
	if len(cells) == 0 {
		for y := range p.spans {
			p.out[region][y] = p.record(region, y, nil)
		}
		return nil
	}

	w := p.raster.BoundingWindow(cells)
	cols := p.raster.Grid.Cols
	local := make([]int, len(cells))
	for i, c := range cells {
		local[i] = (c/cols-w.R0)*w.Cols() + (c%cols - w.C0)
	}
	plane := w.Rows() * w.Cols()

	for y, span := range p.spans {
		w.T0, w.T1 = span.Start, span.End()
		vals, err := p.src.ReadWindow(ctx, w)
		if err != nil {
			return fmt.Errorf("region %s year %d: %w", p.regions.Regions[region].ID, span.Year, err)
		}
		acc := newAccumulator(span.Days)
		for d := 0; d < span.Days; d++ {
			base := d * plane
			for _, li := range local {
				acc.add(d, vals[base+li])
			}
		}
		p.out[region][y] = p.record(region, y, acc.means())
	}
	return nil
}
