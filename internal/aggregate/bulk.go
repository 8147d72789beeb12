package aggregate

import (
	"context"
	"fmt"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// bulkDays bounds how many days of the full grid one read holds.
const bulkDays = 32

// bulkMask reads full spatial slices and groups cells by the raster. Units
// are years.
type bulkMask struct{}

func (bulkMask) units(p *plan) int { return len(p.spans) }

func (bulkMask) run(ctx context.Context, p *plan, year int) error {
	span := p.spans[year]
	g := p.raster.Grid
	cells := g.Cells()

	accs := make([]*accumulator, len(p.members))
	for i := range accs {
		accs[i] = newAccumulator(span.Days)
	}

	for d0 := 0; d0 < span.Days; d0 += bulkDays {
		d1 := min(d0+bulkDays, span.Days)
		w := domain.Window{T0: span.Start + d0, T1: span.Start + d1, R0: 0, R1: g.Rows, C0: 0, C1: g.Cols}
		vals, err := p.src.ReadWindow(ctx, w)
		if err != nil {
			return fmt.Errorf("year %d: %w", span.Year, err)
		}
		for d := d0; d < d1; d++ {
			base := (d - d0) * cells
			for i, owner := range p.raster.Cells {
				if owner != domain.Unassigned {
					accs[owner].add(d, vals[base+i])
				}
			}
		}
	}

	for region, acc := range accs {
		p.out[region][year] = p.record(region, year, acc.means())
	}
	return nil
}
