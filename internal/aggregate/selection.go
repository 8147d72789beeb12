package aggregate

import (
	"fmt"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// DefaultRatio is the region to grid-cell ratio at which bulk masking takes
// over from per-region clipping.
const DefaultRatio = 0.002

// Selection is the strategy decision of one run, kept for diagnostics.
type Selection struct {
	Strategy  domain.Strategy `json:"strategy"`
	Ratio     float64         `json:"ratio"`
	Threshold float64         `json:"threshold"`
	Regions   int             `json:"regions"`
	Cells     int             `json:"cells"`
	Reason    string          `json:"reason"`
}

// Select chooses the strategy for regions aggregated over a grid of cells.
// A non-auto override wins but the ratio is still recorded.
func Select(regions, cells int, threshold float64, override domain.Strategy) Selection {
	if threshold <= 0 {
		threshold = DefaultRatio
	}
	s := Selection{Regions: regions, Cells: cells, Threshold: threshold}
	if cells > 0 {
		s.Ratio = float64(regions) / float64(cells)
	}

	switch override {
	case domain.StrategyGeometryClip, domain.StrategyBulkMask:
		s.Strategy = override
		s.Reason = fmt.Sprintf("strategy forced to %s (ratio %.6f)", override, s.Ratio)
		return s
	}
	if s.Ratio >= threshold {
		s.Strategy = domain.StrategyBulkMask
		s.Reason = fmt.Sprintf("%d regions over %d cells: ratio %.6f >= %.6f, one grouped pass per year",
			regions, cells, s.Ratio, threshold)
	} else {
		s.Strategy = domain.StrategyGeometryClip
		s.Reason = fmt.Sprintf("%d regions over %d cells: ratio %.6f < %.6f, per-region extraction",
			regions, cells, s.Ratio, threshold)
	}
	return s
}
