package domain

// Unassigned marks a raster cell that belongs to no region.
const Unassigned int32 = -1

// MembershipRaster maps every grid cell to at most one region. Cells holds
// region positions within the originating RegionSet, row-major.
type MembershipRaster struct {
	Grid      Grid
	Cells     []int32
	RegionIDs []string
	Counts    []int
}

// NewMembershipRaster allocates an all-unassigned raster for the grid.
func NewMembershipRaster(g Grid, regionIDs []string) *MembershipRaster {
	cells := make([]int32, g.Cells())
	for i := range cells {
		cells[i] = Unassigned
	}
	return &MembershipRaster{
		Grid:      g,
		Cells:     cells,
		RegionIDs: regionIDs,
		Counts:    make([]int, len(regionIDs)),
	}
}

// At returns the region position at (r, c) or Unassigned.
func (m *MembershipRaster) At(r, c int) int32 { return m.Cells[m.Grid.Index(r, c)] }

// Members returns the flat indices of cells assigned to region idx, ascending.
func (m *MembershipRaster) Members(idx int) []int {
	out := make([]int, 0, m.Counts[idx])
	for i, v := range m.Cells {
		if int(v) == idx {
			out = append(out, i)
		}
	}
	return out
}

// MemberLists returns Members for every region in one pass.
func (m *MembershipRaster) MemberLists() [][]int {
	lists := make([][]int, len(m.RegionIDs))
	for i := range lists {
		lists[i] = make([]int, 0, m.Counts[i])
	}
	for i, v := range m.Cells {
		if v != Unassigned {
			lists[v] = append(lists[v], i)
		}
	}
	return lists
}

// BoundingWindow returns the smallest spatial window covering the given
// flat cell indices. The time range is left empty.
func (m *MembershipRaster) BoundingWindow(cells []int) Window {
	if len(cells) == 0 {
		return Window{}
	}
	cols := m.Grid.Cols
	w := Window{R0: cells[0] / cols, R1: cells[0]/cols + 1, C0: cells[0] % cols, C1: cells[0]%cols + 1}
	for _, i := range cells[1:] {
		r, c := i/cols, i%cols
		w.R0 = min(w.R0, r)
		w.R1 = max(w.R1, r+1)
		w.C0 = min(w.C0, c)
		w.C1 = max(w.C1, c+1)
	}
	return w
}

// Assigned returns the number of assigned cells.
func (m *MembershipRaster) Assigned() int {
	n := 0
	for _, c := range m.Counts {
		n += c
	}
	return n
}
