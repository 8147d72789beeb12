package domain

import "fmt"

// YearSpan locates one calendar year on a cube's time axis. Filled spans
// were never ingested and hold only NaN.
type YearSpan struct {
	Year   int  `json:"year"`
	Start  int  `json:"start"`
	Days   int  `json:"days"`
	Filled bool `json:"filled,omitempty"`
}

// End returns the exclusive end index of the span.
func (s YearSpan) End() int { return s.Start + s.Days }

// Window selects a half-open (time, row, column) block of a cube.
type Window struct {
	T0, T1 int
	R0, R1 int
	C0, C1 int
}

// Times, Rows and Cols return the window extent along each axis.
func (w Window) Times() int { return w.T1 - w.T0 }
func (w Window) Rows() int  { return w.R1 - w.R0 }
func (w Window) Cols() int  { return w.C1 - w.C0 }

// Len returns the number of values in the window.
func (w Window) Len() int { return w.Times() * w.Rows() * w.Cols() }

// Validate checks the window against a cube extent.
func (w Window) Validate(times int, g Grid) error {
	if w.T0 < 0 || w.T1 > times || w.T0 >= w.T1 ||
		w.R0 < 0 || w.R1 > g.Rows || w.R0 >= w.R1 ||
		w.C0 < 0 || w.C1 > g.Cols || w.C0 >= w.C1 {
		return fmt.Errorf("window t[%d,%d) r[%d,%d) c[%d,%d) outside cube %dx%dx%d",
			w.T0, w.T1, w.R0, w.R1, w.C0, w.C1, times, g.Rows, g.Cols)
	}
	return nil
}
