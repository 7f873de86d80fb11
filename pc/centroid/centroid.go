// Package centroid provides an incremental mean accumulator over point
// attribute rows.
package centroid

// Accumulator keeps a running mean of fixed-width numeric rows.
// Sums are kept in float64 to avoid drift over large cells.
type Accumulator struct {
	sum []float64
	n   int
}

// New creates an Accumulator for rows of the given width.
func New(width int) *Accumulator {
	return &Accumulator{
		sum: make([]float64, width),
	}
}

// Add accumulates one row. len(row) must equal the accumulator width.
func (a *Accumulator) Add(row []float32) {
	for i, v := range row {
		a.sum[i] += float64(v)
	}
	a.n++
}

// Size returns the number of accumulated rows.
func (a *Accumulator) Size() int {
	return a.n
}

// Get writes the mean of the accumulated rows into out.
// out is left untouched if nothing has been accumulated.
func (a *Accumulator) Get(out []float32) {
	if a.n == 0 {
		return
	}
	inv := 1 / float64(a.n)
	for i := range out {
		out[i] = float32(a.sum[i] * inv)
	}
}

// Result returns the mean as a new slice, or nil if nothing has been
// accumulated.
func (a *Accumulator) Result() []float32 {
	if a.n == 0 {
		return nil
	}
	out := make([]float32, len(a.sum))
	a.Get(out)
	return out
}

// Reset clears the accumulator for reuse.
func (a *Accumulator) Reset() {
	for i := range a.sum {
		a.sum[i] = 0
	}
	a.n = 0
}
