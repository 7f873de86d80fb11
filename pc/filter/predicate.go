package filter

import (
	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc"
)

// PointPredicate reports whether a point should be kept.
type PointPredicate func(p mat.Vec3) bool

// PredicateFilter keeps the points passing Pred in a single pass.
// Points with non-finite coordinates are always dropped.
type PredicateFilter struct {
	Pred PointPredicate

	// Negative inverts the predicate.
	Negative bool

	// ExtractRemovedIndices enables recording of the dropped point indices,
	// readable through RemovedIndices after a Filter or FilterIndices call.
	ExtractRemovedIndices bool

	removed []int
}

// NewPredicate creates a PredicateFilter keeping the points for which pred
// returns true.
func NewPredicate(pred PointPredicate) *PredicateFilter {
	return &PredicateFilter{Pred: pred}
}

func (f *PredicateFilter) keep(p mat.Vec3) bool {
	if !pc.IsFinite(p) {
		return false
	}
	return f.Pred(p) != f.Negative
}

// FilterIndices selects the points of pp passing the predicate.
// A nil indices selects all points. It returns the kept original indices
// and, if ExtractRemovedIndices is set, the dropped ones.
func (f *PredicateFilter) FilterIndices(pp *pc.PointCloud, indices []int) ([]int, []int, error) {
	f.removed = nil
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, nil, err
	}
	var selected, removed []int
	record := func(i int) {
		if f.keep(it.Vec3At(i)) {
			selected = append(selected, i)
		} else if f.ExtractRemovedIndices {
			removed = append(removed, i)
		}
	}
	if indices == nil {
		for i := 0; i < pp.Points; i++ {
			record(i)
		}
	} else {
		for _, i := range indices {
			record(i)
		}
	}
	f.removed = removed
	return selected, removed, nil
}

// Filter returns a new cloud with the points passing the predicate.
func (f *PredicateFilter) Filter(pp *pc.PointCloud) (*pc.PointCloud, error) {
	selected, _, err := f.FilterIndices(pp, nil)
	if err != nil {
		return nil, err
	}
	out := pc.New(pp.Clone(), len(selected))
	stride := pp.Stride()
	for j, i := range selected {
		copy(out.Data[j*stride:(j+1)*stride], pp.Data[i*stride:(i+1)*stride])
	}
	return out, nil
}

// RemovedIndices returns the indices dropped by the last filtering call.
// Empty unless ExtractRemovedIndices is set.
func (f *PredicateFilter) RemovedIndices() []int {
	return f.removed
}
