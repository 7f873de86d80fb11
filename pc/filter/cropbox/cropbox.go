// Package cropbox filters the points lying inside an oriented box.
package cropbox

import (
	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc/filter"
)

// Options defines the box extent and pose.
type Options struct {
	// Min and Max are the corners of the box in its own frame.
	Min, Max mat.Vec3

	// Translation and Rotation give the pose of the box. Rotation holds
	// the angles around the x, y and z axes in radians, applied in z, y,
	// x order.
	Translation mat.Vec3
	Rotation    mat.Vec3

	// Transform is an optional affine transform applied to the cloud
	// before the box membership test. nil means identity.
	Transform *mat.Mat4
}

// New creates a filter keeping the points inside the box. The returned
// PredicateFilter may be further configured (Negative,
// ExtractRemovedIndices) before use.
func New(opts Options) *filter.PredicateFilter {
	boxTf := mat.Translate(opts.Translation[0], opts.Translation[1], opts.Translation[2])
	if opts.Rotation[2] != 0 {
		boxTf = boxTf.MulAffine(mat.Rotate(0, 0, 1, opts.Rotation[2]))
	}
	if opts.Rotation[1] != 0 {
		boxTf = boxTf.MulAffine(mat.Rotate(0, 1, 0, opts.Rotation[1]))
	}
	if opts.Rotation[0] != 0 {
		boxTf = boxTf.MulAffine(mat.Rotate(1, 0, 0, opts.Rotation[0]))
	}
	ptTf := boxTf.InvAffine()
	if opts.Transform != nil {
		ptTf = ptTf.MulAffine(*opts.Transform)
	}
	min, max := opts.Min, opts.Max
	return filter.NewPredicate(func(p mat.Vec3) bool {
		q := ptTf.TransformAffine(p)
		return q[0] >= min[0] && q[1] >= min[1] && q[2] >= min[2] &&
			q[0] <= max[0] && q[1] <= max[1] && q[2] <= max[2]
	})
}
