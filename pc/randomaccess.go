package pc

import (
	"github.com/seqsense/pcgol/mat"
)

type Vec3RandomAccessor interface {
	Vec3At(int) mat.Vec3
	Len() int
}

type Float32RandomAccessor interface {
	Float32At(int) float32
	Len() int
}

// Vec3Slice implements Vec3RandomAccessor on a plain slice of vectors.
type Vec3Slice []mat.Vec3

func (s Vec3Slice) Len() int {
	return len(s)
}

func (s Vec3Slice) Vec3At(i int) mat.Vec3 {
	return s[i]
}
