package pc

import (
	"github.com/seqsense/pcgol/mat"
)

type indiceVec3RandomAccessor struct {
	indice []int
	ra     Vec3RandomAccessor
}

func (i *indiceVec3RandomAccessor) Len() int {
	return len(i.indice)
}

func (i *indiceVec3RandomAccessor) Vec3At(j int) mat.Vec3 {
	return i.ra.Vec3At(i.indice[j])
}

func NewIndiceVec3RandomAccessor(ra Vec3RandomAccessor, indice []int) Vec3RandomAccessor {
	return &indiceVec3RandomAccessor{
		ra:     ra,
		indice: indice,
	}
}

type indiceFloat32RandomAccessor struct {
	indice []int
	ra     Float32RandomAccessor
}

func (i *indiceFloat32RandomAccessor) Len() int {
	return len(i.indice)
}

func (i *indiceFloat32RandomAccessor) Float32At(j int) float32 {
	return i.ra.Float32At(i.indice[j])
}

func NewIndiceFloat32RandomAccessor(ra Float32RandomAccessor, indice []int) Float32RandomAccessor {
	return &indiceFloat32RandomAccessor{
		ra:     ra,
		indice: indice,
	}
}
