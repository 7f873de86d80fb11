package pc

import (
	"errors"

	"github.com/seqsense/pcgol/mat"
)

var ErrNoPoint = errors.New("no point")

// MinMaxVec3 returns the bounding box of the finite points of ra.
func MinMaxVec3(ra Vec3RandomAccessor) (mat.Vec3, mat.Vec3, error) {
	var min, max mat.Vec3
	found := false
	for i := 0; i < ra.Len(); i++ {
		v := ra.Vec3At(i)
		if !IsFinite(v) {
			continue
		}
		if !found {
			min, max = v, v
			found = true
			continue
		}
		for j := range v {
			if v[j] < min[j] {
				min[j] = v[j]
			}
			if v[j] > max[j] {
				max[j] = v[j]
			}
		}
	}
	if !found {
		return mat.Vec3{}, mat.Vec3{}, ErrNoPoint
	}
	return min, max, nil
}

// MinMaxVec3InRange returns the bounding box of the finite points of ra whose
// scalar value in val passes the [limitMin, limitMax] test. With negative
// set, points outside the open interval (limitMin, limitMax) are taken
// instead.
func MinMaxVec3InRange(ra Vec3RandomAccessor, val Float32RandomAccessor, limitMin, limitMax float32, negative bool) (mat.Vec3, mat.Vec3, error) {
	var min, max mat.Vec3
	found := false
	for i := 0; i < ra.Len(); i++ {
		v := ra.Vec3At(i)
		if !IsFinite(v) {
			continue
		}
		d := val.Float32At(i)
		if negative {
			if d < limitMax && d > limitMin {
				continue
			}
		} else if d > limitMax || d < limitMin {
			continue
		}
		if !found {
			min, max = v, v
			found = true
			continue
		}
		for j := range v {
			if v[j] < min[j] {
				min[j] = v[j]
			}
			if v[j] > max[j] {
				max[j] = v[j]
			}
		}
	}
	if !found {
		return mat.Vec3{}, mat.Vec3{}, ErrNoPoint
	}
	return min, max, nil
}
