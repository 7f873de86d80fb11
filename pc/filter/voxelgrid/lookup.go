package voxelgrid

import (
	"math"

	"github.com/seqsense/pcgol/mat"
)

// The helpers below resolve points and grid coordinates to indices in the
// downsampled cloud of the last filtering pass. They require the leaf
// layout saved (Config.SaveLeafLayout) and a completed pass; calls without
// a layout return ErrNoLeafLayout instead of stale results.

// HasLeafLayout reports whether a leaf layout was saved by the last pass.
// A pass accepting no points saves none, regardless of SaveLeafLayout.
func (v *VoxelGrid) HasLeafLayout() bool {
	return v.hasLayout
}

// GridCoordinates returns the (i,j,k) cell coordinates of point (x,y,z).
func (v *VoxelGrid) GridCoordinates(x, y, z float32) [3]int {
	return [3]int{
		int(math.Floor(float64(x * v.invLeafSize[0]))),
		int(math.Floor(float64(y * v.invLeafSize[1]))),
		int(math.Floor(float64(z * v.invLeafSize[2]))),
	}
}

// CentroidIndexAt returns the output point index of the cell at the given
// grid coordinates, or -1 if the cell is outside the frozen grid bounds,
// unpopulated, or no layout is saved.
func (v *VoxelGrid) CentroidIndexAt(ijk [3]int) int {
	if !v.hasLayout {
		return -1
	}
	var idx uint64
	for j := 0; j < 3; j++ {
		d := ijk[j] - v.minB[j]
		if d < 0 || d >= v.divB[j] {
			return -1
		}
		idx += uint64(d) * v.divbMul[j]
	}
	return v.leafLayout[idx]
}

// CentroidIndex returns the index in the downsampled cloud of the cell
// containing p, or -1 if the cell is empty or out of the grid.
func (v *VoxelGrid) CentroidIndex(p mat.Vec3) (int, error) {
	if !v.hasLayout {
		return -1, ErrNoLeafLayout
	}
	return v.CentroidIndexAt(v.GridCoordinates(p[0], p[1], p[2])), nil
}

// NeighborCentroidIndices returns the downsampled cloud indices of the
// cells displaced by offsets relative to the cell of p. Out of bounds or
// empty cells yield -1.
func (v *VoxelGrid) NeighborCentroidIndices(p mat.Vec3, offsets [][3]int) ([]int, error) {
	if !v.hasLayout {
		return nil, ErrNoLeafLayout
	}
	ijk := v.GridCoordinates(p[0], p[1], p[2])
	neighbors := make([]int, len(offsets))
	for n, d := range offsets {
		neighbors[n] = v.CentroidIndexAt([3]int{ijk[0] + d[0], ijk[1] + d[1], ijk[2] + d[2]})
	}
	return neighbors, nil
}

// LeafLayout returns a copy of the dense cell to output index array of the
// last pass. The entry at (i-minB.x) + (j-minB.y)*divB.x +
// (k-minB.z)*divB.x*divB.y holds the output index of the cell at (i,j,k),
// or -1 for empty cells.
func (v *VoxelGrid) LeafLayout() []int {
	if !v.hasLayout {
		return nil
	}
	return append([]int{}, v.leafLayout...)
}

// MinBoxCoordinates returns the minimum cell coordinates of the grid
// computed by the last pass.
func (v *VoxelGrid) MinBoxCoordinates() [3]int {
	return v.minB
}

// MaxBoxCoordinates returns the maximum cell coordinates of the grid
// computed by the last pass.
func (v *VoxelGrid) MaxBoxCoordinates() [3]int {
	return v.maxB
}

// NrDivisions returns the number of cells along each axis.
func (v *VoxelGrid) NrDivisions() [3]int {
	return v.divB
}

// DivisionMultiplier returns the multipliers linearizing grid coordinates
// into cell keys.
func (v *VoxelGrid) DivisionMultiplier() [3]uint64 {
	return v.divbMul
}
