package voxelgrid

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc/filter/gridfilter"
)

func TestVoxelGrid_lookup(t *testing.T) {
	points := []mat.Vec3{
		{0.5, 0.5, 0.5},
		{1.5, 0.5, 0.5},
		{0.5, 1.5, 0.5},
		{0.5, 0.5, 1.5},
	}
	var data []float32
	for _, p := range points {
		data = append(data, p[0], p[1], p[2])
	}
	pp := testCloudXYZ(data)

	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{SaveLeafLayout: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 4 {
		t.Fatalf("Expected 4 points, got: %d", out.Points)
	}
	if !v.HasLeafLayout() {
		t.Fatal("Expected saved leaf layout")
	}
	if divB := v.NrDivisions(); !reflect.DeepEqual([3]int{2, 2, 2}, divB) {
		t.Fatalf("Expected divisions: [2 2 2], got: %v", divB)
	}
	if minB := v.MinBoxCoordinates(); !reflect.DeepEqual([3]int{0, 0, 0}, minB) {
		t.Errorf("Expected min box coordinates: [0 0 0], got: %v", minB)
	}
	if maxB := v.MaxBoxCoordinates(); !reflect.DeepEqual([3]int{1, 1, 1}, maxB) {
		t.Errorf("Expected max box coordinates: [1 1 1], got: %v", maxB)
	}
	if mul := v.DivisionMultiplier(); !reflect.DeepEqual([3]uint64{1, 2, 4}, mul) {
		t.Errorf("Expected division multipliers: [1 2 4], got: %v", mul)
	}

	it, err := out.Vec3Iterator()
	if err != nil {
		t.Fatal(err)
	}
	// Every cell holds a single point, so the centroid lookup of each input
	// point must resolve to that same point in the output.
	for _, p := range points {
		i, err := v.CentroidIndex(p)
		if err != nil {
			t.Fatal(err)
		}
		if i < 0 || i >= out.Points {
			t.Fatalf("Centroid index out of range: %d", i)
		}
		if got := it.Vec3At(i); !got.Equal(p) {
			t.Errorf("Expected point: %v, got: %v", p, got)
		}
	}
	if i, err := v.CentroidIndex(mat.Vec3{10, 10, 10}); err != nil || i != -1 {
		t.Errorf("Expected index -1 for out of grid point, got: %d, %v", i, err)
	}

	layout := v.LeafLayout()
	if len(layout) != 8 {
		t.Fatalf("Expected layout of 8 cells, got: %d", len(layout))
	}
	var occupied int
	for _, i := range layout {
		if i != -1 {
			occupied++
		}
	}
	if occupied != 4 {
		t.Errorf("Expected 4 occupied cells, got: %d", occupied)
	}
}

func TestVoxelGrid_lookupNeighbors(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0.5, 0.5, 0.5,
		1.5, 0.5, 0.5,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{SaveLeafLayout: true})
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := v.NeighborCentroidIndices(mat.Vec3{0.5, 0.5, 0.5}, [][3]int{
		{0, 0, 0},
		{1, 0, 0},
		{-1, 0, 0},
		{0, 1, 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 4 {
		t.Fatalf("Expected 4 neighbor indices, got: %d", len(neighbors))
	}
	if neighbors[0] < 0 || neighbors[0] >= out.Points {
		t.Errorf("Expected valid index for own cell, got: %d", neighbors[0])
	}
	if neighbors[1] < 0 || neighbors[1] >= out.Points {
		t.Errorf("Expected valid index for +x neighbor, got: %d", neighbors[1])
	}
	if neighbors[0] == neighbors[1] {
		t.Errorf("Expected distinct indices, got: %d for both cells", neighbors[0])
	}
	if neighbors[2] != -1 {
		t.Errorf("Expected -1 for out of grid neighbor, got: %d", neighbors[2])
	}
	if neighbors[3] != -1 {
		t.Errorf("Expected -1 for empty neighbor, got: %d", neighbors[3])
	}
}

func TestVoxelGrid_lookupWithoutLayout(t *testing.T) {
	v := New(mat.Vec3{1, 1, 1})
	if v.HasLeafLayout() {
		t.Error("Expected no leaf layout before filtering")
	}
	if _, err := v.CentroidIndex(mat.Vec3{0, 0, 0}); !errors.Is(err, ErrNoLeafLayout) {
		t.Errorf("Expected error: %v, got: %v", ErrNoLeafLayout, err)
	}
	if _, err := v.NeighborCentroidIndices(mat.Vec3{}, [][3]int{{0, 0, 0}}); !errors.Is(err, ErrNoLeafLayout) {
		t.Errorf("Expected error: %v, got: %v", ErrNoLeafLayout, err)
	}
	if layout := v.LeafLayout(); layout != nil {
		t.Errorf("Expected nil layout, got: %v", layout)
	}

	// A pass without SaveLeafLayout must not leave a stale layout behind.
	pp := testCloudXYZ([]float32{0.5, 0.5, 0.5})
	if _, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{SaveLeafLayout: true}); err != nil {
		t.Fatal(err)
	}
	if !v.HasLeafLayout() {
		t.Fatal("Expected saved leaf layout")
	}
	if _, _, err := gridfilter.Apply(v, pp, nil, nil); err != nil {
		t.Fatal(err)
	}
	if v.HasLeafLayout() {
		t.Error("Expected leaf layout dropped by the next pass")
	}
	if _, err := v.CentroidIndex(mat.Vec3{0.5, 0.5, 0.5}); !errors.Is(err, ErrNoLeafLayout) {
		t.Errorf("Expected error: %v, got: %v", ErrNoLeafLayout, err)
	}
}

func TestVoxelGrid_emptyPassSavesNoLayout(t *testing.T) {
	nan := float32(math.NaN())
	pp := testCloudXYZ([]float32{nan, 0, 0})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{SaveLeafLayout: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 0 {
		t.Fatalf("Expected empty output, got: %d points", out.Points)
	}
	if v.HasLeafLayout() {
		t.Error("Expected no leaf layout after an empty pass")
	}
	if _, err := v.CentroidIndex(mat.Vec3{0, 0, 0}); !errors.Is(err, ErrNoLeafLayout) {
		t.Errorf("Expected error: %v, got: %v", ErrNoLeafLayout, err)
	}
}

func TestVoxelGrid_gridCoordinates(t *testing.T) {
	v := New(mat.Vec3{1, 1, 1})
	if ijk := v.GridCoordinates(-0.5, 0.5, 1.5); !reflect.DeepEqual([3]int{-1, 0, 1}, ijk) {
		t.Errorf("Expected coordinates: [-1 0 1], got: %v", ijk)
	}
	v2 := New(mat.Vec3{0.5, 0.5, 0.5})
	if ijk := v2.GridCoordinates(1.2, 0, -0.1); !reflect.DeepEqual([3]int{2, 0, -1}, ijk) {
		t.Errorf("Expected coordinates: [2 0 -1], got: %v", ijk)
	}
}
