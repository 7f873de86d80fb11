package voxelgrid

import (
	"io"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc"
	"github.com/tin1254/pcl/pc/filter/gridfilter"
	"github.com/tin1254/pcl/pc/internal/float"
)

func testCloudXYZ(data []float32) *pc.PointCloud {
	return &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Fields: []string{"x", "y", "z"},
			Size:   []int{4, 4, 4},
			Count:  []int{1, 1, 1},
			Width:  len(data) / 3,
			Height: 1,
		},
		Points: len(data) / 3,
		Data:   float.Float32SliceAsByteSlice(data),
	}
}

func testCloudXYZI(data []float32) *pc.PointCloud {
	return &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Fields: []string{"x", "y", "z", "intensity"},
			Size:   []int{4, 4, 4, 4},
			Count:  []int{1, 1, 1, 1},
			Width:  len(data) / 4,
			Height: 1,
		},
		Points: len(data) / 4,
		Data:   float.Float32SliceAsByteSlice(data),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sortedVec3s reads all points of pp sorted lexicographically, the cell
// iteration order being undefined.
func sortedVec3s(t *testing.T, pp *pc.PointCloud) []mat.Vec3 {
	t.Helper()
	it, err := pp.Vec3Iterator()
	if err != nil {
		t.Fatal(err)
	}
	out := make([]mat.Vec3, pp.Points)
	for i := range out {
		out[i] = it.Vec3At(i)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return out
}

func vec3Near(a, b mat.Vec3, eps float32) bool {
	return a.Sub(b).Norm() < eps
}

func TestVoxelGrid(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		0.01, 0, 0,
		5, 5, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 2 {
		t.Fatalf("Expected 2 points, got: %d", out.Points)
	}
	got := sortedVec3s(t, out)
	expected := []mat.Vec3{{0.005, 0, 0}, {5, 5, 5}}
	for i, e := range expected {
		if !vec3Near(got[i], e, 1e-5) {
			t.Errorf("Expected point: %v, got: %v", e, got[i])
		}
	}
}

func TestVoxelGrid_deterministic(t *testing.T) {
	data := []float32{
		0.2, 0.3, 0.4,
		1.2, 0.3, 0.4,
		0.2, 1.3, 0.4,
		0.7, 0.8, 0.9,
		2.5, 2.5, 2.5,
	}
	v := New(mat.Vec3{1, 1, 1})
	first, _, err := gridfilter.Apply(v, testCloudXYZ(data), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := gridfilter.Apply(v, testCloudXYZ(data), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, b := sortedVec3s(t, first), sortedVec3s(t, second)
	if len(a) != len(b) {
		t.Fatalf("Expected same number of points, got: %d and %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Errorf("Expected point: %v, got: %v", a[i], b[i])
		}
	}
}

func TestVoxelGrid_minPointsPerVoxel(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		0.01, 0, 0,
		5, 5, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{MinPointsPerVoxel: 2})
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 1 {
		t.Fatalf("Expected 1 point, got: %d", out.Points)
	}
	got := sortedVec3s(t, out)
	if !vec3Near(got[0], mat.Vec3{0.005, 0, 0}, 1e-5) {
		t.Errorf("Expected point: {0.005 0 0}, got: %v", got[0])
	}
}

func TestVoxelGrid_fieldFilter(t *testing.T) {
	data := []float32{
		0, 0, -1,
		0, 0, 0,
		0, 0, 1,
		0, 0, 2,
	}
	t.Run("Keep", func(t *testing.T) {
		v := New(mat.Vec3{10, 10, 10})
		out, _, err := gridfilter.Apply(v, testCloudXYZ(data), nil, &gridfilter.Config{
			FilterFieldName: "z",
			FilterLimitMin:  0,
			FilterLimitMax:  1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if out.Points != 1 {
			t.Fatalf("Expected 1 point, got: %d", out.Points)
		}
		got := sortedVec3s(t, out)
		if !vec3Near(got[0], mat.Vec3{0, 0, 0.5}, 1e-5) {
			t.Errorf("Expected point: {0 0 0.5}, got: %v", got[0])
		}
		// Rejected points must not widen the grid bounds.
		if minB := v.MinBoxCoordinates(); !reflect.DeepEqual([3]int{0, 0, 0}, minB) {
			t.Errorf("Expected min box coordinates: [0 0 0], got: %v", minB)
		}
		if maxB := v.MaxBoxCoordinates(); !reflect.DeepEqual([3]int{0, 0, 0}, maxB) {
			t.Errorf("Expected max box coordinates: [0 0 0], got: %v", maxB)
		}
	})
	t.Run("Negative", func(t *testing.T) {
		v := New(mat.Vec3{10, 10, 10})
		out, _, err := gridfilter.Apply(v, testCloudXYZ(data), nil, &gridfilter.Config{
			FilterFieldName:      "z",
			FilterLimitMin:       -1.5,
			FilterLimitMax:       1.5,
			FilterLimitsNegative: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if out.Points != 1 {
			t.Fatalf("Expected 1 point, got: %d", out.Points)
		}
		got := sortedVec3s(t, out)
		if !vec3Near(got[0], mat.Vec3{0, 0, 2}, 1e-5) {
			t.Errorf("Expected point: {0 0 2}, got: %v", got[0])
		}
	})
}

func TestVoxelGrid_invalidFilterField(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		5, 5, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{
		FilterFieldName: "intensity",
		FilterLimitMin:  0,
		FilterLimitMax:  1,
		Logger:          discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Field filtering is disabled on unknown fields, not failed.
	if out.Points != 2 {
		t.Fatalf("Expected 2 points, got: %d", out.Points)
	}
}

func TestVoxelGrid_overflow(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		1e6, 1e6, 1e6,
	})
	v := New(mat.Vec3{1e-6, 1e-6, 1e-6})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 0 {
		t.Fatalf("Expected empty output, got: %d points", out.Points)
	}
}

func TestVoxelGrid_zeroLeafSize(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0.1, 0.1, 0.1,
		0.2, 0.2, 0.2,
		5, 5, 5,
	})
	v := New(mat.Vec3{})
	if !v.LeafSize().Equal(mat.Vec3{1, 1, 1}) {
		t.Fatalf("Expected leaf size: {1 1 1}, got: %v", v.LeafSize())
	}
	out, _, err := gridfilter.Apply(v, pp, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 2 {
		t.Fatalf("Expected 2 points, got: %d", out.Points)
	}
}

func TestVoxelGrid_downsampleAllData(t *testing.T) {
	pp := testCloudXYZI([]float32{
		0, 0, 0, 10,
		0.2, 0, 0, 20,
		5, 5, 5, 40,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{DownsampleAllData: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 2 {
		t.Fatalf("Expected 2 points, got: %d", out.Points)
	}
	iit, err := out.Float32Iterator("intensity")
	if err != nil {
		t.Fatal(err)
	}
	intensities := []float32{iit.Float32At(0), iit.Float32At(1)}
	sort.Slice(intensities, func(i, j int) bool { return intensities[i] < intensities[j] })
	if d := float64(intensities[0]) - 15; math.Abs(d) > 1e-4 {
		t.Errorf("Expected intensity: 15, got: %f", intensities[0])
	}
	if intensities[1] != 40 {
		t.Errorf("Expected intensity: 40, got: %f", intensities[1])
	}
}

func TestVoxelGrid_indices(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		0.01, 0, 0,
		5, 5, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	out, _, err := gridfilter.Apply(v, pp, []int{0, 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Points != 2 {
		t.Fatalf("Expected 2 points, got: %d", out.Points)
	}
	got := sortedVec3s(t, out)
	expected := []mat.Vec3{{0, 0, 0}, {5, 5, 5}}
	for i, e := range expected {
		if !got[i].Equal(e) {
			t.Errorf("Expected point: %v, got: %v", e, got[i])
		}
	}
}

func TestVoxelGrid_removedIndices(t *testing.T) {
	nan := float32(math.NaN())
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		nan, 0, 0,
		0, 0, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	_, removed, err := gridfilter.Apply(v, pp, nil, &gridfilter.Config{
		ExtractRemovedIndices: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != 1 {
		t.Errorf("Expected removed indices: [1], got: %v", removed)
	}
}

func TestVoxelGrid_hashConsistency(t *testing.T) {
	pp := testCloudXYZ([]float32{
		0, 0, 0,
		0.01, 0, 0,
		5, 5, 5,
	})
	v := New(mat.Vec3{1, 1, 1})
	if _, _, err := gridfilter.Apply(v, pp, nil, nil); err != nil {
		t.Fatal(err)
	}
	if a, b := v.hashPoint(mat.Vec3{0, 0, 0}), v.hashPoint(mat.Vec3{0.01, 0, 0}); a != b {
		t.Errorf("Expected same cell key, got: %d and %d", a, b)
	}
	if a, b := v.hashPoint(mat.Vec3{0, 0, 0}), v.hashPoint(mat.Vec3{5, 5, 5}); a == b {
		t.Errorf("Expected different cell keys, got: %d for both", a)
	}
}
