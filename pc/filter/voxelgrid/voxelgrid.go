// Package voxelgrid downsamples a point cloud over a uniform 3D grid,
// replacing the points of each occupied cell by their centroid.
//
// The grid geometry is recomputed for every filtering pass from the bounding
// box of the accepted points, and points are hashed to cells by integer
// coordinates linearized in row-major order. The policy is driven by the
// gridfilter pipeline and is not safe for concurrent use.
package voxelgrid

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc"
	"github.com/tin1254/pcl/pc/centroid"
	"github.com/tin1254/pcl/pc/filter"
	"github.com/tin1254/pcl/pc/filter/gridfilter"
)

var (
	// ErrLayoutSize is returned when the leaf layout array cannot be
	// allocated because the cell count exceeds the supported size.
	ErrLayoutSize = errors.New("leaf size is too low, impossible to allocate memory for layout")

	// ErrNoLeafLayout is returned by the lookup helpers when the leaf
	// layout was not saved during the last filtering pass.
	ErrNoLeafLayout = errors.New("leaf layout is not saved, enable SaveLeafLayout and filter first")

	// ErrNoLabelField is returned when a labeled voxel grid is applied to
	// a cloud without label field.
	ErrNoLabelField = errors.New("point cloud has no label field")
)

// Cells mapped to more points than this cannot be addressed by the dense
// leaf layout, whose entries are output point indices.
const maxLayoutSize = math.MaxInt32

type voxel struct {
	sum    mat.Vec3
	num    int
	first  int
	acc    *centroid.Accumulator
	labels map[uint32]int
}

// VoxelGrid is the grid policy of the voxel grid downsampling filter.
// The zero value is not usable; create instances by New or NewLabeled.
type VoxelGrid struct {
	leafSize    mat.Vec3
	invLeafSize mat.Vec3
	labeled     bool

	// Grid geometry frozen by SetUp for the duration of one pass.
	minB, maxB, divB [3]int
	divbMul          [3]uint64
	grid             map[uint64]*voxel
	empty            bool

	leafLayout []int
	hasLayout  bool
	numVoxels  int

	cloud   *pc.PointCloud
	vit     pc.Vec3Iterator
	fieldIt pc.Float32Iterator
	labelIt pc.Uint32Iterator

	xOff, yOff, zOff int
	labelOff         int
	strideF          int

	rowBuf  []byte
	meanBuf []float32

	downsampleAll bool
	minPts        int
	saveLayout    bool
	limitMin      float32
	limitMax      float32
	negative      bool
}

// New creates a voxel grid with the given cell edge lengths.
// Zero leaf size components are treated as 1 to avoid division by zero.
func New(leafSize mat.Vec3) *VoxelGrid {
	v := &VoxelGrid{}
	v.setLeafSize(leafSize)
	return v
}

// NewLabeled creates a voxel grid which additionally carries a "label"
// field: the label of each output point is the most frequent label of the
// points of its cell, ties broken toward the smallest label value.
func NewLabeled(leafSize mat.Vec3) *VoxelGrid {
	v := New(leafSize)
	v.labeled = true
	return v
}

func (v *VoxelGrid) setLeafSize(leafSize mat.Vec3) {
	for i, l := range leafSize {
		if l == 0 {
			leafSize[i] = 1
		}
	}
	v.leafSize = leafSize
	// Use multiplications instead of divisions during hashing.
	v.invLeafSize = mat.Vec3{1 / leafSize[0], 1 / leafSize[1], 1 / leafSize[2]}
}

func (v *VoxelGrid) Name() string {
	if v.labeled {
		return "VoxelGridLabel"
	}
	return "VoxelGrid"
}

// LeafSize returns the cell edge lengths.
func (v *VoxelGrid) LeafSize() mat.Vec3 {
	return v.leafSize
}

// SetUp computes the grid geometry over the selected points and prepares the
// cell container. It implements gridfilter.GridStruct.
// A pass accepting no points succeeds with an empty grid and saves no leaf
// layout, even with SaveLeafLayout set.
func (v *VoxelGrid) SetUp(pp *pc.PointCloud, indices []int, cfg *gridfilter.Config) (bool, error) {
	v.cloud = pp
	v.grid = nil
	v.empty = false
	v.hasLayout = false
	v.numVoxels = 0
	v.rowBuf = nil
	v.meanBuf = nil

	v.downsampleAll = cfg.DownsampleAllData
	v.minPts = cfg.MinPointsPerVoxel
	v.saveLayout = cfg.SaveLeafLayout
	v.limitMin = cfg.FilterLimitMin
	v.limitMax = cfg.FilterLimitMax
	v.negative = cfg.FilterLimitsNegative

	it, err := pp.Vec3Iterator()
	if err != nil {
		return false, err
	}
	v.vit = it
	var ok bool
	if v.xOff, ok = pp.FieldOffset("x"); !ok {
		return false, pc.ErrInvalidFieldName
	}
	if v.yOff, ok = pp.FieldOffset("y"); !ok {
		return false, pc.ErrInvalidFieldName
	}
	if v.zOff, ok = pp.FieldOffset("z"); !ok {
		return false, pc.ErrInvalidFieldName
	}

	v.fieldIt = nil
	if cfg.FilterFieldName != "" {
		fit, err := pp.Float32Iterator(cfg.FilterFieldName)
		if err != nil {
			cfg.Log().Warn("invalid filter field name, disabling field filtering",
				"filter", v.Name(),
				"field", cfg.FilterFieldName,
			)
		} else {
			v.fieldIt = fit
		}
	}

	v.labelIt = nil
	if v.labeled {
		lit, err := pp.Uint32Iterator("label")
		if err != nil {
			return false, ErrNoLabelField
		}
		v.labelIt = lit
		v.labelOff, _ = pp.FieldOffset("label")
	}

	if v.downsampleAll && !pp.Float32Regular() {
		cfg.Log().Warn("downsampling all data requires single count 4-byte fields, averaging position only",
			"filter", v.Name(),
		)
		v.downsampleAll = false
	}
	if v.downsampleAll {
		v.strideF = pp.Stride() / 4
	}

	// Bounding box over the accepted points. The ranged variant applies the
	// same range test as acceptField, so the grid bounds cannot diverge
	// from the cell membership decided by AddPointToGrid.
	ra := pc.NewIndiceVec3RandomAccessor(it, indices)
	var min, max mat.Vec3
	if v.fieldIt != nil {
		min, max, err = pc.MinMaxVec3InRange(
			ra, pc.NewIndiceFloat32RandomAccessor(v.fieldIt, indices),
			v.limitMin, v.limitMax, v.negative,
		)
	} else {
		min, max, err = pc.MinMaxVec3(ra)
	}
	if err != nil {
		if errors.Is(err, pc.ErrNoPoint) {
			// No accepted point: an empty pass, not a failure.
			v.empty = true
			v.grid = map[uint64]*voxel{}
			return true, nil
		}
		return false, err
	}

	total, ok := totalCells(min, max, v.invLeafSize)
	if !ok {
		return false, nil
	}

	for j := 0; j < 3; j++ {
		v.minB[j] = int(math.Floor(float64(min[j] * v.invLeafSize[j])))
		v.maxB[j] = int(math.Floor(float64(max[j] * v.invLeafSize[j])))
		v.divB[j] = v.maxB[j] - v.minB[j] + 1
	}
	v.divbMul = [3]uint64{1, uint64(v.divB[0]), uint64(v.divB[0]) * uint64(v.divB[1])}

	// Bound the rehash cost without over-allocating sparse grids.
	presize := total
	if n := uint64(len(indices)); n < presize {
		presize = n
	}
	v.grid = make(map[uint64]*voxel, int(presize))

	if v.saveLayout {
		n := uint64(v.divB[0]) * uint64(v.divB[1]) * uint64(v.divB[2])
		if n > maxLayoutSize {
			return false, ErrLayoutSize
		}
		if uint64(cap(v.leafLayout)) >= n {
			v.leafLayout = v.leafLayout[:n]
		} else {
			v.leafLayout = make([]int, n)
		}
		for i := range v.leafLayout {
			v.leafLayout[i] = -1
		}
		v.hasLayout = true
	}
	return true, nil
}

// totalCells returns the number of grid cells covering the extent, and
// whether that count fits the cell key range. The overflow checks divide
// instead of multiplying so that the wrap around is detected, not triggered.
func totalCells(min, max, invLeafSize mat.Vec3) (uint64, bool) {
	var d [3]uint64
	for j := 0; j < 3; j++ {
		f := math.Floor(float64((max[j] - min[j]) * invLeafSize[j]))
		if !(f >= 0 && f < 1<<62) {
			return 0, false
		}
		d[j] = uint64(f) + 1
	}
	const maxSize = math.MaxUint64
	if d[1] > maxSize/d[0] || d[0]*d[1] > maxSize/d[2] {
		return 0, false
	}
	return d[0] * d[1] * d[2], true
}

func (v *VoxelGrid) acceptField(i int) bool {
	if v.fieldIt == nil {
		return true
	}
	d := v.fieldIt.Float32At(i)
	if v.negative {
		// Cut out points inside the interval.
		return !(d < v.limitMax && d > v.limitMin)
	}
	return !(d > v.limitMax || d < v.limitMin)
}

// hashPoint returns the cell key of p. It must stay consistent with the
// grid bounds computed by SetUp; the same function serves accumulation and
// the layout lookups.
func (v *VoxelGrid) hashPoint(p mat.Vec3) uint64 {
	ijk0 := uint64(int64(math.Floor(float64(p[0]*v.invLeafSize[0]))) - int64(v.minB[0]))
	ijk1 := uint64(int64(math.Floor(float64(p[1]*v.invLeafSize[1]))) - int64(v.minB[1]))
	ijk2 := uint64(int64(math.Floor(float64(p[2]*v.invLeafSize[2]))) - int64(v.minB[2]))
	return ijk0*v.divbMul[0] + ijk1*v.divbMul[1] + ijk2*v.divbMul[2]
}

// AddPointToGrid accumulates the point at original index i into its cell.
// It implements gridfilter.GridStruct.
func (v *VoxelGrid) AddPointToGrid(i int) bool {
	if v.empty || !v.acceptField(i) {
		return false
	}
	p := v.vit.Vec3At(i)
	h := v.hashPoint(p)
	vox, ok := v.grid[h]
	if !ok {
		vox = &voxel{first: i}
		if v.downsampleAll {
			vox.acc = centroid.New(v.strideF)
		}
		if v.labeled {
			vox.labels = make(map[uint32]int)
		}
		v.grid[h] = vox
	}
	vox.num++
	if v.downsampleAll {
		vox.acc.Add(v.cloud.Float32Row(i))
	} else {
		vox.sum = vox.sum.Add(p)
	}
	if v.labeled {
		vox.labels[v.labelIt.Uint32At(i)]++
	}
	return true
}

// EachCell implements gridfilter.GridStruct.
func (v *VoxelGrid) EachCell(fn func(gridfilter.CellRef)) {
	for h := range v.grid {
		fn(gridfilter.CellRef(h))
	}
}

// FilterGrid emits the representative point of the given cell, or false if
// the cell holds fewer points than the configured minimum.
// It implements gridfilter.GridStruct.
func (v *VoxelGrid) FilterGrid(c gridfilter.CellRef) ([]byte, bool) {
	vox := v.grid[uint64(c)]
	if vox == nil || vox.num < v.minPts {
		return nil, false
	}

	stride := v.cloud.Stride()
	if v.rowBuf == nil {
		v.rowBuf = make([]byte, stride)
	}
	row := v.rowBuf
	// Non-averaged attributes are taken from the first point of the cell.
	copy(row, v.cloud.Data[vox.first*stride:(vox.first+1)*stride])

	if v.downsampleAll {
		if v.meanBuf == nil {
			v.meanBuf = make([]float32, v.strideF)
		}
		vox.acc.Get(v.meanBuf)
		for j, f := range v.meanBuf {
			putFloat32(row[4*j:], f)
		}
	} else {
		m := vox.sum.Mul(1 / float32(vox.num))
		putFloat32(row[v.xOff:], m[0])
		putFloat32(row[v.yOff:], m[1])
		putFloat32(row[v.zOff:], m[2])
	}
	if v.labeled {
		binary.LittleEndian.PutUint32(row[v.labelOff:v.labelOff+4], vox.majorityLabel())
	}

	if v.saveLayout {
		v.leafLayout[uint64(c)] = v.numVoxels
	}
	v.numVoxels++
	return row, true
}

func putFloat32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b[:4], math.Float32bits(f))
}

// NewFilter wires a voxel grid with the given configuration into the
// generic filter interface.
func NewFilter(leafSize mat.Vec3, cfg *gridfilter.Config) filter.Filter {
	return gridfilter.NewFilter(New(leafSize), cfg)
}

// NewLabeledFilter is NewFilter for the label carrying variant.
func NewLabeledFilter(leafSize mat.Vec3, cfg *gridfilter.Config) filter.Filter {
	return gridfilter.NewFilter(NewLabeled(leafSize), cfg)
}
