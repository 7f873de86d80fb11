package pc

import (
	"errors"
	"math"

	"github.com/seqsense/pcgol/mat"

	"github.com/tin1254/pcl/pc/internal/float"
)

// PointCloudHeader describes the field layout of a point cloud.
type PointCloudHeader struct {
	Version   float32
	Fields    []string
	Size      []int
	Type      []string
	Count     []int
	Width     int
	Height    int
	Viewpoint []float32
}

func (h *PointCloudHeader) Clone() PointCloudHeader {
	return PointCloudHeader{
		Version:   h.Version,
		Fields:    append([]string{}, h.Fields...),
		Size:      append([]int{}, h.Size...),
		Type:      append([]string{}, h.Type...),
		Count:     append([]int{}, h.Count...),
		Width:     h.Width,
		Height:    h.Height,
		Viewpoint: append([]float32{}, h.Viewpoint...),
	}
}

// Stride returns the number of bytes of one point.
func (h *PointCloudHeader) Stride() int {
	var stride int
	for i := range h.Fields {
		stride += h.Count[i] * h.Size[i]
	}
	return stride
}

// FieldOffset returns the byte offset of the named field inside one point.
func (h *PointCloudHeader) FieldOffset(name string) (int, bool) {
	offset := 0
	for i, fn := range h.Fields {
		if fn == name {
			return offset, true
		}
		offset += h.Size[i] * h.Count[i]
	}
	return 0, false
}

// PointCloud stores points as packed little-endian binary rows.
type PointCloud struct {
	PointCloudHeader
	Points int

	Data      []byte
	dataFloat []float32
}

// New creates a zero-filled PointCloud with the given header and number of
// points. Width and Height of the header are overwritten as an unorganized
// cloud.
func New(h PointCloudHeader, points int) *PointCloud {
	pp := &PointCloud{
		PointCloudHeader: h,
		Points:           points,
	}
	pp.Width = points
	pp.Height = 1
	pp.Data = make([]byte, pp.Stride()*points)
	return pp
}

var ErrInvalidFieldName = errors.New("invalid field name")

func (pp *PointCloud) float32Data() []float32 {
	if pp.dataFloat == nil {
		pp.dataFloat = float.ByteSliceAsFloat32Slice(pp.Data)
	}
	return pp.dataFloat
}

// Float32Regular reports whether every field is a single 4-byte value, so
// that Data can be interpreted as a plain []float32 matrix.
func (h *PointCloudHeader) Float32Regular() bool {
	for i := range h.Fields {
		if h.Size[i] != 4 || h.Count[i] != 1 {
			return false
		}
	}
	return len(h.Fields) > 0
}

// Float32Row returns the raw float32 values of the i-th point.
// It requires a Float32Regular layout.
func (pp *PointCloud) Float32Row(i int) []float32 {
	n := pp.Stride() / 4
	return pp.float32Data()[i*n : (i+1)*n]
}

func (pp *PointCloud) Float32Iterator(name string) (Float32Iterator, error) {
	offset := 0
	for i, fn := range pp.Fields {
		if fn == name {
			if pp.Stride()&3 == 0 && offset&3 == 0 {
				// Aligned
				return &float32Iterator{
					data:   pp.float32Data(),
					pos:    offset / 4,
					offset: offset / 4,
					stride: pp.Stride() / 4,
				}, nil
			}
			return &binaryFloat32Iterator{
				binaryIterator: binaryIterator{
					data:   pp.Data,
					pos:    offset,
					offset: offset,
					stride: pp.Stride(),
				},
			}, nil
		}
		offset += pp.Size[i] * pp.Count[i]
	}
	return nil, ErrInvalidFieldName
}

func (pp *PointCloud) Uint32Iterator(name string) (Uint32Iterator, error) {
	offset, ok := pp.FieldOffset(name)
	if !ok {
		return nil, ErrInvalidFieldName
	}
	return &binaryUint32Iterator{
		binaryIterator: binaryIterator{
			data:   pp.Data,
			pos:    offset,
			offset: offset,
			stride: pp.Stride(),
		},
	}, nil
}

func (pp *PointCloud) Float32Iterators(names ...string) ([]Float32Iterator, error) {
	var its []Float32Iterator
	for _, name := range names {
		it, err := pp.Float32Iterator(name)
		if err != nil {
			return nil, err
		}
		its = append(its, it)
	}
	return its, nil
}

func (pp *PointCloud) Vec3Iterator() (Vec3Iterator, error) {
	var xyz int
	for _, name := range pp.Fields {
		if name == "x" && xyz == 0 {
			xyz = 1
		} else if name == "y" && xyz == 1 {
			xyz = 2
		} else if name == "z" && xyz == 2 {
			xyz = 3
		}
	}
	if xyz != 3 {
		return pp.naiveVec3Iterator()
	}
	it, err := pp.Float32Iterator("x")
	if err != nil {
		return nil, err
	}
	vit, ok := it.(*float32Iterator)
	if !ok {
		return pp.naiveVec3Iterator()
	}
	return vit, nil
}

func (pp *PointCloud) naiveVec3Iterator() (Vec3Iterator, error) {
	its, err := pp.Float32Iterators("x", "y", "z")
	if err != nil {
		return nil, err
	}
	return naiveVec3Iterator{its[0], its[1], its[2]}, nil
}

// IsFinite reports whether all components of v are neither NaN nor infinite.
func IsFinite(v mat.Vec3) bool {
	for _, f := range v {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return false
		}
	}
	return true
}
