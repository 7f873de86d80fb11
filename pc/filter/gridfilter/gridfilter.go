// Package gridfilter runs grid-shaped aggregation policies over a point
// cloud in three phases: set up, accumulate and finalize.
//
// A policy partitions space into cells, aggregates the points mapped to each
// cell and emits one representative point per surviving cell. The pipeline
// itself is independent of the cell geometry and of the aggregate kept per
// cell; anything satisfying GridStruct can be driven by Apply.
package gridfilter

import (
	"fmt"
	"log/slog"

	"github.com/tin1254/pcl/pc"
	"github.com/tin1254/pcl/pc/filter"
)

// CellRef is an opaque handle of one occupied grid cell.
type CellRef uint64

// Config is the shared configuration of grid filters. It is passed to the
// policy at every set up, so a policy never needs a reference back to the
// pipeline driving it.
type Config struct {
	// DownsampleAllData selects whether all point attributes are averaged
	// per cell, or the position only.
	DownsampleAllData bool

	// MinPointsPerVoxel suppresses cells aggregated from fewer points.
	MinPointsPerVoxel int

	// SaveLeafLayout makes the policy keep a dense reverse lookup array
	// from cell coordinate to output point index.
	SaveLeafLayout bool

	// FilterFieldName optionally restricts the filtered points to the ones
	// whose named scalar field value lies in [FilterLimitMin,
	// FilterLimitMax]. FilterLimitsNegative inverts the range.
	FilterFieldName      string
	FilterLimitMin       float32
	FilterLimitMax       float32
	FilterLimitsNegative bool

	// ExtractRemovedIndices enables reporting of the original indices of
	// the points that did not contribute to any cell.
	ExtractRemovedIndices bool

	// Logger receives warning diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Log returns the configured logger, or the default one.
func (c *Config) Log() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// GridStruct is the contract between the grid filter pipeline and a grid
// policy.
type GridStruct interface {
	// Name identifies the filter in diagnostics.
	Name() string

	// SetUp prepares the grid geometry for one filtering pass over the
	// given points. Returning false signals a recoverable failure (e.g.
	// the cell count would overflow the cell key range): the pipeline
	// aborts with an empty result. A non-nil error is fatal.
	SetUp(pp *pc.PointCloud, indices []int, cfg *Config) (bool, error)

	// AddPointToGrid accumulates the point at original index i into its
	// cell. It returns false if the point was rejected by the policy's
	// own prefilter. The pipeline only passes points with finite
	// coordinates.
	AddPointToGrid(i int) bool

	// EachCell calls fn for every occupied cell. The iteration order is
	// defined by the container backing the grid and is not guaranteed to
	// be stable between runs.
	EachCell(fn func(CellRef))

	// FilterGrid returns the packed representative point of the given
	// cell, or false if the cell contributes nothing to the output. The
	// returned slice is only valid until the next call.
	FilterGrid(c CellRef) ([]byte, bool)
}

// Apply drives one filtering pass of g over the points of pp selected by
// indices (nil selects all points), assembling the output cloud and, if
// enabled in cfg, the indices of the removed points.
func Apply(g GridStruct, pp *pc.PointCloud, indices []int, cfg *Config) (*pc.PointCloud, []int, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if pp.Points == 0 {
		return pc.New(pp.Clone(), 0), nil, nil
	}
	if indices == nil {
		indices = make([]int, pp.Points)
		for i := range indices {
			indices[i] = i
		}
	}

	ok, err := g.SetUp(pp, indices, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", g.Name(), err)
	}
	if !ok {
		cfg.Log().Warn(
			"leaf size is too small for the input dataset, integer indices would overflow",
			"filter", g.Name(),
		)
		return pc.New(pp.Clone(), 0), nil, nil
	}

	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, nil, err
	}

	var removed []int
	for _, i := range indices {
		if pc.IsFinite(it.Vec3At(i)) && g.AddPointToGrid(i) {
			continue
		}
		if cfg.ExtractRemovedIndices {
			removed = append(removed, i)
		}
	}

	stride := pp.Stride()
	data := make([]byte, 0, stride*16)
	var n int
	g.EachCell(func(c CellRef) {
		if row, ok := g.FilterGrid(c); ok {
			data = append(data, row...)
			n++
		}
	})

	out := &pc.PointCloud{
		PointCloudHeader: pp.Clone(),
		Points:           n,
		Data:             data,
	}
	out.Width = n
	out.Height = 1
	return out, removed, nil
}

type gridFilter struct {
	g   GridStruct
	cfg *Config
}

// NewFilter adapts a grid policy and its configuration to the generic
// filter.Filter interface.
func NewFilter(g GridStruct, cfg *Config) filter.Filter {
	return &gridFilter{g: g, cfg: cfg}
}

func (f *gridFilter) Filter(pp *pc.PointCloud) (*pc.PointCloud, error) {
	out, _, err := Apply(f.g, pp, nil, f.cfg)
	return out, err
}
