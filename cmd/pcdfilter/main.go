// pcdfilter applies a YAML configured filter pipeline to a PCD file.
//
//	pcdfilter -config pipeline.yaml -o out.pcd in.pcd
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/seqsense/pcgol/mat"
	"gopkg.in/yaml.v3"

	"github.com/tin1254/pcl/pc"
	"github.com/tin1254/pcl/pc/filter"
	"github.com/tin1254/pcl/pc/filter/cropbox"
	"github.com/tin1254/pcl/pc/filter/gridfilter"
	"github.com/tin1254/pcl/pc/filter/voxelgrid"
)

type stageConfig struct {
	Type string `yaml:"type"`

	// voxelgrid, voxelgrid_label
	LeafSize             []float32 `yaml:"leaf_size"`
	DownsampleAllData    bool      `yaml:"downsample_all_data"`
	MinPointsPerVoxel    int       `yaml:"min_points_per_voxel"`
	FilterField          string    `yaml:"filter_field"`
	FilterLimitMin       float32   `yaml:"filter_limit_min"`
	FilterLimitMax       float32   `yaml:"filter_limit_max"`
	FilterLimitsNegative bool      `yaml:"filter_limits_negative"`

	// cropbox
	Min         []float32 `yaml:"min"`
	Max         []float32 `yaml:"max"`
	Translation []float32 `yaml:"translation"`
	Rotation    []float32 `yaml:"rotation"`
	Negative    bool      `yaml:"negative"`
}

type pipelineConfig struct {
	Filters []stageConfig `yaml:"filters"`
}

func vec3(v []float32) mat.Vec3 {
	var out mat.Vec3
	copy(out[:], v)
	return out
}

func buildStage(s stageConfig) (filter.Filter, error) {
	switch s.Type {
	case "voxelgrid", "voxelgrid_label":
		cfg := &gridfilter.Config{
			DownsampleAllData:    s.DownsampleAllData,
			MinPointsPerVoxel:    s.MinPointsPerVoxel,
			FilterFieldName:      s.FilterField,
			FilterLimitMin:       s.FilterLimitMin,
			FilterLimitMax:       s.FilterLimitMax,
			FilterLimitsNegative: s.FilterLimitsNegative,
		}
		if len(s.LeafSize) != 3 {
			return nil, fmt.Errorf("%s: leaf_size must have 3 components", s.Type)
		}
		if s.Type == "voxelgrid_label" {
			return voxelgrid.NewLabeledFilter(vec3(s.LeafSize), cfg), nil
		}
		return voxelgrid.NewFilter(vec3(s.LeafSize), cfg), nil
	case "cropbox":
		f := cropbox.New(cropbox.Options{
			Min:         vec3(s.Min),
			Max:         vec3(s.Max),
			Translation: vec3(s.Translation),
			Rotation:    vec3(s.Rotation),
		})
		f.Negative = s.Negative
		return f, nil
	default:
		return nil, fmt.Errorf("unknown filter type %q", s.Type)
	}
}

func run() error {
	configPath := flag.String("config", "", "pipeline config file")
	outPath := flag.String("o", "out.pcd", "output file")
	compress := flag.Bool("compress", false, "write binary_compressed data")
	flag.Parse()

	if *configPath == "" || flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("input file and -config are required")
	}

	cb, err := os.ReadFile(*configPath)
	if err != nil {
		return err
	}
	var cfg pipelineConfig
	if err := yaml.Unmarshal(cb, &cfg); err != nil {
		return err
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()
	pp, err := pc.Parse(in)
	if err != nil {
		return err
	}
	if it, err := pp.Vec3Iterator(); err == nil {
		if min, max, err := pc.MinMaxVec3(it); err == nil {
			slog.Info("loaded point cloud",
				"points", pp.Points,
				"min", min,
				"max", max,
			)
		}
	}

	for i, s := range cfg.Filters {
		f, err := buildStage(s)
		if err != nil {
			return err
		}
		before := pp.Points
		if pp, err = f.Filter(pp); err != nil {
			return fmt.Errorf("stage %d (%s): %w", i, s.Type, err)
		}
		slog.Info("applied filter",
			"stage", i,
			"type", s.Type,
			"points_in", before,
			"points_out", pp.Points,
		)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if *compress {
		return pc.MarshalCompressed(pp, out)
	}
	return pc.Marshal(pp, out)
}

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
