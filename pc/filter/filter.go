package filter

import (
	"github.com/tin1254/pcl/pc"
)

type Filter interface {
	Filter(*pc.PointCloud) (*pc.PointCloud, error)
}
