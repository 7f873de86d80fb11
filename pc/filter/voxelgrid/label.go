package voxelgrid

// majorityLabel returns the most frequent label of the cell.
// Ties are broken toward the smallest label value, so the result does not
// depend on the map iteration order.
func (vox *voxel) majorityLabel() uint32 {
	var best uint32
	bestNum := 0
	for label, num := range vox.labels {
		if num > bestNum || (num == bestNum && label < best) {
			best = label
			bestNum = num
		}
	}
	return best
}
