package splatcpu

// SortStage is one step of the bitonic network: BlockSize is the span of
// the merge being built, Dist the comparison distance within it.
type SortStage struct {
	BlockSize uint32
	Dist      uint32
}

// SortStages returns the full bitonic schedule for a power-of-two element
// count: for P = 2^k, k*(k+1)/2 stages. Each stage maps to one GPU
// compute pass so writes from the previous step are visible.
func SortStages(padded uint32) []SortStage {
	var stages []SortStage
	for blockSize := uint32(2); blockSize <= padded; blockSize <<= 1 {
		for dist := blockSize / 2; dist > 0; dist >>= 1 {
			stages = append(stages, SortStage{BlockSize: blockSize, Dist: dist})
		}
	}
	return stages
}

// SortPass applies one bitonic step across the whole key list, mirroring
// one dispatch of sort.wgsl. Pair t covers indices (left, left+dist) with
// left = 2t - (t mod dist); the merge direction flips with bit BlockSize
// of the left index. Values move with their keys.
func SortPass(keys, values []uint32, stage SortStage) {
	n := uint32(len(keys))
	dist := stage.Dist
	for t := uint32(0); t < n/2; t++ {
		left := 2*t - (t & (dist - 1))
		right := left + dist
		if right >= n {
			continue
		}
		ascending := left&stage.BlockSize == 0
		a, b := keys[left], keys[right]
		outOfOrder := a < b
		if ascending {
			outOfOrder = a > b
		}
		if outOfOrder {
			keys[left], keys[right] = b, a
			values[left], values[right] = values[right], values[left]
		}
	}
}

// Sort runs the complete bitonic network in place. len(keys) must be a
// power of two (pad with SentinelKey); len(values) must match.
func Sort(keys, values []uint32) {
	for _, stage := range SortStages(uint32(len(keys))) {
		SortPass(keys, values, stage)
	}
}
