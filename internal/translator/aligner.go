package translator

import "math"

// positionalAligner assumes monotone word order and maps token i of the
// source onto the proportionally placed token of the target.
type positionalAligner struct{}

func NewPositionalAligner() Aligner {
	return positionalAligner{}
}

func (positionalAligner) Align(src, tgt []string) []int {
	ret := make([]int, len(src))
	if len(tgt) == 0 {
		for i := range ret {
			ret[i] = -1
		}
		return ret
	}
	if len(src) == 1 {
		ret[0] = 0
		return ret
	}
	scale := float64(len(tgt)-1) / float64(len(src)-1)
	for i := range src {
		ret[i] = int(math.Round(float64(i) * scale))
	}
	return ret
}
