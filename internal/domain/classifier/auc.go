package classifier

import (
	"math"
	"sort"
)

// AUC returns the area under the ROC curve computed from Mann-Whitney ranks,
// averaging ranks over tied probabilities. It is NaN when only one class is present.
func AUC(labels []int, probs []float64) float64 {
	n := len(labels)
	if n == 0 || n != len(probs) {
		return math.NaN()
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && probs[idx[j+1]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg, rankSum float64
	for i, l := range labels {
		if l == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return math.NaN()
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg)
}
