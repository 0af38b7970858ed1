package quantize

import (
	"math"

	"github.com/samcharles93/affine/internal/tensor"
)

// The float8 rescaling state is a rolling window of recent per-tensor
// absolute maxima plus a scalar scale derived from it. Both are only updated
// while training; inference leaves them untouched.

// ComputeFloat8Scale derives the scale for the next step from the largest
// recorded amax: formatMax / historyMax. When the history carries no usable
// signal (all zeros, or poisoned by inf/NaN) the current scale is kept, so
// the update is monotonic-safe.
func ComputeFloat8Scale(historyMax, currentScale, formatMax float32) float32 {
	if historyMax <= 0 || math.IsInf(float64(historyMax), 0) || math.IsNaN(float64(historyMax)) {
		return currentScale
	}
	return formatMax / historyMax
}

// UpdateAmaxHistory shifts the history window one slot towards the tail and
// records the absolute maximum of m at the head. The oldest entry falls off.
func UpdateAmaxHistory(history []float32, m *tensor.Mat) {
	if len(history) == 0 {
		return
	}
	copy(history[1:], history[:len(history)-1])
	history[0] = tensor.AbsMax(m.Data)
}

// HistoryMax returns the largest value in the history window.
func HistoryMax(history []float32) float32 {
	var maxVal float32
	for _, v := range history {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}
