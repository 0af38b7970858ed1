// Package quantize implements the numeric primitives behind the reduced
// precision affine layer: abs-max integer quantization with per-channel
// scales, int4 nibble packing, float8 encoding and the dynamic float8
// rescaling state.
package quantize

import (
	"math"

	"github.com/samcharles93/affine/internal/tensor"
)

// Range is an inclusive integer value range for quantized storage.
type Range struct {
	Min, Max int8
}

var (
	// RangeInt8 is the full signed 8-bit range used for int8 weights.
	// -128 is excluded so the range is symmetric around zero.
	RangeInt8 = Range{Min: -127, Max: 127}

	// RangeInt4 is the signed 4-bit range used for packed int4 weights.
	RangeInt4 = Range{Min: -8, Max: 7}
)

// Axis selects the reduction axis for per-channel quantization.
//
// AxisRows reduces over the rows, producing one scale per column. This is
// the weight convention: one scale per output channel. AxisCols reduces over
// the columns, producing one scale per row, which is the input convention:
// one scale per sample in the batch.
type Axis int

const (
	AxisRows Axis = 0
	AxisCols Axis = 1
)

// AbsMaxQuantize quantizes m to the given integer range with one scale per
// slice along the non-reduced axis.
//
// scale = rng.Max / maxAbs for each slice, or 1 when the slice is all zeros
// so that dequantization never divides by zero. Quantized values are
// round(v*scale) clamped to the range. The operation is deterministic and
// reversible up to rounding error.
func AbsMaxQuantize(m *tensor.Mat, axis Axis, rng Range) (*tensor.Int8Mat, []float32) {
	scales := absMaxScales(m, axis, rng)
	q := tensor.NewInt8Mat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		qrow := q.Row(i)
		for j, v := range row {
			s := scales[scaleIndex(axis, i, j)]
			qrow[j] = clampRound(v*s, rng)
		}
	}
	return q, scales
}

// Dequantize reconstructs a float matrix from quantized values and their
// per-channel scales: value = q / scale.
func Dequantize(q *tensor.Int8Mat, scales []float32, axis Axis) *tensor.Mat {
	checkScaleLen(q.R, q.C, scales, axis)
	out := tensor.NewMat(q.R, q.C)
	for i := 0; i < q.R; i++ {
		qrow := q.Row(i)
		orow := out.Row(i)
		for j, v := range qrow {
			orow[j] = float32(v) / scales[scaleIndex(axis, i, j)]
		}
	}
	return out
}

func absMaxScales(m *tensor.Mat, axis Axis, rng Range) []float32 {
	var scales []float32
	switch axis {
	case AxisRows:
		scales = make([]float32, m.C)
		colMax := make([]float32, m.C)
		for i := 0; i < m.R; i++ {
			for j, v := range m.Row(i) {
				if v < 0 {
					v = -v
				}
				if v > colMax[j] {
					colMax[j] = v
				}
			}
		}
		for j, ma := range colMax {
			scales[j] = scaleFor(ma, rng)
		}
	case AxisCols:
		scales = make([]float32, m.R)
		for i := 0; i < m.R; i++ {
			scales[i] = scaleFor(tensor.AbsMax(m.Row(i)), rng)
		}
	default:
		panic("unsupported quantization axis")
	}
	return scales
}

func scaleFor(maxAbs float32, rng Range) float32 {
	if maxAbs == 0 {
		return 1
	}
	return float32(rng.Max) / maxAbs
}

func scaleIndex(axis Axis, i, j int) int {
	if axis == AxisRows {
		return j
	}
	return i
}

func checkScaleLen(r, c int, scales []float32, axis Axis) {
	want := c
	if axis == AxisCols {
		want = r
	}
	if len(scales) != want {
		panic("scale vector length mismatch")
	}
}

func clampRound(v float32, rng Range) int8 {
	q := int32(math.Round(float64(v)))
	if q > int32(rng.Max) {
		q = int32(rng.Max)
	} else if q < int32(rng.Min) {
		q = int32(rng.Min)
	}
	return int8(q)
}
