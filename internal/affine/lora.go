package affine

import (
	"github.com/samcharles93/affine/internal/quantize"
	"github.com/samcharles93/affine/internal/tensor"
)

// loraOverlay is the pair of low-rank factors added on top of the base
// kernel. Factor A is (inputDim, rank) with a non-zero init; factor B is
// (rank, units) and starts at zero so the initial delta is exactly zero.
// Once enabled the overlay is never removed.
type loraOverlay struct {
	rank  int
	alpha float64
	a, b  *tensor.Mat
}

func (o *loraOverlay) scaling() float32 {
	return float32(o.alpha / float64(o.rank))
}

// delta returns (alpha/rank) * A @ B.
func (o *loraOverlay) delta() *tensor.Mat {
	d := tensor.MatMul(o.a, o.b)
	tensor.Scale(d, o.scaling())
	return d
}

// forward computes the adaptation's output contribution for x and returns
// it together with a backward producing the gradients for x, A and B.
func (o *loraOverlay) forward(x *tensor.Mat) (*tensor.Mat, func(upstream *tensor.Mat) (gradInput, gradA, gradB *tensor.Mat)) {
	xa := tensor.MatMul(x, o.a)
	y := tensor.MatMul(xa, o.b)
	s := o.scaling()
	tensor.Scale(y, s)

	backward := func(upstream *tensor.Mat) (gradInput, gradA, gradB *tensor.Mat) {
		// d/dB: (xA)^T @ U, d/dA: x^T @ (U @ B^T), d/dx: U @ (AB)^T.
		gradB = tensor.MatMul(tensor.Transpose(xa), upstream)
		tensor.Scale(gradB, s)

		ub := tensor.MatMulTransB(upstream, o.b)
		gradA = tensor.MatMul(tensor.Transpose(x), ub)
		tensor.Scale(gradA, s)

		gradInput = tensor.MatMulTransB(ub, o.a)
		tensor.Scale(gradInput, s)
		return gradInput, gradA, gradB
	}
	return y, backward
}

// mergeQuantized folds the overlay into a quantized base kernel for
// serialization: dequantize, add the delta in float, requantize with the
// mode's value range and repack if int4. The live layer keeps its separate
// base kernel and factors; only the returned artifact embeds the merge.
func (o *loraOverlay) mergeQuantized(kernel *tensor.Int8Mat, kernelScale []float32, mode Mode, origInputDim int) (*tensor.Int8Mat, []float32) {
	var floatKernel *tensor.Mat
	var rng quantize.Range
	switch mode {
	case ModeInt4:
		unpacked := quantize.UnpackInt4(kernel, origInputDim)
		floatKernel = quantize.Dequantize(unpacked, kernelScale, quantize.AxisRows)
		rng = quantize.RangeInt4
	case ModeInt8:
		floatKernel = quantize.Dequantize(kernel, kernelScale, quantize.AxisRows)
		rng = quantize.RangeInt8
	default:
		panic("mergeQuantized requires an int8 or int4 kernel")
	}

	tensor.AddMat(floatKernel, o.delta())

	merged, mergedScale := quantize.AbsMaxQuantize(floatKernel, quantize.AxisRows, rng)
	if mode == ModeInt4 {
		merged = quantize.PackInt4(merged)
	}
	return merged, mergedScale
}
