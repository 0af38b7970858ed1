package affine

import (
	"github.com/samcharles93/affine/internal/quantize"
	"github.com/samcharles93/affine/internal/tensor"
)

// The quantized forward paths pair the forward computation with an explicit
// backward function, the sole coupling point with whatever training loop
// drives the layer. Everything the backward needs is passed in as a
// parameter and captured by value semantics, never reached through the
// layer, so the functions below stay free of hidden state.

// coreGrads holds the gradients produced by a core backward function, one
// entry per forward operand. Nil entries mark non-differentiable operands:
// quantized kernels and their scales are frozen, so only the input gradient
// is computed for them.
type coreGrads struct {
	input  *tensor.Mat
	kernel *tensor.Mat
}

type coreBackward func(upstream *tensor.Mat) coreGrads

// int8MatmulForward quantizes the input per row, multiplies in the integer
// domain and rescales by the product of input and kernel scales. The
// backward uses the dequantized kernel so the gradient with respect to the
// input behaves as if the forward were full precision.
func int8MatmulForward(x *tensor.Mat, kernel *tensor.Int8Mat, kernelScale []float32) (*tensor.Mat, coreBackward) {
	qx, xScales := quantize.AbsMaxQuantize(x, quantize.AxisCols, quantize.RangeInt8)
	y := tensor.MatMulInt8(qx, kernel)
	rescaleOutput(y, xScales, kernelScale)

	backward := func(upstream *tensor.Mat) coreGrads {
		floatKernel := quantize.Dequantize(kernel, kernelScale, quantize.AxisRows)
		return coreGrads{input: tensor.MatMulTransB(upstream, floatKernel)}
	}
	return y, backward
}

// int4MatmulForward is the packed variant: the kernel is unpacked to its
// original row count before the multiply. origInputDim is the true feature
// count, which the packed shape alone cannot express when it is odd.
func int4MatmulForward(x *tensor.Mat, packed *tensor.Int8Mat, kernelScale []float32, origInputDim int) (*tensor.Mat, coreBackward) {
	unpacked := quantize.UnpackInt4(packed, origInputDim)

	qx, xScales := quantize.AbsMaxQuantize(x, quantize.AxisCols, quantize.RangeInt8)
	y := tensor.MatMulInt8(qx, unpacked)
	rescaleOutput(y, xScales, kernelScale)

	backward := func(upstream *tensor.Mat) coreGrads {
		floatKernel := quantize.Dequantize(unpacked, kernelScale, quantize.AxisRows)
		return coreGrads{input: tensor.MatMulTransB(upstream, floatKernel)}
	}
	return y, backward
}

// rescaleOutput divides the integer matmul result by the per-row input
// scale and the per-column kernel scale.
func rescaleOutput(y *tensor.Mat, xScales, kernelScale []float32) {
	for i := 0; i < y.R; i++ {
		row := y.Row(i)
		xs := xScales[i]
		for j := range row {
			row[j] /= xs * kernelScale[j]
		}
	}
}

// float8State carries the six float8 buffers: a scalar scale and a rolling
// amax history for each of the monitored tensors. Scales start at one,
// histories at zero.
type float8State struct {
	inputsScale       float32
	inputsAmaxHistory []float32

	kernelScale       float32
	kernelAmaxHistory []float32

	outputsGradScale       float32
	outputsGradAmaxHistory []float32
}

func newFloat8State(historyLen int) *float8State {
	return &float8State{
		inputsScale:            1,
		inputsAmaxHistory:      make([]float32, historyLen),
		kernelScale:            1,
		kernelAmaxHistory:      make([]float32, historyLen),
		outputsGradScale:       1,
		outputsGradAmaxHistory: make([]float32, historyLen),
	}
}

// float8MatmulForward runs input and kernel through a float8 round trip
// before the multiply. The forward value itself is returned unperturbed by
// the output-gradient rescaler; only the backward path quantize-dequantizes
// the upstream gradient, in the wider e5m2 format. This asymmetry is
// deliberate and mirrors how the rescaling statistics are calibrated.
//
// When training is true, each quantize-dequantize first derives the next
// scale from the existing history, then records the current tensor's amax;
// the current call still uses the previous scale. When training is false
// the state is left untouched.
func float8MatmulForward(x, kernel *tensor.Mat, st *float8State, training bool) (*tensor.Mat, coreBackward) {
	inScale := st.inputsScale
	kScale := st.kernelScale
	if training {
		st.inputsScale = quantize.ComputeFloat8Scale(
			quantize.HistoryMax(st.inputsAmaxHistory), inScale, quantize.Float8E4M3.Max())
		quantize.UpdateAmaxHistory(st.inputsAmaxHistory, x)

		st.kernelScale = quantize.ComputeFloat8Scale(
			quantize.HistoryMax(st.kernelAmaxHistory), kScale, quantize.Float8E4M3.Max())
		quantize.UpdateAmaxHistory(st.kernelAmaxHistory, kernel)
	}

	qdqX := quantize.QuantizeDequantizeFloat8(x, inScale, quantize.Float8E4M3)
	qdqKernel := quantize.QuantizeDequantizeFloat8(kernel, kScale, quantize.Float8E4M3)
	y := tensor.MatMul(qdqX, qdqKernel)

	backward := func(upstream *tensor.Mat) coreGrads {
		gradScale := st.outputsGradScale
		if training {
			st.outputsGradScale = quantize.ComputeFloat8Scale(
				quantize.HistoryMax(st.outputsGradAmaxHistory), gradScale, quantize.Float8E5M2.Max())
			quantize.UpdateAmaxHistory(st.outputsGradAmaxHistory, upstream)
		}
		qdqUpstream := quantize.QuantizeDequantizeFloat8(upstream, gradScale, quantize.Float8E5M2)
		return coreGrads{
			input:  tensor.MatMulTransB(qdqUpstream, qdqKernel),
			kernel: tensor.MatMul(tensor.Transpose(qdqX), qdqUpstream),
		}
	}
	return y, backward
}

// denseMatmulForward is the full-precision path. kernelTrainable is false
// once lora freezes the base kernel.
func denseMatmulForward(x, kernel *tensor.Mat, kernelTrainable bool) (*tensor.Mat, coreBackward) {
	y := tensor.MatMul(x, kernel)
	backward := func(upstream *tensor.Mat) coreGrads {
		g := coreGrads{input: tensor.MatMulTransB(upstream, kernel)}
		if kernelTrainable {
			g.kernel = tensor.MatMul(tensor.Transpose(x), upstream)
		}
		return g
	}
	return y, backward
}
