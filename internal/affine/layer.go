// Package affine implements a fully-connected layer whose weights can live
// in full precision, int8, packed int4 or float8, with an optional low-rank
// adaptation overlay, under one weight-management and serialization
// contract.
package affine

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/samcharles93/affine/internal/logger"
	"github.com/samcharles93/affine/internal/quantize"
	"github.com/samcharles93/affine/internal/tensor"
)

// DefaultAmaxHistoryLength is the float8 history depth used when Options
// does not set one.
const DefaultAmaxHistoryLength = 1024

// Options configures a Layer at construction time. The zero value is a
// plain full-precision layer with bias, glorot-uniform kernel init and no
// activation.
type Options struct {
	// Activation is the name of the elementwise output transform.
	Activation string
	// NoBias disables the bias vector.
	NoBias bool

	KernelInitializer string // default "glorot_uniform"
	BiasInitializer   string // default "zeros"
	KernelRegularizer string
	BiasRegularizer   string
	KernelConstraint  string
	BiasConstraint    string

	// LoraRank enables lora at build time with the given rank.
	LoraRank int
	// LoraAlpha scales the adaptation delta by LoraAlpha/LoraRank.
	// Defaults to LoraRank.
	LoraAlpha float64

	// Mode selects a quantization mode allocated directly at build time,
	// for layers whose weights arrive from a checkpoint. Layers built in
	// ModeNone can be quantized later with Quantize.
	Mode Mode

	// AmaxHistoryLength is the float8 rolling history depth. The layer
	// takes it as an explicit parameter; there is no ambient default
	// policy to consult.
	AmaxHistoryLength int

	// Seed drives the initializers.
	Seed int64

	Logger logger.Logger
}

// Layer is the orchestrator: it owns the build and serialization lifecycle
// and dispatches forward calls to the precision core selected by its mode.
type Layer struct {
	units int

	activation Activation
	useBias    bool

	kernelInit       Initializer
	biasInit         Initializer
	kernelReg        Regularizer
	biasReg          Regularizer
	kernelConstraint Constraint
	biasConstraint   Constraint

	pendingLoraRank  int
	pendingLoraAlpha float64

	amaxHistoryLen int
	seed           int64
	log            logger.Logger

	built    bool
	inputDim int
	mode     Mode

	// Exactly one weight representation is materialized at a time:
	// kernel for ModeNone and ModeFloat8, qkernel+kernelScale for the
	// integer modes, with f8 carrying the float8 state alongside kernel.
	kernel      *tensor.Mat
	qkernel     *tensor.Int8Mat
	kernelScale []float32
	f8          *float8State

	bias []float32

	lora *loraOverlay
}

// Gradients holds the result of a Backward call: one entry per trainable
// operand of the forward pass. Kernel is nil when the kernel is frozen
// (integer modes, or any mode once lora owns the update). LoraA and LoraB
// are nil unless lora is enabled. Scales are never differentiated.
type Gradients struct {
	Input  *tensor.Mat
	Kernel *tensor.Mat
	Bias   []float32
	LoraA  *tensor.Mat
	LoraB  *tensor.Mat
}

// Backward propagates an upstream gradient through the forward call that
// returned it.
type Backward func(upstream *tensor.Mat) Gradients

// New constructs an unbuilt layer. Unknown activation, initializer,
// regularizer or constraint names are configuration errors.
func New(units int, opts Options) (*Layer, error) {
	if units <= 0 {
		return nil, fmt.Errorf("affine: units must be positive, got %d", units)
	}

	act, err := ActivationByName(opts.Activation)
	if err != nil {
		return nil, err
	}
	kinitName := opts.KernelInitializer
	if kinitName == "" {
		kinitName = "glorot_uniform"
	}
	kinit, err := InitializerByName(kinitName)
	if err != nil {
		return nil, err
	}
	binitName := opts.BiasInitializer
	if binitName == "" {
		binitName = "zeros"
	}
	binit, err := InitializerByName(binitName)
	if err != nil {
		return nil, err
	}
	kreg, err := RegularizerByName(opts.KernelRegularizer)
	if err != nil {
		return nil, err
	}
	breg, err := RegularizerByName(opts.BiasRegularizer)
	if err != nil {
		return nil, err
	}
	kcon, err := ConstraintByName(opts.KernelConstraint)
	if err != nil {
		return nil, err
	}
	bcon, err := ConstraintByName(opts.BiasConstraint)
	if err != nil {
		return nil, err
	}

	if opts.Mode == ModeFloat8 && opts.LoraRank > 0 {
		return nil, ErrLoRAFloat8
	}

	histLen := opts.AmaxHistoryLength
	if histLen <= 0 {
		histLen = DefaultAmaxHistoryLength
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Layer{
		units:            units,
		activation:       act,
		useBias:          !opts.NoBias,
		kernelInit:       kinit,
		biasInit:         binit,
		kernelReg:        kreg,
		biasReg:          breg,
		kernelConstraint: kcon,
		biasConstraint:   bcon,
		pendingLoraRank:  opts.LoraRank,
		pendingLoraAlpha: opts.LoraAlpha,
		amaxHistoryLen:   histLen,
		seed:             opts.Seed,
		log:              log,
		mode:             opts.Mode,
	}, nil
}

// Units returns the output dimension.
func (l *Layer) Units() int { return l.units }

// InputDim returns the build-time input dimension, 0 before Build.
func (l *Layer) InputDim() int { return l.inputDim }

// Built reports whether Build has run.
func (l *Layer) Built() bool { return l.built }

// Mode returns the current quantization mode.
func (l *Layer) Mode() Mode { return l.mode }

// LoraEnabled reports whether the lora overlay exists.
func (l *Layer) LoraEnabled() bool { return l.lora != nil }

// Build allocates the weight buffers for the given input dimension. Layers
// constructed with a quantized Mode allocate zeroed integer buffers and
// unit scales, ready to be filled by LoadVariables; otherwise the kernel
// initializer runs. A second Build is an error.
func (l *Layer) Build(inputDim int) error {
	if l.built {
		return ErrAlreadyBuilt
	}
	if inputDim <= 0 {
		return fmt.Errorf("affine: input dimension must be positive, got %d", inputDim)
	}
	rng := rand.New(rand.NewSource(l.seed))

	switch l.mode {
	case ModeNone:
		l.kernel = l.kernelInit.Fill(inputDim, l.units, rng)
	case ModeFloat8:
		l.kernel = l.kernelInit.Fill(inputDim, l.units, rng)
		l.f8 = newFloat8State(l.amaxHistoryLen)
	case ModeInt8:
		l.qkernel = tensor.NewInt8Mat(inputDim, l.units)
		l.kernelScale = onesVec(l.units)
	case ModeInt4:
		l.qkernel = tensor.NewInt8Mat(quantize.PackedRows(inputDim), l.units)
		l.kernelScale = onesVec(l.units)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, l.mode)
	}

	if l.useBias {
		l.bias = l.biasInit.Fill(1, l.units, rng).Data
	}
	l.inputDim = inputDim
	l.built = true

	if l.pendingLoraRank > 0 {
		if err := l.EnableLoRA(l.pendingLoraRank, l.pendingLoraAlpha); err != nil {
			return err
		}
	}
	l.log.Debug("layer built", "input_dim", inputDim, "units", l.units, "mode", l.mode.String())
	return nil
}

// Forward computes activation(x @ kernel + lora delta + bias) through the
// precision core selected by the layer's mode, and returns the output
// together with the backward function for the whole call.
func (l *Layer) Forward(x *tensor.Mat, training bool) (*tensor.Mat, Backward, error) {
	if !l.built {
		return nil, nil, ErrNotBuilt
	}
	if x.C != l.inputDim {
		return nil, nil, fmt.Errorf("affine: input has %d features, layer was built for %d", x.C, l.inputDim)
	}

	var (
		y   *tensor.Mat
		mbw coreBackward
	)
	switch l.mode {
	case ModeNone:
		y, mbw = denseMatmulForward(x, l.kernel, l.lora == nil)
	case ModeInt8:
		y, mbw = int8MatmulForward(x, l.qkernel, l.kernelScale)
	case ModeInt4:
		y, mbw = int4MatmulForward(x, l.qkernel, l.kernelScale, l.inputDim)
	case ModeFloat8:
		if l.lora != nil {
			return nil, nil, ErrLoRAFloat8
		}
		y, mbw = float8MatmulForward(x, l.kernel, l.f8, training)
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, l.mode)
	}

	var lbw func(upstream *tensor.Mat) (gradInput, gradA, gradB *tensor.Mat)
	if l.lora != nil {
		var ly *tensor.Mat
		ly, lbw = l.lora.forward(x)
		tensor.AddMat(y, ly)
	}
	if l.bias != nil {
		tensor.AddRowVec(y, l.bias)
	}

	pre := y
	out := applyActivation(l.activation, pre)

	backward := func(upstream *tensor.Mat) Gradients {
		g := activationGrad(l.activation, pre, upstream)
		cg := mbw(g)
		grads := Gradients{Input: cg.input, Kernel: cg.kernel}
		if lbw != nil {
			gi, ga, gb := lbw(g)
			tensor.AddMat(grads.Input, gi)
			grads.LoraA, grads.LoraB = ga, gb
		}
		if l.bias != nil {
			grads.Bias = columnSums(g)
		}
		return grads
	}
	return out, backward, nil
}

// Quantize converts the full-precision kernel to the given mode. The
// transition is one-shot: a layer that has left full precision cannot be
// quantized again. The new buffers are fully constructed before the old
// kernel is released, so a failure leaves the layer unchanged.
func (l *Layer) Quantize(mode Mode) error {
	if !l.built {
		return ErrNotBuilt
	}
	if mode == ModeNone {
		return fmt.Errorf("%w: cannot quantize to %q", ErrUnsupportedMode, mode.String())
	}
	if l.mode != ModeNone {
		return fmt.Errorf("%w (%v)", ErrAlreadyQuantized, l.mode)
	}
	if mode == ModeFloat8 && l.lora != nil {
		return ErrLoRAFloat8
	}

	switch mode {
	case ModeInt8:
		q, scales := quantize.AbsMaxQuantize(l.kernel, quantize.AxisRows, quantize.RangeInt8)
		l.qkernel = q
		l.kernelScale = scales
		l.kernel = nil
	case ModeInt4:
		q, scales := quantize.AbsMaxQuantize(l.kernel, quantize.AxisRows, quantize.RangeInt4)
		l.qkernel = quantize.PackInt4(q)
		l.kernelScale = scales
		l.kernel = nil
	case ModeFloat8:
		l.f8 = newFloat8State(l.amaxHistoryLen)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedMode, mode)
	}
	l.mode = mode
	l.log.Debug("layer quantized", "mode", mode.String())
	return nil
}

// EnableLoRA allocates the low-rank factors. Factor B starts at zero so the
// layer's output is unchanged until training moves it. The base kernel is
// frozen from here on. Enabling twice, enabling before Build, enabling with
// a kernel constraint or combining with float8 are errors.
func (l *Layer) EnableLoRA(rank int, alpha float64) error {
	if l.kernelConstraint.Name != "" {
		return ErrLoRAConstraint
	}
	if !l.built {
		return ErrNotBuilt
	}
	if l.lora != nil {
		return ErrLoRAEnabled
	}
	if l.mode == ModeFloat8 {
		return ErrLoRAFloat8
	}
	if rank <= 0 {
		return fmt.Errorf("affine: lora rank must be positive, got %d", rank)
	}
	if alpha <= 0 {
		alpha = float64(rank)
	}

	// For int4 the packed buffer's row count is not the feature count; the
	// layer's retained input dimension is always the true one.
	heUniform, err := InitializerByName("he_uniform")
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(l.seed + 1))
	l.lora = &loraOverlay{
		rank:  rank,
		alpha: alpha,
		a:     heUniform.Fill(l.inputDim, rank, rng),
		b:     tensor.NewMat(rank, l.units),
	}
	l.log.Debug("lora enabled", "rank", rank, "alpha", alpha)
	return nil
}

// EffectiveKernel returns the full-precision view of the weight: the base
// kernel (dequantized if needed) plus the lora delta.
func (l *Layer) EffectiveKernel() (*tensor.Mat, error) {
	if !l.built {
		return nil, ErrNotBuilt
	}
	var base *tensor.Mat
	switch l.mode {
	case ModeNone, ModeFloat8:
		base = l.kernel.Clone()
	case ModeInt8:
		base = quantize.Dequantize(l.qkernel, l.kernelScale, quantize.AxisRows)
	case ModeInt4:
		unpacked := quantize.UnpackInt4(l.qkernel, l.inputDim)
		base = quantize.Dequantize(unpacked, l.kernelScale, quantize.AxisRows)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, l.mode)
	}
	if l.lora != nil {
		tensor.AddMat(base, l.lora.delta())
	}
	return base, nil
}

// RegularizationLoss sums the configured regularizers over the trainable
// parameters: the float kernel (when one exists), the lora factors and the
// bias. Frozen integer kernels contribute nothing.
func (l *Layer) RegularizationLoss() float32 {
	if !l.built {
		return 0
	}
	var loss float32
	if l.kernelReg.Loss != nil {
		if l.kernel != nil {
			loss += l.kernelReg.Loss(l.kernel)
		}
		if l.lora != nil {
			loss += l.kernelReg.Loss(l.lora.a)
			loss += l.kernelReg.Loss(l.lora.b)
		}
	}
	if l.biasReg.Loss != nil && l.bias != nil {
		loss += l.biasReg.Loss(tensor.NewMatFromData(1, len(l.bias), l.bias))
	}
	return loss
}

// ApplyConstraints projects the float kernel and bias through their
// configured constraints. Integer kernels are frozen and never projected.
func (l *Layer) ApplyConstraints() {
	if !l.built {
		return
	}
	if l.kernelConstraint.Project != nil && l.kernel != nil {
		l.kernelConstraint.Project(l.kernel)
	}
	if l.biasConstraint.Project != nil && l.bias != nil {
		l.biasConstraint.Project(tensor.NewMatFromData(1, len(l.bias), l.bias))
	}
}

func onesVec(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func columnSums(m *tensor.Mat) []float32 {
	out := make([]float32, m.C)
	for i := 0; i < m.R; i++ {
		tensor.Add(out, m.Row(i))
	}
	return out
}

func key(i int) string { return strconv.Itoa(i) }
