package affine

import (
	"fmt"

	"github.com/samcharles93/affine/internal/tensor"
)

// Variable order is positional and fixed per mode:
//
//	none:   [kernel, bias?]
//	int8:   [kernel, bias?, kernel_scale]
//	int4:   [kernel(packed), bias?, kernel_scale]
//	float8: [kernel, bias?, inputs_scale, inputs_amax_history,
//	         kernel_scale, kernel_amax_history,
//	         outputs_grad_scale, outputs_grad_amax_history]
//
// Loading reads the same order back and fails with a count mismatch before
// touching any buffer.

// SaveVariables writes the layer's variables to the store under positional
// keys. An active lora overlay is merged into the serialized kernel: the
// base weight is dequantized, the delta added in float and the result
// requantized with the mode's value range, so the artifact embeds the
// adaptation while the live layer keeps training on base + factors.
// An unbuilt layer writes nothing.
func (l *Layer) SaveVariables(store Store) error {
	if !l.built {
		return nil
	}
	vars, err := l.serializedVariables()
	if err != nil {
		return err
	}
	for i, v := range vars {
		store.Set(key(i), v)
	}
	l.log.Debug("variables saved", "count", len(vars), "mode", l.mode.String())
	return nil
}

func (l *Layer) serializedVariables() ([]Variable, error) {
	var vars []Variable

	switch l.mode {
	case ModeNone:
		merged, err := l.EffectiveKernel()
		if err != nil {
			return nil, err
		}
		vars = append(vars, matVariable(merged))
		if l.bias != nil {
			vars = append(vars, vecVariable(l.bias))
		}
	case ModeInt8, ModeInt4:
		qkernel, scales := l.qkernel, l.kernelScale
		if l.lora != nil {
			qkernel, scales = l.lora.mergeQuantized(l.qkernel, l.kernelScale, l.mode, l.inputDim)
		}
		vars = append(vars, int8MatVariable(qkernel))
		if l.bias != nil {
			vars = append(vars, vecVariable(l.bias))
		}
		vars = append(vars, vecVariable(scales))
	case ModeFloat8:
		vars = append(vars, matVariable(l.kernel))
		if l.bias != nil {
			vars = append(vars, vecVariable(l.bias))
		}
		vars = append(vars,
			scalarVariable(l.f8.inputsScale),
			vecVariable(l.f8.inputsAmaxHistory),
			scalarVariable(l.f8.kernelScale),
			vecVariable(l.f8.kernelAmaxHistory),
			scalarVariable(l.f8.outputsGradScale),
			vecVariable(l.f8.outputsGradAmaxHistory),
		)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMode, l.mode)
	}
	return vars, nil
}

// LoadVariables reads the layer's variables back from the store in the same
// positional order. All variables are fetched and validated before any
// buffer is assigned, so a mismatch leaves the layer intact. When lora is
// enabled the count check is skipped and the factors are reset to zero
// after the base variables load; the stored artifact already embeds any
// previous adaptation.
func (l *Layer) LoadVariables(store Store) error {
	targets := l.loadTargets()
	if l.lora == nil && store.Len() != len(targets) {
		return fmt.Errorf("%w: expected %d variables for mode %v, received %d",
			ErrVariableCount, len(targets), l.mode, store.Len())
	}
	if !l.built {
		return nil
	}

	staged := make([]Variable, len(targets))
	for i, tgt := range targets {
		v, ok := store.Get(key(i))
		if !ok {
			return fmt.Errorf("%w: variable %q missing", ErrVariableCount, key(i))
		}
		if err := tgt.check(v); err != nil {
			return fmt.Errorf("variable %q: %w", key(i), err)
		}
		staged[i] = v
	}
	for i, tgt := range targets {
		tgt.assign(staged[i])
	}

	if l.lora != nil {
		zeroMat(l.lora.a)
		zeroMat(l.lora.b)
	}
	l.log.Debug("variables loaded", "count", len(targets), "mode", l.mode.String())
	return nil
}

// loadTarget describes one positional slot: the dtype and element count it
// must carry and where the payload lands.
type loadTarget struct {
	dtype DType
	elems int
	f32   []float32
	i8    []int8
	// scalar targets write through a pointer instead of a slice.
	scalar *float32
}

func (t loadTarget) check(v Variable) error {
	if v.DType != t.dtype {
		return fmt.Errorf("%w: dtype %v, want %v", ErrVariableShape, v.DType, t.dtype)
	}
	if v.Elems() != t.elems {
		return fmt.Errorf("%w: %d elements, want %d", ErrVariableShape, v.Elems(), t.elems)
	}
	switch t.dtype {
	case F32:
		if len(v.F32) != t.elems {
			return fmt.Errorf("%w: payload length %d, want %d", ErrVariableShape, len(v.F32), t.elems)
		}
	case I8:
		if len(v.I8) != t.elems {
			return fmt.Errorf("%w: payload length %d, want %d", ErrVariableShape, len(v.I8), t.elems)
		}
	}
	return nil
}

func (t loadTarget) assign(v Variable) {
	switch {
	case t.scalar != nil:
		*t.scalar = v.F32[0]
	case t.dtype == F32:
		copy(t.f32, v.F32)
	default:
		copy(t.i8, v.I8)
	}
}

func (l *Layer) loadTargets() []loadTarget {
	if !l.built {
		return nil
	}
	var targets []loadTarget

	switch l.mode {
	case ModeNone, ModeFloat8:
		targets = append(targets, loadTarget{dtype: F32, elems: len(l.kernel.Data), f32: l.kernel.Data})
	case ModeInt8, ModeInt4:
		targets = append(targets, loadTarget{dtype: I8, elems: len(l.qkernel.Data), i8: l.qkernel.Data})
	}
	if l.bias != nil {
		targets = append(targets, loadTarget{dtype: F32, elems: len(l.bias), f32: l.bias})
	}
	switch l.mode {
	case ModeInt8, ModeInt4:
		targets = append(targets, loadTarget{dtype: F32, elems: len(l.kernelScale), f32: l.kernelScale})
	case ModeFloat8:
		targets = append(targets,
			loadTarget{dtype: F32, elems: 1, scalar: &l.f8.inputsScale},
			loadTarget{dtype: F32, elems: len(l.f8.inputsAmaxHistory), f32: l.f8.inputsAmaxHistory},
			loadTarget{dtype: F32, elems: 1, scalar: &l.f8.kernelScale},
			loadTarget{dtype: F32, elems: len(l.f8.kernelAmaxHistory), f32: l.f8.kernelAmaxHistory},
			loadTarget{dtype: F32, elems: 1, scalar: &l.f8.outputsGradScale},
			loadTarget{dtype: F32, elems: len(l.f8.outputsGradAmaxHistory), f32: l.f8.outputsGradAmaxHistory},
		)
	}
	return targets
}

func matVariable(m *tensor.Mat) Variable {
	return Variable{DType: F32, Shape: []int{m.R, m.C}, F32: m.Data}
}

func int8MatVariable(m *tensor.Int8Mat) Variable {
	return Variable{DType: I8, Shape: []int{m.R, m.C}, I8: m.Data}
}

func vecVariable(v []float32) Variable {
	return Variable{DType: F32, Shape: []int{len(v)}, F32: v}
}

func scalarVariable(v float32) Variable {
	return Variable{DType: F32, Shape: []int{}, F32: []float32{v}}
}

func zeroMat(m *tensor.Mat) {
	clear(m.Data)
}
