package affine

import "errors"

var (
	// ErrUnsupportedMode reports a quantization mode the layer does not know.
	ErrUnsupportedMode = errors.New("affine: unsupported quantization mode")

	// ErrNotBuilt reports an operation that requires a built layer.
	ErrNotBuilt = errors.New("affine: layer is not built")

	// ErrAlreadyBuilt reports a second Build call.
	ErrAlreadyBuilt = errors.New("affine: layer is already built")

	// ErrAlreadyQuantized reports a Quantize call on a layer that has
	// already left full precision. The transition is one-shot.
	ErrAlreadyQuantized = errors.New("affine: layer is already quantized")

	// ErrLoRAEnabled reports a second EnableLoRA call.
	ErrLoRAEnabled = errors.New("affine: lora already enabled")

	// ErrLoRAConstraint reports EnableLoRA on a layer with a kernel
	// constraint configured.
	ErrLoRAConstraint = errors.New("affine: lora is incompatible with a kernel constraint")

	// ErrLoRAFloat8 reports an attempt to combine lora with float8 mode.
	ErrLoRAFloat8 = errors.New("affine: lora is not supported in float8 mode")

	// ErrVariableCount reports a store whose variable count does not match
	// what the layer expects for its mode.
	ErrVariableCount = errors.New("affine: stored variable count mismatch")

	// ErrVariableShape reports a stored variable whose shape or dtype does
	// not match the layer's buffer.
	ErrVariableShape = errors.New("affine: stored variable shape mismatch")
)
