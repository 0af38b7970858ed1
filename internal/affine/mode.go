package affine

import "fmt"

// Mode selects the precision of the layer's weight storage and forward
// computation. A layer starts in ModeNone (full precision); Quantize moves
// it to one of the reduced-precision modes exactly once. There is no
// transition back.
type Mode int

const (
	// ModeNone is full precision: a float32 kernel, no scales.
	ModeNone Mode = iota
	// ModeInt8 stores the kernel as int8 with one scale per output channel.
	ModeInt8
	// ModeInt4 stores the kernel as packed int4, two values per byte, with
	// one scale per output channel. The unpacked input dimension is
	// retained separately because it cannot be recovered from the packed
	// shape when it is odd.
	ModeInt4
	// ModeFloat8 keeps a float32 kernel but perturbs the training math with
	// float8 quantize-dequantize driven by rolling amax statistics.
	ModeFloat8
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeInt8:
		return "int8"
	case ModeInt4:
		return "int4"
	case ModeFloat8:
		return "float8"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Quantized reports whether the mode stores an integer kernel with scales.
func (m Mode) Quantized() bool {
	return m == ModeInt8 || m == ModeInt4
}

// ParseMode maps a mode name to its Mode. The empty string and "none" map
// to ModeNone; anything else unknown is ErrUnsupportedMode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "none":
		return ModeNone, nil
	case "int8":
		return ModeInt8, nil
	case "int4":
		return ModeInt4, nil
	case "float8":
		return ModeFloat8, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}
