package quantize

import (
	"math"

	"github.com/samcharles93/affine/internal/tensor"
)

// Float8Format identifies one of the two 8-bit floating-point encodings used
// by the float8 training path: E4M3 for forward values and E5M2 for the
// gradient, which needs the wider exponent range.
type Float8Format int

const (
	// Float8E4M3 is the e4m3fn encoding: 4 exponent bits, 3 mantissa bits,
	// no infinities, max finite value 448.
	Float8E4M3 Float8Format = iota
	// Float8E5M2 is the e5m2 encoding: 5 exponent bits, 2 mantissa bits,
	// max finite value 57344.
	Float8E5M2
)

func (f Float8Format) String() string {
	switch f {
	case Float8E4M3:
		return "float8_e4m3fn"
	case Float8E5M2:
		return "float8_e5m2"
	default:
		return "float8_unknown"
	}
}

// Max returns the largest finite value representable in the format.
func (f Float8Format) Max() float32 {
	switch f {
	case Float8E4M3:
		return 448
	case Float8E5M2:
		return 57344
	default:
		panic("unknown float8 format")
	}
}

func (f Float8Format) params() (mantBits uint, bias int) {
	switch f {
	case Float8E4M3:
		return 3, 7
	case Float8E5M2:
		return 2, 15
	default:
		panic("unknown float8 format")
	}
}

// EncodeFloat8 converts a float32 to the 8-bit encoding with round to
// nearest even. Out-of-range magnitudes saturate to the format maximum
// rather than producing NaN or infinity; the quantize-dequantize callers
// clamp to the representable range anyway.
func EncodeFloat8(v float32, f Float8Format) uint8 {
	mantBits, bias := f.params()

	bits := math.Float32bits(v)
	sign := uint8(bits>>24) & 0x80
	if math.IsNaN(float64(v)) {
		return sign | nanBitsFloat8(f)
	}

	abs := math.Abs(float64(v))
	if abs == 0 {
		return sign
	}
	maxVal := float64(f.Max())
	if abs >= maxVal {
		return sign | maxBitsFloat8(f)
	}

	// Exponent of the representable grid the value falls on. Magnitudes below
	// the smallest normal use the subnormal grid at the minimum exponent.
	_, frexpExp := math.Frexp(abs)
	exp := frexpExp - 1 // abs in [2^exp, 2^(exp+1))
	minExp := 1 - bias
	if exp < minExp {
		exp = minExp
	}

	// Scale onto the fixed-point grid for this exponent and round.
	m := math.RoundToEven(math.Ldexp(abs, int(mantBits)-exp))
	if m >= float64(int(2)<<mantBits) {
		// Rounding carried into the next binade.
		exp++
		m /= 2
	}
	mi := uint8(m)
	if mi < 1<<mantBits {
		// Subnormal: exponent field zero, mantissa holds the raw grid value.
		return sign | mi
	}
	expField := uint8(exp + bias)
	return sign | expField<<mantBits | (mi - 1<<mantBits)
}

// DecodeFloat8 converts an 8-bit encoded value back to float32.
func DecodeFloat8(b uint8, f Float8Format) float32 {
	mantBits, bias := f.params()
	sign := float64(1)
	if b&0x80 != 0 {
		sign = -1
	}
	expField := (b & 0x7F) >> mantBits
	mant := b & (1<<mantBits - 1)

	if f == Float8E5M2 && expField == 0x1F {
		if mant == 0 {
			return float32(sign * math.Inf(1))
		}
		return float32(math.NaN())
	}
	if f == Float8E4M3 && expField == 0x0F && mant == 1<<mantBits-1 {
		return float32(math.NaN())
	}

	if expField == 0 {
		return float32(sign * math.Ldexp(float64(mant), 1-bias-int(mantBits)))
	}
	return float32(sign * math.Ldexp(float64(mant)+float64(int(1)<<mantBits), int(expField)-bias-int(mantBits)))
}

func maxBitsFloat8(f Float8Format) uint8 {
	switch f {
	case Float8E4M3:
		return 0x7E // 1.75 * 2^8 = 448
	default:
		return 0x7B // 1.75 * 2^15 = 57344
	}
}

func nanBitsFloat8(f Float8Format) uint8 {
	switch f {
	case Float8E4M3:
		return 0x7F
	default:
		return 0x7E
	}
}

// QuantizeDequantizeFloat8 runs m through a real float8 round trip: scale,
// clamp to the representable range, encode, decode and unscale. scale must
// be strictly positive (typically formatMax / amax).
func QuantizeDequantizeFloat8(m *tensor.Mat, scale float32, f Float8Format) *tensor.Mat {
	if scale <= 0 {
		panic("float8 scale must be positive")
	}
	maxVal := f.Max()
	out := tensor.NewMat(m.R, m.C)
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		orow := out.Row(i)
		for j, v := range row {
			s := v * scale
			if s > maxVal {
				s = maxVal
			} else if s < -maxVal {
				s = -maxVal
			}
			orow[j] = DecodeFloat8(EncodeFloat8(s, f), f) / scale
		}
	}
	return out
}
