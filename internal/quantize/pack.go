package quantize

import "github.com/samcharles93/affine/internal/tensor"

// int4SignTable maps a 4-bit two's-complement nibble to its signed value.
var int4SignTable = [16]int8{
	0, 1, 2, 3, 4, 5, 6, 7,
	-8, -7, -6, -5, -4, -3, -2, -1,
}

// PackedRows returns the packed row count for an int4 matrix with the given
// unpacked row count. The original row count cannot be recovered from the
// packed shape when it is odd, so callers must retain it separately.
func PackedRows(rows int) int {
	return (rows + 1) / 2
}

// PackInt4 packs pairs of rows of an int8 matrix holding int4 values in
// [-8,7] into single bytes: row 2i goes into the low nibble, row 2i+1 into
// the high nibble. An odd final row is paired with a zero-filled partner.
// Values outside the int4 range panic, they indicate a quantization bug
// upstream.
func PackInt4(q *tensor.Int8Mat) *tensor.Int8Mat {
	packed := tensor.NewInt8Mat(PackedRows(q.R), q.C)
	for p := 0; p < packed.R; p++ {
		lo := q.Row(2 * p)
		var hi []int8
		if 2*p+1 < q.R {
			hi = q.Row(2*p + 1)
		}
		prow := packed.Row(p)
		for j := 0; j < q.C; j++ {
			b := nibble(lo[j])
			if hi != nil {
				b |= nibble(hi[j]) << 4
			}
			prow[j] = int8(b)
		}
	}
	return packed
}

// UnpackInt4 reverses PackInt4, sign-extending each nibble back to an int8
// value and truncating to the original row count.
func UnpackInt4(packed *tensor.Int8Mat, rows int) *tensor.Int8Mat {
	if rows < 0 || PackedRows(rows) != packed.R {
		panic("unpacked row count does not match packed shape")
	}
	out := tensor.NewInt8Mat(rows, packed.C)
	for p := 0; p < packed.R; p++ {
		prow := packed.Row(p)
		lo := out.Row(2 * p)
		var hi []int8
		if 2*p+1 < rows {
			hi = out.Row(2*p + 1)
		}
		for j, b := range prow {
			lo[j] = int4SignTable[byte(b)&0x0F]
			if hi != nil {
				hi[j] = b >> 4 // arithmetic shift sign-extends the high nibble
			}
		}
	}
	return out
}

func nibble(v int8) byte {
	if v < -8 || v > 7 {
		panic("value outside int4 range")
	}
	return byte(v) & 0x0F
}
