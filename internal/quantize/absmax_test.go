package quantize

import (
	"testing"

	"github.com/samcharles93/affine/internal/tensor"
)

func TestAbsMaxQuantizeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rng  Range
	}{
		{"int8", RangeInt8},
		{"int4", RangeInt4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tensor.NewMat(6, 4)
			tensor.FillRand(w, 42)

			q, scales := AbsMaxQuantize(w, AxisRows, tc.rng)
			back := Dequantize(q, scales, AxisRows)

			// Reversible up to one quantization step per element.
			for j := 0; j < w.C; j++ {
				if scales[j] <= 0 {
					t.Fatalf("scale[%d] = %v, want > 0", j, scales[j])
				}
			}
			for i := 0; i < w.R; i++ {
				for j := 0; j < w.C; j++ {
					tol := 1 / (2 * scales[j])
					diff := back.At(i, j) - w.At(i, j)
					if diff < -tol || diff > tol {
						t.Fatalf("(%d,%d): dequant %v vs %v exceeds half step %v",
							i, j, back.At(i, j), w.At(i, j), tol)
					}
				}
			}
		})
	}
}

func TestAbsMaxQuantizePerRow(t *testing.T) {
	x := tensor.NewMatFromData(2, 3, []float32{
		1, -2, 0.5,
		10, 5, -20,
	})
	q, scales := AbsMaxQuantize(x, AxisCols, RangeInt8)
	if len(scales) != 2 {
		t.Fatalf("per-row scales: got %d, want 2", len(scales))
	}
	// Row maxima are 2 and 20, so scales are 127/2 and 127/20.
	assertClose(t, scales[0], 127.0/2, 1e-6)
	assertClose(t, scales[1], 127.0/20, 1e-6)
	if got := q.Row(0)[1]; got != -127 {
		t.Fatalf("row 0 max-magnitude element: got %d, want -127", got)
	}
	if got := q.Row(1)[2]; got != -127 {
		t.Fatalf("row 1 max-magnitude element: got %d, want -127", got)
	}
}

func TestAbsMaxQuantizeZeroMatrix(t *testing.T) {
	w := tensor.NewMat(3, 2)
	q, scales := AbsMaxQuantize(w, AxisRows, RangeInt8)
	for j, s := range scales {
		if s != 1 {
			t.Fatalf("scale[%d] = %v for all-zero input, want 1", j, s)
		}
	}
	for _, v := range q.Data {
		if v != 0 {
			t.Fatalf("quantized all-zero matrix contains %d", v)
		}
	}
}

func TestAbsMaxQuantizeStable(t *testing.T) {
	w := tensor.NewMat(8, 3)
	tensor.FillRand(w, 7)

	q1, s1 := AbsMaxQuantize(w, AxisRows, RangeInt8)
	d1 := Dequantize(q1, s1, AxisRows)
	q2, s2 := AbsMaxQuantize(d1, AxisRows, RangeInt8)
	d2 := Dequantize(q2, s2, AxisRows)
	q3, s3 := AbsMaxQuantize(d2, AxisRows, RangeInt8)

	// Once a matrix has been through one quantize/dequantize cycle,
	// repeating the cycle must not drift.
	for j := range s2 {
		assertClose(t, s3[j]/s2[j], 1, 1e-5)
	}
	for i := range q2.Data {
		if q2.Data[i] != q3.Data[i] {
			t.Fatalf("idx %d: requantization drift %d -> %d", i, q2.Data[i], q3.Data[i])
		}
	}
}

func TestClampRound(t *testing.T) {
	cases := []struct {
		in   float32
		rng  Range
		want int8
	}{
		{0.4, RangeInt8, 0},
		{0.5, RangeInt8, 1},
		{-200, RangeInt8, -127},
		{200, RangeInt8, 127},
		{7.9, RangeInt4, 7},
		{-8.9, RangeInt4, -8},
	}
	for _, tc := range cases {
		if got := clampRound(tc.in, tc.rng); got != tc.want {
			t.Fatalf("clampRound(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func assertClose(t *testing.T, got, want, tol float32) {
	t.Helper()
	diff := got - want
	if diff < -tol || diff > tol {
		t.Fatalf("got %v want %v (tol %v)", got, want, tol)
	}
}
