package quantize

import (
	"math"
	"testing"

	"github.com/samcharles93/affine/internal/tensor"
)

func TestFloat8EncodeDecodeExact(t *testing.T) {
	// Values exactly representable in both formats must round-trip bit-exact.
	exact := []float32{0, 1, -1, 0.5, -0.5, 2, -2, 1.5, 3, 0.25, -0.25, 8, 448.0 / 448, 64}
	for _, f := range []Float8Format{Float8E4M3, Float8E5M2} {
		for _, v := range exact {
			got := DecodeFloat8(EncodeFloat8(v, f), f)
			if got != v {
				t.Fatalf("%v: %v round-tripped to %v", f, v, got)
			}
		}
	}
}

func TestFloat8Saturation(t *testing.T) {
	if got := DecodeFloat8(EncodeFloat8(1e10, Float8E4M3), Float8E4M3); got != 448 {
		t.Fatalf("e4m3 saturation: got %v, want 448", got)
	}
	if got := DecodeFloat8(EncodeFloat8(-1e10, Float8E5M2), Float8E5M2); got != -57344 {
		t.Fatalf("e5m2 saturation: got %v, want -57344", got)
	}
}

func TestFloat8MaxValues(t *testing.T) {
	if got := DecodeFloat8(EncodeFloat8(448, Float8E4M3), Float8E4M3); got != 448 {
		t.Fatalf("e4m3 max: got %v", got)
	}
	if got := DecodeFloat8(EncodeFloat8(57344, Float8E5M2), Float8E5M2); got != 57344 {
		t.Fatalf("e5m2 max: got %v", got)
	}
}

func TestFloat8RelativeError(t *testing.T) {
	// Normal-range values must decode within half a mantissa step:
	// 2^-4 relative for e4m3, 2^-3 for e5m2.
	for _, tc := range []struct {
		f      Float8Format
		relTol float64
	}{
		{Float8E4M3, 1.0 / 16},
		{Float8E5M2, 1.0 / 8},
	} {
		for _, v := range []float32{0.3, 1.7, -2.9, 13.13, 100.5, -333} {
			got := DecodeFloat8(EncodeFloat8(v, tc.f), tc.f)
			rel := math.Abs(float64(got-v)) / math.Abs(float64(v))
			if rel > tc.relTol {
				t.Fatalf("%v: %v decoded as %v, relative error %v", tc.f, v, got, rel)
			}
		}
	}
}

func TestFloat8Subnormals(t *testing.T) {
	// Smallest e4m3 subnormal is 2^-9.
	v := float32(math.Ldexp(1, -9))
	if got := DecodeFloat8(EncodeFloat8(v, Float8E4M3), Float8E4M3); got != v {
		t.Fatalf("e4m3 smallest subnormal: got %v, want %v", got, v)
	}
	// Below half of it, round to zero.
	tiny := float32(math.Ldexp(1, -11))
	if got := DecodeFloat8(EncodeFloat8(tiny, Float8E4M3), Float8E4M3); got != 0 {
		t.Fatalf("e4m3 underflow: got %v, want 0", got)
	}
}

func TestQuantizeDequantizeFloat8(t *testing.T) {
	m := tensor.NewMat(4, 4)
	tensor.FillRand(m, 21)
	amax := tensor.AbsMax(m.Data)
	scale := Float8E4M3.Max() / amax

	out := QuantizeDequantizeFloat8(m, scale, Float8E4M3)
	for i := range m.Data {
		diff := math.Abs(float64(out.Data[i] - m.Data[i]))
		// Scaled to the format maximum, the error is bounded by half a
		// mantissa step of the largest magnitude.
		if diff > float64(amax)/16 {
			t.Fatalf("idx %d: %v vs %v", i, out.Data[i], m.Data[i])
		}
	}
}

func TestComputeFloat8Scale(t *testing.T) {
	cases := []struct {
		name       string
		historyMax float32
		current    float32
		want       float32
	}{
		{"normal update", 2, 1, 448.0 / 2},
		{"zero history keeps current", 0, 3, 3},
		{"negative history keeps current", -1, 3, 3},
		{"inf history keeps current", float32(math.Inf(1)), 5, 5},
		{"nan history keeps current", float32(math.NaN()), 5, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeFloat8Scale(tc.historyMax, tc.current, 448)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpdateAmaxHistory(t *testing.T) {
	hist := []float32{3, 2, 1}
	m := tensor.NewMatFromData(1, 2, []float32{-5, 4})
	UpdateAmaxHistory(hist, m)
	want := []float32{5, 3, 2}
	for i := range want {
		if hist[i] != want[i] {
			t.Fatalf("history[%d] = %v, want %v", i, hist[i], want[i])
		}
	}
	if got := HistoryMax(hist); got != 5 {
		t.Fatalf("HistoryMax = %v, want 5", got)
	}
}
