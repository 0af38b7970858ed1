package tensor

import "testing"

func TestMatMulSmall(t *testing.T) {
	a := NewMatFromData(2, 3, []float32{
		1, 2, 3,
		4, 5, 6,
	})
	b := NewMatFromData(3, 2, []float32{
		7, 8,
		9, 10,
		11, 12,
	})
	got := MatMul(a, b)
	want := []float32{58, 64, 139, 154}
	assertCloseSlice(t, got.Data, want, 0)
}

func TestMatMulTransBMatchesMatMul(t *testing.T) {
	a := NewMat(3, 5)
	b := NewMat(5, 4)
	FillRand(a, 7)
	FillRand(b, 11)

	want := MatMul(a, b)
	got := MatMulTransB(a, Transpose(b))
	assertCloseSlice(t, got.Data, want.Data, 1e-6)
}

func TestTransposeRoundTrip(t *testing.T) {
	m := NewMat(4, 3)
	FillRand(m, 3)
	back := Transpose(Transpose(m))
	assertCloseSlice(t, back.Data, m.Data, 0)
}

func TestAddRowVec(t *testing.T) {
	m := NewMatFromData(2, 3, []float32{1, 2, 3, 4, 5, 6})
	AddRowVec(m, []float32{10, 20, 30})
	assertCloseSlice(t, m.Data, []float32{11, 22, 33, 14, 25, 36}, 0)
}

func TestAbsMax(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
		want float32
	}{
		{"empty", nil, 0},
		{"all zero", []float32{0, 0, 0}, 0},
		{"positive", []float32{0.5, 2, 1}, 2},
		{"negative dominates", []float32{0.5, -3, 1}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AbsMax(tc.in); got != tc.want {
				t.Fatalf("AbsMax(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCloneIndependent(t *testing.T) {
	m := NewMatFromData(2, 2, []float32{1, 2, 3, 4})
	c := m.Clone()
	c.Set(0, 0, 99)
	if m.At(0, 0) != 1 {
		t.Fatalf("clone aliases original data")
	}
}

func assertCloseSlice(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %d != %d", len(got), len(want))
	}
	for i := range got {
		diff := got[i] - want[i]
		if diff < -tol || diff > tol {
			t.Fatalf("idx %d: got %v want %v", i, got[i], want[i])
		}
	}
}
