package tensor

// MatMul computes a @ b and returns a newly allocated result.
// a is (m,k), b is (k,n); the result is (m,n).
func MatMul(a, b *Mat) *Mat {
	if a.C != b.R {
		panic("matmul inner dimension mismatch")
	}
	out := NewMat(a.R, b.C)
	for i := 0; i < a.R; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for k := 0; k < a.C; k++ {
			av := arow[k]
			if av == 0 {
				continue
			}
			brow := b.Row(k)
			for j := 0; j < b.C; j++ {
				orow[j] += av * brow[j]
			}
		}
	}
	return out
}

// MatMulTransB computes a @ b^T and returns a newly allocated result.
// a is (m,k), b is (n,k); the result is (m,n).
func MatMulTransB(a, b *Mat) *Mat {
	if a.C != b.C {
		panic("matmul inner dimension mismatch")
	}
	out := NewMat(a.R, b.R)
	for i := 0; i < a.R; i++ {
		arow := a.Row(i)
		orow := out.Row(i)
		for j := 0; j < b.R; j++ {
			orow[j] = Dot(arow, b.Row(j))
		}
	}
	return out
}

// MatMulInt8 computes a @ b over int8 operands, accumulating in int32 and
// returning the raw integer products as float32. Callers rescale by the
// product of the operand scales.
func MatMulInt8(a, b *Int8Mat) *Mat {
	if a.C != b.R {
		panic("matmul inner dimension mismatch")
	}
	out := NewMat(a.R, b.C)
	acc := make([]int32, b.C)
	for i := 0; i < a.R; i++ {
		arow := a.Row(i)
		clear(acc)
		for k := 0; k < a.C; k++ {
			av := int32(arow[k])
			if av == 0 {
				continue
			}
			brow := b.Row(k)
			for j := 0; j < b.C; j++ {
				acc[j] += av * int32(brow[j])
			}
		}
		orow := out.Row(i)
		for j, v := range acc {
			orow[j] = float32(v)
		}
	}
	return out
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// AddMat adds src to dst element-wise. Both matrices must share a shape.
func AddMat(dst, src *Mat) {
	if dst.R != src.R || dst.C != src.C {
		panic("shape mismatch in AddMat")
	}
	for i := 0; i < dst.R; i++ {
		Add(dst.Row(i), src.Row(i))
	}
}

// AddRowVec adds the vector v to every row of m. len(v) must equal m.C.
func AddRowVec(m *Mat, v []float32) {
	if len(v) != m.C {
		panic("vector length mismatch in AddRowVec")
	}
	for i := 0; i < m.R; i++ {
		Add(m.Row(i), v)
	}
}

// Scale multiplies every element of m by s in place.
func Scale(m *Mat, s float32) {
	for i := range m.Data {
		m.Data[i] *= s
	}
}

// Transpose returns a newly allocated transpose of m.
func Transpose(m *Mat) *Mat {
	out := NewMat(m.C, m.R)
	for i := 0; i < m.R; i++ {
		row := m.Row(i)
		for j := 0; j < m.C; j++ {
			out.Row(j)[i] = row[j]
		}
	}
	return out
}

// AbsMax returns the maximum absolute value in v, or 0 for an empty slice.
func AbsMax(v []float32) float32 {
	var maxAbs float32
	for _, x := range v {
		if x < 0 {
			x = -x
		}
		if x > maxAbs {
			maxAbs = x
		}
	}
	return maxAbs
}
