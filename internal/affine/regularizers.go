package affine

import (
	"fmt"
	"math"

	"github.com/samcharles93/affine/internal/tensor"
)

// Regularizer computes a scalar loss contribution from a parameter matrix.
// The layer invokes it through RegularizationLoss; it never alters the
// parameters.
type Regularizer struct {
	Name string
	Loss func(m *tensor.Mat) float32
}

// RegularizerByName resolves one of the built-in regularizers. The empty
// string resolves to a nil-loss regularizer.
func RegularizerByName(name string) (Regularizer, error) {
	switch name {
	case "":
		return Regularizer{}, nil
	case "l1":
		return Regularizer{
			Name: "l1",
			Loss: func(m *tensor.Mat) float32 {
				var sum float32
				for _, v := range m.Data {
					if v < 0 {
						v = -v
					}
					sum += v
				}
				return 0.01 * sum
			},
		}, nil
	case "l2":
		return Regularizer{
			Name: "l2",
			Loss: func(m *tensor.Mat) float32 {
				var sum float32
				for _, v := range m.Data {
					sum += v * v
				}
				return 0.01 * sum
			},
		}, nil
	default:
		return Regularizer{}, fmt.Errorf("affine: unknown regularizer %q", name)
	}
}

// Constraint is a projection applied to a parameter matrix after updates,
// for example during ApplyConstraints.
type Constraint struct {
	Name    string
	Project func(m *tensor.Mat)
}

// ConstraintByName resolves one of the built-in constraints. The empty
// string resolves to a no-op constraint with an empty name.
func ConstraintByName(name string) (Constraint, error) {
	switch name {
	case "":
		return Constraint{}, nil
	case "non_neg":
		return Constraint{
			Name: "non_neg",
			Project: func(m *tensor.Mat) {
				for i, v := range m.Data {
					if v < 0 {
						m.Data[i] = 0
					}
				}
			},
		}, nil
	case "max_norm":
		return Constraint{
			Name:    "max_norm",
			Project: maxNorm(2),
		}, nil
	default:
		return Constraint{}, fmt.Errorf("affine: unknown constraint %q", name)
	}
}

// maxNorm rescales each column so its L2 norm does not exceed limit.
func maxNorm(limit float32) func(m *tensor.Mat) {
	return func(m *tensor.Mat) {
		for j := 0; j < m.C; j++ {
			var sum float32
			for i := 0; i < m.R; i++ {
				v := m.At(i, j)
				sum += v * v
			}
			norm := float32(math.Sqrt(float64(sum)))
			if norm <= limit || norm == 0 {
				continue
			}
			ratio := limit / norm
			for i := 0; i < m.R; i++ {
				m.Set(i, j, m.At(i, j)*ratio)
			}
		}
	}
}
