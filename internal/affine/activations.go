package affine

import (
	"fmt"
	"math"

	"github.com/samcharles93/affine/internal/tensor"
)

// Activation is an elementwise transform applied to the layer output,
// together with its derivative at the pre-activation value so the backward
// pass can chain through it. The layer treats activations as opaque; new
// ones can be supplied directly on the struct.
type Activation struct {
	Name  string
	Apply func(x float32) float32
	Deriv func(pre float32) float32
}

// ActivationByName resolves one of the built-in activations. The empty
// string and "linear" resolve to the identity.
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "", "linear":
		return Activation{
			Name:  "linear",
			Apply: func(x float32) float32 { return x },
			Deriv: func(float32) float32 { return 1 },
		}, nil
	case "relu":
		return Activation{
			Name: "relu",
			Apply: func(x float32) float32 {
				if x < 0 {
					return 0
				}
				return x
			},
			Deriv: func(pre float32) float32 {
				if pre < 0 {
					return 0
				}
				return 1
			},
		}, nil
	case "sigmoid":
		return Activation{
			Name:  "sigmoid",
			Apply: sigmoid,
			Deriv: func(pre float32) float32 {
				s := sigmoid(pre)
				return s * (1 - s)
			},
		}, nil
	case "tanh":
		return Activation{
			Name: "tanh",
			Apply: func(x float32) float32 {
				return float32(math.Tanh(float64(x)))
			},
			Deriv: func(pre float32) float32 {
				th := float32(math.Tanh(float64(pre)))
				return 1 - th*th
			},
		}, nil
	case "gelu":
		return Activation{
			Name:  "gelu",
			Apply: gelu,
			Deriv: geluDeriv,
		}, nil
	case "silu":
		return Activation{
			Name: "silu",
			Apply: func(x float32) float32 {
				return x * sigmoid(x)
			},
			Deriv: func(pre float32) float32 {
				s := sigmoid(pre)
				return s + pre*s*(1-s)
			},
		}, nil
	default:
		return Activation{}, fmt.Errorf("affine: unknown activation %q", name)
	}
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// gelu uses the tanh approximation.
func gelu(x float32) float32 {
	x64 := float64(x)
	inner := math.Sqrt(2/math.Pi) * (x64 + 0.044715*x64*x64*x64)
	return float32(0.5 * x64 * (1 + math.Tanh(inner)))
}

func geluDeriv(pre float32) float32 {
	x := float64(pre)
	c := math.Sqrt(2 / math.Pi)
	inner := c * (x + 0.044715*x*x*x)
	th := math.Tanh(inner)
	sech2 := 1 - th*th
	return float32(0.5*(1+th) + 0.5*x*sech2*c*(1+3*0.044715*x*x))
}

func applyActivation(act Activation, pre *tensor.Mat) *tensor.Mat {
	out := tensor.NewMat(pre.R, pre.C)
	for i, v := range pre.Data {
		out.Data[i] = act.Apply(v)
	}
	return out
}

// activationGrad chains upstream through the activation derivative at the
// saved pre-activation values.
func activationGrad(act Activation, pre, upstream *tensor.Mat) *tensor.Mat {
	out := tensor.NewMat(upstream.R, upstream.C)
	for i, g := range upstream.Data {
		out.Data[i] = g * act.Deriv(pre.Data[i])
	}
	return out
}
