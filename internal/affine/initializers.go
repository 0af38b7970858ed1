package affine

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/affine/internal/tensor"
)

// Initializer fills a freshly allocated (r,c) matrix. Bias vectors are
// initialised as (1,units) matrices. The rng makes builds reproducible for
// a fixed seed.
type Initializer struct {
	Name string
	Fill func(r, c int, rng *rand.Rand) *tensor.Mat
}

// InitializerByName resolves one of the built-in initializers.
func InitializerByName(name string) (Initializer, error) {
	switch name {
	case "zeros":
		return Initializer{
			Name: "zeros",
			Fill: func(r, c int, _ *rand.Rand) *tensor.Mat {
				return tensor.NewMat(r, c)
			},
		}, nil
	case "ones":
		return Initializer{
			Name: "ones",
			Fill: func(r, c int, _ *rand.Rand) *tensor.Mat {
				m := tensor.NewMat(r, c)
				for i := range m.Data {
					m.Data[i] = 1
				}
				return m
			},
		}, nil
	case "glorot_uniform":
		return Initializer{
			Name: "glorot_uniform",
			Fill: func(r, c int, rng *rand.Rand) *tensor.Mat {
				limit := float32(math.Sqrt(6.0 / float64(r+c)))
				return uniformMat(r, c, limit, rng)
			},
		}, nil
	case "he_uniform":
		return Initializer{
			Name: "he_uniform",
			Fill: func(r, c int, rng *rand.Rand) *tensor.Mat {
				limit := float32(math.Sqrt(6.0 / float64(r)))
				return uniformMat(r, c, limit, rng)
			},
		}, nil
	default:
		return Initializer{}, fmt.Errorf("affine: unknown initializer %q", name)
	}
}

func uniformMat(r, c int, limit float32, rng *rand.Rand) *tensor.Mat {
	m := tensor.NewMat(r, c)
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * limit
	}
	return m
}
