package affine

import "fmt"

// DType identifies the element type of a stored variable.
type DType uint8

const (
	// F32 is a float32 buffer.
	F32 DType = iota
	// I8 is an int8 buffer, used for quantized kernels.
	I8
)

func (d DType) String() string {
	switch d {
	case F32:
		return "f32"
	case I8:
		return "i8"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// Variable is a named numeric buffer exchanged with a Store. Exactly one of
// F32 or I8 is populated, matching DType.
type Variable struct {
	DType DType
	Shape []int
	F32   []float32
	I8    []int8
}

// Elems returns the number of elements implied by the shape.
func (v Variable) Elems() int {
	n := 1
	for _, d := range v.Shape {
		n *= d
	}
	return n
}

// Store is the ordered variable store contract used by SaveVariables and
// LoadVariables. Keys are positional: "0", "1", ... in the fixed per-mode
// order. The concrete implementation decides persistence; ckpt.File
// implements this contract on disk.
type Store interface {
	// Len returns the number of stored variables.
	Len() int
	// Get returns the variable stored under key.
	Get(key string) (Variable, bool)
	// Set stores the variable under key, replacing any previous value.
	Set(key string, v Variable)
}

// MemStore is an in-memory Store, mainly for tests and for staging
// variables before writing a checkpoint file.
type MemStore struct {
	vars map[string]Variable
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{vars: make(map[string]Variable)}
}

func (s *MemStore) Len() int { return len(s.vars) }

func (s *MemStore) Get(key string) (Variable, bool) {
	v, ok := s.vars[key]
	return v, ok
}

func (s *MemStore) Set(key string, v Variable) {
	s.vars[key] = v
}
