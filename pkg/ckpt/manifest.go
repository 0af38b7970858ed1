package ckpt

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/affine/internal/affine"
)

// Manifest identifies a checkpoint and records the layer configuration
// needed to rebuild the layer its variables belong to.
type Manifest struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Layer     affine.Config `json:"layer"`
}

// NewManifest stamps a fresh manifest for the given layer configuration.
func NewManifest(cfg affine.Config) Manifest {
	return Manifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Layer:     cfg,
	}
}

// indexEntry locates one variable payload inside the var data section.
// Offset is relative to the section start.
type indexEntry struct {
	Key    string `json:"key"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

func (f *File) decodeManifest() error {
	sec := f.Section(SectionManifest)
	if sec == nil {
		return fmt.Errorf("%w: manifest", ErrMissingSection)
	}
	if err := json.Unmarshal(f.SectionData(sec), &f.manifest); err != nil {
		return fmt.Errorf("%w: manifest: %v", ErrCorruptFile, err)
	}
	return nil
}

func (f *File) decodeIndex() error {
	sec := f.Section(SectionVarIndex)
	if sec == nil {
		return fmt.Errorf("%w: variable index", ErrMissingSection)
	}
	if err := json.Unmarshal(f.SectionData(sec), &f.index); err != nil {
		return fmt.Errorf("%w: variable index: %v", ErrCorruptFile, err)
	}

	data := f.Section(SectionVarData)
	if data == nil {
		return fmt.Errorf("%w: variable data", ErrMissingSection)
	}
	for i := range f.index {
		e := &f.index[i]
		end := e.Offset + e.Size
		if end < e.Offset || end > data.Size {
			return fmt.Errorf("%w: variable %q out of bounds", ErrCorruptFile, e.Key)
		}
		if _, err := parseDType(e.DType); err != nil {
			return fmt.Errorf("%w: variable %q: %v", ErrCorruptFile, e.Key, err)
		}
	}
	return nil
}

func parseDType(s string) (affine.DType, error) {
	switch s {
	case "f32":
		return affine.F32, nil
	case "i8":
		return affine.I8, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}
