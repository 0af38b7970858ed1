package ckpt

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/affine/internal/affine"
)

// Save writes the manifest and the variables of the given store to a new
// checkpoint file at path. Variables are read under their positional keys
// "0" .. Len-1, matching the layer's serialization contract.
func Save(path string, man Manifest, store affine.Store) error {
	manData, err := json.Marshal(man)
	if err != nil {
		return fmt.Errorf("ckpt: encoding manifest: %w", err)
	}

	index := make([]indexEntry, 0, store.Len())
	var payload []byte
	for i := 0; i < store.Len(); i++ {
		k := strconv.Itoa(i)
		v, ok := store.Get(k)
		if !ok {
			return fmt.Errorf("ckpt: store has %d variables but key %q is missing", store.Len(), k)
		}
		// Keep every payload 8-aligned inside the section so mapped reads
		// can cast in place.
		for len(payload)%ckptAlign != 0 {
			payload = append(payload, 0)
		}
		offset := uint64(len(payload))
		payload = appendVariable(payload, v)

		index = append(index, indexEntry{
			Key:    k,
			DType:  v.DType.String(),
			Shape:  v.Shape,
			Offset: offset,
			Size:   uint64(len(payload)) - offset,
		})
	}
	indexData, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("ckpt: encoding variable index: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteSection(SectionManifest, 1, manData); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteSection(SectionVarIndex, 1, indexData); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteSection(SectionVarData, 1, payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Finalise(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func appendVariable(dst []byte, v affine.Variable) []byte {
	switch v.DType {
	case affine.I8:
		for _, b := range v.I8 {
			dst = append(dst, byte(b))
		}
	default:
		var buf [4]byte
		for _, f := range v.F32 {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
			dst = append(dst, buf[:]...)
		}
	}
	return dst
}

// Variables returns a store view over the file's variables. Reads decode
// from the mapped data; writes land in an in-memory overlay and are only
// persisted by passing the store to Save. The view must not be used after
// the file is closed.
func (f *File) Variables() affine.Store {
	return &fileStore{f: f}
}

type fileStore struct {
	f       *File
	overlay map[string]affine.Variable
}

func (s *fileStore) Len() int {
	n := len(s.f.index)
	for k := range s.overlay {
		if s.f.entry(k) == nil {
			n++
		}
	}
	return n
}

func (s *fileStore) Get(key string) (affine.Variable, bool) {
	if v, ok := s.overlay[key]; ok {
		return v, true
	}
	e := s.f.entry(key)
	if e == nil {
		return affine.Variable{}, false
	}
	return s.f.decodeVariable(e)
}

func (s *fileStore) Set(key string, v affine.Variable) {
	if s.overlay == nil {
		s.overlay = make(map[string]affine.Variable)
	}
	s.overlay[key] = v
}

func (f *File) entry(key string) *indexEntry {
	for i := range f.index {
		if f.index[i].Key == key {
			return &f.index[i]
		}
	}
	return nil
}

func (f *File) decodeVariable(e *indexEntry) (affine.Variable, bool) {
	sec := f.Section(SectionVarData)
	if sec == nil {
		return affine.Variable{}, false
	}
	data := f.SectionData(sec)
	if data == nil || e.Offset+e.Size > uint64(len(data)) {
		return affine.Variable{}, false
	}
	raw := data[e.Offset : e.Offset+e.Size]

	dtype, err := parseDType(e.DType)
	if err != nil {
		return affine.Variable{}, false
	}
	v := affine.Variable{DType: dtype, Shape: e.Shape}
	switch dtype {
	case affine.I8:
		v.I8 = make([]int8, len(raw))
		for i, b := range raw {
			v.I8[i] = int8(b)
		}
	default:
		if len(raw)%4 != 0 {
			return affine.Variable{}, false
		}
		v.F32 = make([]float32, len(raw)/4)
		for i := range v.F32 {
			v.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}
	return v, true
}
