// Package ckpt implements the layer checkpoint container.
//
// A checkpoint is a single, memory-mappable file holding a JSON manifest
// (identity plus layer configuration), a variable index and the raw
// variable payloads. It stores data only and never implies runtime
// behaviour.
package ckpt

// Container constants must never change.
const (
	// Magic is the file magic for all checkpoint containers.
	// It is encoded as "ACK\0".
	Magic = "ACK\x00"

	// CurrentMajor: any change indicates a breaking format change.
	CurrentMajor uint16 = 1

	// CurrentMinor: versions may add new optional sections or fields.
	CurrentMinor uint16 = 0
)

type SectionType uint32

const (
	SectionManifest SectionType = 0x0001
	SectionVarIndex SectionType = 0x0002
	SectionVarData  SectionType = 0x0003
)

// Section is one entry of the section directory.
type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s *Section) End() uint64 {
	return s.Offset + s.Size
}
