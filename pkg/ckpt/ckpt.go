// Package ckpt implements the checkpoint container file format.
//
// A checkpoint is a single binary file: a fixed header, a section
// directory, and the sections themselves. Sections carry a JSON metadata
// blob, a JSON tensor index, and the raw float32 tensor payload. The format
// describes structure and data only; interpreting the metadata is the
// loader's concern.
package ckpt

import "errors"

// Format constants. The magic and major version must never change meaning.
const (
	// Magic is the file magic for all checkpoint containers.
	Magic = "CSQ\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1

	// CurrentMinor may add optional sections or fields.
	CurrentMinor uint16 = 0
)

type SectionType uint32

const (
	// SectionMeta holds the caller's JSON metadata blob.
	SectionMeta SectionType = 0x0001
	// SectionTensorIndex holds the JSON tensor index.
	SectionTensorIndex SectionType = 0x0002
	// SectionTensorData holds the concatenated float32 payloads.
	SectionTensorData SectionType = 0x0003
)

// Header is the fixed-size file header, stored little-endian.
type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

// Section is one entry of the section directory.
type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

// TensorInfo locates one named tensor inside the tensor-data section.
type TensorInfo struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

// NamedTensor is a tensor as handed to the writer or returned by the reader.
type NamedTensor struct {
	Name  string
	Shape []int
	Data  []float32
}

var (
	ErrInvalidMagic     = errors.New("ckpt: invalid magic")
	ErrUnsupportedMajor = errors.New("ckpt: unsupported major version")
	ErrCorruptFile      = errors.New("ckpt: corrupt file")
)

// Valid reports whether the header carries the right magic and a sane size.
func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic && h.HeaderSize >= headerSize && h.SectionCount > 0
}

// Compatible reports whether this reader understands the file's format.
func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}
