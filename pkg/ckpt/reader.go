package ckpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
)

// File is a parsed checkpoint container.
type File struct {
	Header   Header
	Sections []Section
	Meta     []byte
	Index    []TensorInfo

	data []byte
}

// ReadFile parses and validates a checkpoint container.
func ReadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ckpt: read %s: %w", path, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the header", ErrCorruptFile, len(raw))
	}

	var f File
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), binary.LittleEndian, &f.Header); err != nil {
		return nil, fmt.Errorf("ckpt: parse header: %w", err)
	}
	if !f.Header.Valid() {
		return nil, ErrInvalidMagic
	}
	if !f.Header.Compatible() {
		return nil, fmt.Errorf("%w: file is major %d, reader supports %d", ErrUnsupportedMajor, f.Header.Major, CurrentMajor)
	}
	if f.Header.FileSize != uint64(len(raw)) {
		return nil, fmt.Errorf("%w: header claims %d bytes, file has %d", ErrCorruptFile, f.Header.FileSize, len(raw))
	}

	dirEnd := f.Header.SectionDirOffset + uint64(f.Header.SectionCount)*sectionSize
	if f.Header.SectionDirOffset < headerSize || dirEnd > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: section directory out of bounds", ErrCorruptFile)
	}
	f.Sections = make([]Section, f.Header.SectionCount)
	if err := binary.Read(bytes.NewReader(raw[f.Header.SectionDirOffset:dirEnd]), binary.LittleEndian, f.Sections); err != nil {
		return nil, fmt.Errorf("ckpt: parse section directory: %w", err)
	}

	sectionBody := func(s Section) ([]byte, error) {
		end := s.Offset + s.Size
		if s.Offset > uint64(len(raw)) || end > uint64(len(raw)) || end < s.Offset {
			return nil, fmt.Errorf("%w: section type %d out of bounds", ErrCorruptFile, s.Type)
		}
		return raw[s.Offset:end], nil
	}
	for _, s := range f.Sections {
		body, err := sectionBody(s)
		if err != nil {
			return nil, err
		}
		switch SectionType(s.Type) {
		case SectionMeta:
			f.Meta = body
		case SectionTensorIndex:
			if err := json.Unmarshal(body, &f.Index); err != nil {
				return nil, fmt.Errorf("ckpt: parse tensor index: %w", err)
			}
		case SectionTensorData:
			f.data = body
		}
		// unknown section types are skipped; minor versions may add them
	}
	if f.Meta == nil || f.Index == nil || f.data == nil {
		return nil, fmt.Errorf("%w: missing required section", ErrCorruptFile)
	}
	return &f, nil
}

// Tensor decodes the payload of one index entry.
func (f *File) Tensor(info TensorInfo) ([]float32, error) {
	end := info.Offset + info.Size
	if end > uint64(len(f.data)) || info.Size%4 != 0 {
		return nil, fmt.Errorf("%w: tensor %q payload out of bounds", ErrCorruptFile, info.Name)
	}
	body := f.data[info.Offset:end]
	out := make([]float32, len(body)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return out, nil
}

// Tensors decodes every tensor in index order.
func (f *File) Tensors() ([]NamedTensor, error) {
	out := make([]NamedTensor, len(f.Index))
	for i, info := range f.Index {
		data, err := f.Tensor(info)
		if err != nil {
			return nil, err
		}
		out[i] = NamedTensor{Name: info.Name, Shape: info.Shape, Data: data}
	}
	return out, nil
}
