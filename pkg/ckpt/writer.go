package ckpt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
)

const (
	headerSize  = 40
	sectionSize = 24
)

// WriteFile writes a checkpoint container with the given metadata blob and
// tensors. The metadata must already be serialised JSON; the tensor index is
// derived from the tensors themselves. Versions are always stamped with the
// current format version.
func WriteFile(path string, meta []byte, tensors []NamedTensor) error {
	index := make([]TensorInfo, len(tensors))
	var dataSize uint64
	for i, t := range tensors {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return fmt.Errorf("ckpt: tensor %q: shape %v does not match %d values", t.Name, t.Shape, len(t.Data))
		}
		size := uint64(len(t.Data)) * 4
		index[i] = TensorInfo{
			Name:   t.Name,
			Shape:  append([]int(nil), t.Shape...),
			Offset: dataSize,
			Size:   size,
		}
		dataSize += size
	}
	indexJSON, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("ckpt: marshal tensor index: %w", err)
	}

	dirOffset := uint64(headerSize)
	metaOffset := dirOffset + 3*sectionSize
	indexOffset := metaOffset + uint64(len(meta))
	dataOffset := indexOffset + uint64(len(indexJSON))

	header := Header{
		Major:            CurrentMajor,
		Minor:            CurrentMinor,
		HeaderSize:       headerSize,
		SectionCount:     3,
		SectionDirOffset: dirOffset,
		FileSize:         dataOffset + dataSize,
	}
	copy(header.Magic[:], Magic)

	sections := []Section{
		{Type: uint32(SectionMeta), Version: 1, Offset: metaOffset, Size: uint64(len(meta))},
		{Type: uint32(SectionTensorIndex), Version: 1, Offset: indexOffset, Size: uint64(len(indexJSON))},
		{Type: uint32(SectionTensorData), Version: 1, Offset: dataOffset, Size: dataSize},
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ckpt: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	fail := func(err error) error {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("ckpt: write %s: %w", path, err)
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fail(err)
	}
	for _, s := range sections {
		if err := binary.Write(w, binary.LittleEndian, &s); err != nil {
			return fail(err)
		}
	}
	if _, err := w.Write(meta); err != nil {
		return fail(err)
	}
	if _, err := w.Write(indexJSON); err != nil {
		return fail(err)
	}
	var scratch [4]byte
	for _, t := range tensors {
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			if _, err := w.Write(scratch[:]); err != nil {
				return fail(err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ckpt: close %s: %w", path, err)
	}
	return nil
}
