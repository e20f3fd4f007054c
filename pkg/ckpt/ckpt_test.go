package ckpt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.csq")
	meta := []byte(`{"model_version":2}`)
	tensors := []NamedTensor{
		{Name: "a.weight", Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		{Name: "a.bias", Shape: []int{3}, Data: []float32{-1, 0, 1.5}},
		{Name: "empty", Shape: []int{0}, Data: nil},
	}
	if err := WriteFile(path, meta, tensors); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Header.Major != CurrentMajor || f.Header.Minor != CurrentMinor {
		t.Fatalf("version: %d.%d", f.Header.Major, f.Header.Minor)
	}
	if string(f.Meta) != string(meta) {
		t.Fatalf("meta: got %q", f.Meta)
	}

	got, err := f.Tensors()
	if err != nil {
		t.Fatalf("tensors: %v", err)
	}
	if len(got) != len(tensors) {
		t.Fatalf("tensor count: got %d want %d", len(got), len(tensors))
	}
	for i, want := range tensors {
		if got[i].Name != want.Name {
			t.Fatalf("tensor %d: name %q want %q", i, got[i].Name, want.Name)
		}
		if len(got[i].Data) != len(want.Data) {
			t.Fatalf("tensor %q: %d values want %d", want.Name, len(got[i].Data), len(want.Data))
		}
		for j := range want.Data {
			if got[i].Data[j] != want.Data[j] {
				t.Fatalf("tensor %q value %d: got %g want %g", want.Name, j, got[i].Data[j], want.Data[j])
			}
		}
	}
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.csq")
	err := WriteFile(path, nil, []NamedTensor{
		{Name: "w", Shape: []int{2, 2}, Data: []float32{1, 2, 3}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("partial file left behind")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.csq")
	junk := make([]byte, 128)
	copy(junk, "not a checkpoint")
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("got %v, want ErrInvalidMagic", err)
	}
}

func TestReadRejectsTruncation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.csq")
	if err := WriteFile(path, []byte("{}"), []NamedTensor{
		{Name: "w", Shape: []int{2}, Data: []float32{1, 2}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	short := filepath.Join(dir, "short.csq")
	if err := os.WriteFile(short, raw[:len(raw)-4], 0o644); err != nil {
		t.Fatalf("write truncated: %v", err)
	}
	if _, err := ReadFile(short); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("got %v, want ErrCorruptFile", err)
	}

	tiny := filepath.Join(dir, "tiny.csq")
	if err := os.WriteFile(tiny, raw[:8], 0o644); err != nil {
		t.Fatalf("write tiny: %v", err)
	}
	if _, err := ReadFile(tiny); !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("got %v, want ErrCorruptFile", err)
	}
}

func TestHeaderCompatible(t *testing.T) {
	h := Header{Major: CurrentMajor}
	if !h.Compatible() {
		t.Fatal("current major should be compatible")
	}
	h.Major = CurrentMajor + 1
	if h.Compatible() {
		t.Fatal("future major should not be compatible")
	}
}
