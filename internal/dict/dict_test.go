package dict

import (
	"strings"
	"testing"
)

func TestNewReservesFixedSlots(t *testing.T) {
	d := New()
	if d.Len() != 3 {
		t.Fatalf("new dictionary has %d symbols", d.Len())
	}
	if d.Pad() != 0 || d.Eos() != 1 || d.Unk() != 2 {
		t.Fatalf("reserved indices: pad=%d eos=%d unk=%d", d.Pad(), d.Eos(), d.Unk())
	}
}

func TestLoadIgnoresCountsAndBlanks(t *testing.T) {
	src := "hello 412\nworld 87\n\n  \nhello 412\n!\n"
	d, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Len() != 6 {
		t.Fatalf("vocab size: got %d want 6", d.Len())
	}
	if d.Index("hello") != 3 || d.Index("world") != 4 || d.Index("!") != 5 {
		t.Fatalf("unexpected indices: hello=%d world=%d !=%d",
			d.Index("hello"), d.Index("world"), d.Index("!"))
	}
}

func TestIndexFallsBackToUnk(t *testing.T) {
	d := New()
	if got := d.Index("missing"); got != d.Unk() {
		t.Fatalf("got %d want unk %d", got, d.Unk())
	}
}

func TestAddIsIdempotent(t *testing.T) {
	d := New()
	a := d.Add("x")
	b := d.Add("x")
	if a != b {
		t.Fatalf("duplicate add returned %d then %d", a, b)
	}
	if d.Len() != 4 {
		t.Fatalf("vocab size: got %d want 4", d.Len())
	}
}

func TestEncodeAppendsEos(t *testing.T) {
	d := New()
	d.Add("a")
	d.Add("b")

	got := d.Encode("a  b   unknown")
	want := []int{3, 4, d.Unk(), d.Eos()}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDecodeStopsAtEosAndSkipsPad(t *testing.T) {
	d := New()
	d.Add("a")
	d.Add("b")

	got := d.Decode([]int{3, d.Pad(), 4, d.Eos(), 3})
	if got != "a b" {
		t.Fatalf("got %q want %q", got, "a b")
	}
}

func TestSymbolOutOfRange(t *testing.T) {
	d := New()
	if _, err := d.Symbol(99); err == nil {
		t.Fatal("expected error")
	}
	if _, err := d.Symbol(-1); err == nil {
		t.Fatal("expected error")
	}
}

func TestFromSymbolsRoundTrip(t *testing.T) {
	d := New()
	d.Add("alpha")
	d.Add("beta")

	rebuilt, err := FromSymbols(d.Symbols())
	if err != nil {
		t.Fatalf("from symbols: %v", err)
	}
	if rebuilt.Len() != d.Len() {
		t.Fatalf("size: got %d want %d", rebuilt.Len(), d.Len())
	}
	if rebuilt.Index("beta") != d.Index("beta") {
		t.Fatal("indices changed across round trip")
	}
}

func TestFromSymbolsRejectsBadLists(t *testing.T) {
	cases := [][]string{
		nil,
		{"<pad>", "</s>"},
		{"</s>", "<pad>", "<unk>"},
		{"<pad>", "</s>", "<unk>", "dup", "dup"},
	}
	for i, symbols := range cases {
		if _, err := FromSymbols(symbols); err == nil {
			t.Fatalf("case %d: expected error for %v", i, symbols)
		}
	}
}
