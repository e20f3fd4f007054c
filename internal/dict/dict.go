// Package dict implements the vocabulary table shared by the model, the
// generator and the CLI. It maps symbols to dense integer indices and
// reserves fixed slots for padding, end-of-sentence and unknown.
package dict

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	padSymbol = "<pad>"
	eosSymbol = "</s>"
	unkSymbol = "<unk>"
)

// Dictionary maps symbols to vocabulary indices. The three reserved symbols
// always occupy the first indices, so Pad(), Eos() and Unk() are stable
// across vocabularies.
type Dictionary struct {
	symbols []string
	indices map[string]int
}

// New returns a dictionary containing only the reserved symbols.
func New() *Dictionary {
	d := &Dictionary{indices: make(map[string]int)}
	d.Add(padSymbol)
	d.Add(eosSymbol)
	d.Add(unkSymbol)
	return d
}

// Load reads a dictionary in the usual one-symbol-per-line text format.
// A line may carry a trailing frequency count, which is ignored.
func Load(r io.Reader) (*Dictionary, error) {
	d := New()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		d.Add(fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dict: read: %w", err)
	}
	return d, nil
}

// FromSymbols rebuilds a dictionary from a persisted symbol list. The list
// must begin with the reserved symbols in their canonical order.
func FromSymbols(symbols []string) (*Dictionary, error) {
	if len(symbols) < 3 || symbols[0] != padSymbol || symbols[1] != eosSymbol || symbols[2] != unkSymbol {
		return nil, fmt.Errorf("dict: symbol list does not start with reserved symbols")
	}
	d := New()
	for _, s := range symbols[3:] {
		d.Add(s)
	}
	if d.Len() != len(symbols) {
		return nil, fmt.Errorf("dict: symbol list contains duplicates: %d unique of %d", d.Len(), len(symbols))
	}
	return d, nil
}

// Symbols returns the symbol table in index order.
func (d *Dictionary) Symbols() []string {
	return append([]string(nil), d.symbols...)
}

// Add inserts a symbol if not already present and returns its index.
func (d *Dictionary) Add(sym string) int {
	if idx, ok := d.indices[sym]; ok {
		return idx
	}
	idx := len(d.symbols)
	d.symbols = append(d.symbols, sym)
	d.indices[sym] = idx
	return idx
}

// Len returns the vocabulary size.
func (d *Dictionary) Len() int { return len(d.symbols) }

// Pad returns the padding index.
func (d *Dictionary) Pad() int { return d.indices[padSymbol] }

// Eos returns the end-of-sentence index.
func (d *Dictionary) Eos() int { return d.indices[eosSymbol] }

// Unk returns the unknown-symbol index.
func (d *Dictionary) Unk() int { return d.indices[unkSymbol] }

// Index returns the index for sym, or the unknown index if absent.
func (d *Dictionary) Index(sym string) int {
	if idx, ok := d.indices[sym]; ok {
		return idx
	}
	return d.Unk()
}

// Symbol returns the symbol stored at idx.
func (d *Dictionary) Symbol(idx int) (string, error) {
	if idx < 0 || idx >= len(d.symbols) {
		return "", fmt.Errorf("dict: index %d out of range for vocabulary of %d", idx, len(d.symbols))
	}
	return d.symbols[idx], nil
}

// Encode tokenizes text on whitespace and appends the end-of-sentence index.
func (d *Dictionary) Encode(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, d.Index(f))
	}
	return append(out, d.Eos())
}

// Decode renders token ids as whitespace-joined symbols, stopping at the
// first end-of-sentence and skipping padding.
func (d *Dictionary) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id == d.Eos() {
			break
		}
		if id == d.Pad() {
			continue
		}
		sym, err := d.Symbol(id)
		if err != nil {
			sym = unkSymbol
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(sym)
	}
	return sb.String()
}
