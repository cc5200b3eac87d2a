package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicateSymbol = errors.New("market: duplicate symbol")
	ErrEmptySymbol     = errors.New("market: empty symbol")
	ErrInvalidAddress  = errors.New("market: invalid address")
)

// Entry is one symbol-keyed element of a Catalog.
type Entry[T any] struct {
	Symbol string
	Spec   T
}

// Catalog is an ordered symbol -> spec sequence. The zero value is empty and
// ready to use.
type Catalog[T any] struct {
	entries []Entry[T]
	index   map[string]int
}

// NewCatalog builds a catalog from entries, rejecting empty and duplicate symbols.
func NewCatalog[T any](entries ...Entry[T]) (Catalog[T], error) {
	var c Catalog[T]
	for _, e := range entries {
		if err := c.Add(e.Symbol, e.Spec); err != nil {
			return Catalog[T]{}, err
		}
	}
	return c, nil
}

// Add appends symbol at the end of the catalog.
func (c *Catalog[T]) Add(symbol string, spec T) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if _, ok := c.index[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
	}
	c.index[symbol] = len(c.entries)
	c.entries = append(c.entries, Entry[T]{Symbol: symbol, Spec: spec})
	return nil
}

// Get returns the spec stored for symbol.
func (c Catalog[T]) Get(symbol string) (T, bool) {
	idx, ok := c.index[symbol]
	if !ok {
		var zero T
		return zero, false
	}
	return c.entries[idx].Spec, true
}

// Entries returns a copy of the catalog in insertion order.
func (c Catalog[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(c.entries))
	copy(out, c.entries)
	return out
}

// Symbols returns the catalog symbols in insertion order.
func (c Catalog[T]) Symbols() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Symbol
	}
	return out
}

func (c Catalog[T]) Len() int {
	return len(c.entries)
}

// DirectoryEntry is one symbol -> address pair.
type DirectoryEntry struct {
	Symbol  string
	Address common.Address
}

// Directory is an ordered, read-only view of symbol -> address. It backs both
// the provisioned-address directory and the price aggregator directory.
type Directory struct {
	entries []DirectoryEntry
	index   map[string]int
}

// NewDirectory builds a directory from entries, rejecting empty and duplicate
// symbols.
func NewDirectory(entries ...DirectoryEntry) (Directory, error) {
	var d Directory
	for _, e := range entries {
		if err := d.Set(e.Symbol, e.Address); err != nil {
			return Directory{}, err
		}
	}
	return d, nil
}

// ParseDirectory builds a directory from hex address strings.
func ParseDirectory(pairs [][2]string) (Directory, error) {
	var d Directory
	for _, p := range pairs {
		addr, err := ParseAddress(p[1])
		if err != nil {
			return Directory{}, fmt.Errorf("%s: %w", p[0], err)
		}
		if err := d.Set(p[0], addr); err != nil {
			return Directory{}, err
		}
	}
	return d, nil
}

// Set appends symbol. Directories are built once and then only read.
func (d *Directory) Set(symbol string, addr common.Address) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if _, ok := d.index[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, symbol)
	}
	d.index[symbol] = len(d.entries)
	d.entries = append(d.entries, DirectoryEntry{Symbol: symbol, Address: addr})
	return nil
}

// Lookup returns the address for symbol. A zero address counts as unset.
func (d Directory) Lookup(symbol string) (common.Address, bool) {
	idx, ok := d.index[symbol]
	if !ok {
		return common.Address{}, false
	}
	addr := d.entries[idx].Address
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// Entries returns a copy of the directory in insertion order.
func (d Directory) Entries() []DirectoryEntry {
	out := make([]DirectoryEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d Directory) Len() int {
	return len(d.entries)
}

// ParseAddress accepts a 0x-prefixed 20 byte hex address.
func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}
