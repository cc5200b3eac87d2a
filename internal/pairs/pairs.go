// Package pairs builds the index-aligned asset/price-aggregator table used by
// oracle setup.
package pairs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/onboardctl/internal/market"
	"github.com/ethereum/go-ethereum/common"
)

var ErrMissingAggregator = errors.New("pairs: missing aggregator")

// DefaultNativeSymbols are the native asset and its wrapped form. Neither
// needs a price feed.
var DefaultNativeSymbols = []string{"ETH", "WETH"}

// Options tune Build.
type Options struct {
	// NativeSymbols replaces DefaultNativeSymbols when non-nil.
	NativeSymbols []string
	// Strict fails the build when a priced asset has no aggregator.
	Strict bool
}

// Table is the pairing output. Assets, Aggregators and Symbols are equal
// length and index aligned.
type Table struct {
	Symbols     []string         `json:"symbols"`
	Assets      []common.Address `json:"assets"`
	Aggregators []common.Address `json:"aggregators"`
	Missing     []string         `json:"missing,omitempty"`

	// Unprovisioned lists assets with a zero address. They are never paired.
	Unprovisioned []string `json:"unprovisioned,omitempty"`
}

func (t Table) Len() int {
	return len(t.Assets)
}

// Build pairs every non-native asset with the aggregator registered under
// the same symbol, in asset directory order. Assets without an aggregator
// are left out and listed in Missing, or fail the build in strict mode.
// Assets without an address are left out and listed in Unprovisioned.
func Build(assets, aggregators market.Directory, opts Options) (Table, error) {
	native := opts.NativeSymbols
	if native == nil {
		native = DefaultNativeSymbols
	}
	excluded := make(map[string]struct{}, len(native))
	for _, sym := range native {
		excluded[strings.TrimSpace(sym)] = struct{}{}
	}

	var out Table
	for _, entry := range assets.Entries() {
		if _, skip := excluded[entry.Symbol]; skip {
			continue
		}
		if entry.Address == (common.Address{}) {
			out.Unprovisioned = append(out.Unprovisioned, entry.Symbol)
			continue
		}
		source, ok := aggregators.Lookup(entry.Symbol)
		if !ok {
			out.Missing = append(out.Missing, entry.Symbol)
			continue
		}
		out.Symbols = append(out.Symbols, entry.Symbol)
		out.Assets = append(out.Assets, entry.Address)
		out.Aggregators = append(out.Aggregators, source)
	}
	if opts.Strict && len(out.Missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMissingAggregator, strings.Join(out.Missing, ", "))
	}
	return out, nil
}
