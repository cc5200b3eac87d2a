// Package catalog matches desired resource specs against provisioned
// addresses.
package catalog

import (
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Resolved is a desired spec whose symbol has a provisioned address.
type Resolved[T any] struct {
	Symbol  string
	Spec    T
	Address common.Address
}

// Result is the filter output. Resolved keeps catalog order; Skipped lists
// the unresolved symbols in catalog order.
type Result[T any] struct {
	Resolved []Resolved[T]
	Skipped  []string
}

// Symbols returns the resolved symbols in order.
func (r Result[T]) Symbols() []string {
	out := make([]string, len(r.Resolved))
	for i, res := range r.Resolved {
		out[i] = res.Symbol
	}
	return out
}

// Filter walks specs in order and keeps the symbols present in dir. Each
// missing symbol produces exactly one skip diagnostic; a partial rollout is
// an expected state, not an error.
func Filter[T any](logger zerolog.Logger, kind string, specs market.Catalog[T], dir market.Directory) Result[T] {
	out := Result[T]{Resolved: make([]Resolved[T], 0, specs.Len())}
	for _, entry := range specs.Entries() {
		addr, ok := dir.Lookup(entry.Symbol)
		if !ok {
			logger.Warn().
				Str("kind", kind).
				Str("symbol", entry.Symbol).
				Msgf("- Skipping init of %s due %s address is not set at markets config", entry.Symbol, kind)
			observability.RecordSkip(kind)
			out.Skipped = append(out.Skipped, entry.Symbol)
			continue
		}
		out.Resolved = append(out.Resolved, Resolved[T]{
			Symbol:  entry.Symbol,
			Spec:    entry.Spec,
			Address: addr,
		})
	}
	return out
}
