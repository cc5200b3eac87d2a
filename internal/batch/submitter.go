// Package batch submits planned chunks to the ledger one at a time.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/onboardctl/internal/chunk"
	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Item is one per-resource record of a batch. The symbol travels with its
// params so diagnostics always describe the payload actually sent.
type Item[T any] struct {
	Symbol string
	Asset  common.Address
	Params T
}

// SendFunc submits one chunk as a single transaction.
type SendFunc[T any] func(ctx context.Context, params []T) (ledger.Tx, error)

// ChunkReport describes one confirmed chunk.
type ChunkReport struct {
	Index    int           `json:"index"`
	Symbols  []string      `json:"symbols"`
	TxHash   common.Hash   `json:"tx_hash"`
	GasUsed  uint64        `json:"gas_used"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of a Submit call. On failure it holds the chunks
// confirmed before the failing one.
type Report struct {
	Flow   string        `json:"flow"`
	Total  int           `json:"total"`
	Chunks []ChunkReport `json:"chunks"`
}

// GasUsed sums the confirmed chunk costs.
func (r Report) GasUsed() uint64 {
	var total uint64
	for _, c := range r.Chunks {
		total += c.GasUsed
	}
	return total
}

// Complete reports whether every planned chunk was confirmed.
func (r Report) Complete() bool {
	return len(r.Chunks) == r.Total
}

// ChunkError wraps the failure of one chunk.
type ChunkError struct {
	Flow    string
	Index   int
	Symbols []string
	Err     error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s: chunk %d [%s]: %v", e.Flow, e.Index, strings.Join(e.Symbols, ", "), e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Submitter sends chunks strictly in order and blocks on each confirmation
// before building the next: later chunks may depend on state written by
// earlier ones and the sender nonce is shared.
type Submitter struct {
	waiter ledger.Waiter
	logger zerolog.Logger
}

func NewSubmitter(waiter ledger.Waiter, logger zerolog.Logger) *Submitter {
	return &Submitter{waiter: waiter, logger: logger}
}

// Submit plans items into chunks of size and submits them with send. The first
// failure aborts the run; confirmed chunks stay committed and are returned
// in the report.
func Submit[T any](ctx context.Context, s *Submitter, flow, label string, items []Item[T], size int, send SendFunc[T]) (Report, error) {
	chunks, err := chunk.Plan(items, size)
	if err != nil {
		return Report{Flow: flow}, err
	}
	report := Report{Flow: flow, Total: len(chunks), Chunks: make([]ChunkReport, 0, len(chunks))}
	s.logger.Info().Str("flow", flow).Int("items", len(items)).Msgf("- %s in %d txs", label, len(chunks))

	for idx, c := range chunks {
		symbols := make([]string, len(c))
		params := make([]T, len(c))
		for i, item := range c {
			symbols[i] = item.Symbol
			params[i] = item.Params
		}

		if err := ctx.Err(); err != nil {
			return report, &ChunkError{Flow: flow, Index: idx, Symbols: symbols, Err: err}
		}

		start := time.Now()
		receipt, err := sendAndConfirm(ctx, s.waiter, send, params)
		elapsed := time.Since(start)
		observability.RecordChunk(flow, receipt.GasUsed, elapsed, err == nil)
		if err != nil {
			s.logger.Error().Err(err).Str("flow", flow).Int("chunk", idx).Strs("symbols", symbols).Msg("chunk failed")
			return report, &ChunkError{Flow: flow, Index: idx, Symbols: symbols, Err: err}
		}

		report.Chunks = append(report.Chunks, ChunkReport{
			Index:    idx,
			Symbols:  symbols,
			TxHash:   receipt.TxHash,
			GasUsed:  receipt.GasUsed,
			Duration: elapsed,
		})
		s.logger.Info().
			Str("flow", flow).
			Str("asset", c[0].Asset.Hex()).
			Uint64("gas_used", receipt.GasUsed).
			Str("tx", receipt.TxHash.Hex()).
			Msgf("  - Ready for: %s", strings.Join(symbols, ", "))
	}
	return report, nil
}

func sendAndConfirm[T any](ctx context.Context, waiter ledger.Waiter, send SendFunc[T], params []T) (ledger.Receipt, error) {
	tx, err := send(ctx, params)
	if err != nil {
		return ledger.Receipt{}, err
	}
	return ledger.Confirm(ctx, waiter, tx)
}
