// Package chunk partitions ordered batches into bounded-size submissions.
package chunk

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("chunk: size must be positive")

// Plan splits seq into contiguous slices of at most size elements. Only the
// last slice may be shorter. Concatenating the result reproduces seq.
// Each slice has its capacity capped so appending to one cannot overwrite
// the next.
func Plan[T any](seq []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if len(seq) == 0 {
		return [][]T{}, nil
	}
	out := make([][]T, 0, (len(seq)+size-1)/size)
	for start := 0; start < len(seq); start += size {
		end := min(start+size, len(seq))
		out = append(out, seq[start:end:end])
	}
	return out, nil
}
