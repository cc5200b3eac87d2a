package addressbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// Book scopes a Store to one network and falls back to a read-only JSON
// snapshot for keys the store has never seen.
type Book struct {
	store    *Store
	network  string
	fallback map[string]common.Address
}

func NewBook(store *Store, network string, fallback map[string]common.Address) *Book {
	if fallback == nil {
		fallback = map[string]common.Address{}
	}
	return &Book{store: store, network: network, fallback: fallback}
}

func (b *Book) Network() string {
	return b.network
}

// Lookup resolves key from the store first, then the JSON fallback.
func (b *Book) Lookup(ctx context.Context, key string) (common.Address, error) {
	addr, err := b.store.Get(ctx, b.network, key)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return common.Address{}, err
	}
	if addr, ok := b.fallback[key]; ok {
		return addr, nil
	}
	return common.Address{}, err
}

// Record stores addr under key for the book's network.
func (b *Book) Record(ctx context.Context, key string, addr common.Address) error {
	return b.store.Put(ctx, b.network, key, addr)
}

// List returns the stored records of the book's network.
func (b *Book) List(ctx context.Context) ([]Record, error) {
	return b.store.List(ctx, b.network)
}

// LoadFallback reads {"<network>": {"<key>": "<address>"}} and returns the
// entries of network. A missing file yields an empty map.
func LoadFallback(path, network string) (map[string]common.Address, error) {
	out := map[string]common.Address{}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("addressbook: read fallback (%s): %w", path, err)
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("addressbook: parse fallback (%s): %w", path, err)
	}
	for key, value := range raw[network] {
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("addressbook: fallback %s/%s: invalid address %q", network, key, value)
		}
		out[key] = common.HexToAddress(value)
	}
	return out, nil
}
