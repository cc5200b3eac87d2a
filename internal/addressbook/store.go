// Package addressbook persists provisioned contract addresses per network.
package addressbook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	ErrNotFound   = errors.New("addressbook: address not found")
	ErrInvalidKey = errors.New("addressbook: invalid key")
)

const schema = `
CREATE TABLE IF NOT EXISTS contract_addresses (
	network    TEXT NOT NULL,
	key        TEXT NOT NULL,
	address    TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (network, key)
)`

// Record is one stored address.
type Record struct {
	Network   string         `json:"network"`
	Key       string         `json:"key"`
	Address   common.Address `json:"address"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is the SQLite backed address table.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (and creates) the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("addressbook: create directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("addressbook: open: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("addressbook: migrate: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Put inserts or replaces the address stored under (network, key).
func (s *Store) Put(ctx context.Context, network, key string, addr common.Address) error {
	network, key, err := normalizeKey(network, key)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, `
INSERT INTO contract_addresses (network, key, address, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (network, key) DO UPDATE SET address = excluded.address, updated_at = excluded.updated_at`,
		network, key, addr.Hex(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("addressbook: put %s/%s: %w", network, key, err)
	}
	return nil
}

// Get returns the address stored under (network, key).
func (s *Store) Get(ctx context.Context, network, key string) (common.Address, error) {
	network, key, err := normalizeKey(network, key)
	if err != nil {
		return common.Address{}, err
	}
	var raw string
	err = s.conn.QueryRowContext(ctx,
		`SELECT address FROM contract_addresses WHERE network = ? AND key = ?`,
		network, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Address{}, fmt.Errorf("%w: %s/%s", ErrNotFound, network, key)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("addressbook: get %s/%s: %w", network, key, err)
	}
	return common.HexToAddress(raw), nil
}

// List returns every record of network ordered by key.
func (s *Store) List(ctx context.Context, network string) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT network, key, address, updated_at FROM contract_addresses WHERE network = ? ORDER BY key`,
		strings.TrimSpace(network))
	if err != nil {
		return nil, fmt.Errorf("addressbook: list %s: %w", network, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			raw     string
			updated int64
		)
		if err := rows.Scan(&rec.Network, &rec.Key, &raw, &updated); err != nil {
			return nil, fmt.Errorf("addressbook: scan: %w", err)
		}
		rec.Address = common.HexToAddress(raw)
		rec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalizeKey(network, key string) (string, string, error) {
	network = strings.TrimSpace(network)
	key = strings.TrimSpace(key)
	if network == "" || key == "" {
		return "", "", fmt.Errorf("%w: network and key are required", ErrInvalidKey)
	}
	return network, key, nil
}
