// Package sim is an in-memory lending protocol used for dry runs and tests.
//
// It enforces the same access rule as the real configurator: batch calls
// only succeed while the caller holds the pool admin role. Configuration
// batches are sent by the helper, so they revert unless the role was handed
// to it first.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownTx    = errors.New("sim: unknown transaction")
	ErrNotAdmin     = errors.New("sim: caller is not pool admin")
	ErrAlreadyInit  = errors.New("sim: asset already initialized")
	ErrNotInit      = errors.New("sim: asset not initialized")
	ErrEmptyBatch   = errors.New("sim: empty batch")
	ErrInjectedFail = errors.New("sim: injected failure")
)

// Gas model. Only relative magnitudes matter.
const (
	GasBase            uint64 = 21_000
	GasSetAdmin        uint64 = 30_000
	GasInitReserve     uint64 = 1_450_000
	GasInitNft         uint64 = 650_000
	GasConfigure       uint64 = 45_000
	GasDeployStrategy  uint64 = 480_000
	GasRevertedPerItem uint64 = 5_000
)

// Call is one journaled ledger interaction.
type Call struct {
	Method string
	Caller common.Address
	Args   any
	TxHash common.Hash
}

// Fault makes the Occurrence-th (0-based) call of Method fail. With Revert
// the call is mined with a failed receipt, otherwise submission errors.
type Fault struct {
	Method     string
	Occurrence int
	Revert     bool
	Err        error
}

// Ledger is the simulated chain. Safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	sender       common.Address
	nonce        uint64
	provider     common.Address
	configurator common.Address
	helper       common.Address
	admin        common.Address

	calls    []Call
	counts   map[string]int
	faults   []Fault
	receipts map[common.Hash]ledger.Receipt
	block    uint64

	strategies     map[common.Address]ledger.StrategyParams
	reserves       map[common.Address]ledger.ReserveInit
	nfts           map[common.Address]ledger.NftInit
	reserveConfigs map[common.Address]ledger.ReserveConfig
	nftConfigs     map[common.Address]ledger.NftConfig
}

var _ ledger.Backend = (*Ledger)(nil)

// New deploys a simulated provider, configurator and helper from sender.
// sender starts as pool admin.
func New(sender common.Address) *Ledger {
	l := &Ledger{
		sender:         sender,
		counts:         make(map[string]int),
		receipts:       make(map[common.Hash]ledger.Receipt),
		strategies:     make(map[common.Address]ledger.StrategyParams),
		reserves:       make(map[common.Address]ledger.ReserveInit),
		nfts:           make(map[common.Address]ledger.NftInit),
		reserveConfigs: make(map[common.Address]ledger.ReserveConfig),
		nftConfigs:     make(map[common.Address]ledger.NftConfig),
	}
	l.provider = l.nextAddress()
	l.configurator = l.nextAddress()
	l.helper = l.nextAddress()
	l.admin = sender
	return l
}

// Adopt marks assets as initialized outside the simulation, so configuration
// runs can be rehearsed against a market that is already live. Nothing is
// journaled.
func (l *Ledger) Adopt(reserves, nfts []common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range reserves {
		if _, ok := l.reserves[a]; !ok {
			l.reserves[a] = ledger.ReserveInit{UnderlyingAsset: a}
		}
	}
	for _, a := range nfts {
		if _, ok := l.nfts[a]; !ok {
			l.nfts[a] = ledger.NftInit{UnderlyingAsset: a}
		}
	}
}

// Inject registers faults. Occurrences count from the moment of the call.
func (l *Ledger) Inject(faults ...Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range faults {
		f.Occurrence += l.counts[f.Method]
		l.faults = append(l.faults, f)
	}
}

func (l *Ledger) nextAddress() common.Address {
	addr := crypto.CreateAddress(l.sender, l.nonce)
	l.nonce++
	return addr
}

func (l *Ledger) ProviderAddress() common.Address     { return l.provider }
func (l *Ledger) ConfiguratorAddress() common.Address { return l.configurator }
func (l *Ledger) HelperAddress() common.Address       { return l.helper }
func (l *Ledger) Sender() common.Address              { return l.sender }

// Admin returns the current pool admin.
func (l *Ledger) Admin() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admin
}

// Calls returns a copy of the journal.
func (l *Ledger) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Methods returns the journaled method names in order.
func (l *Ledger) Methods() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.Method
	}
	return out
}

// CallCount returns how many times method was called.
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[method]
}

func (l *Ledger) Reserve(asset common.Address) (ledger.ReserveInit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserves[asset]
	return r, ok
}

func (l *Ledger) Nft(asset common.Address) (ledger.NftInit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nfts[asset]
	return n, ok
}

func (l *Ledger) ReserveConfig(asset common.Address) (ledger.ReserveConfig, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.reserveConfigs[asset]
	return c, ok
}

func (l *Ledger) NftConfig(asset common.Address) (ledger.NftConfig, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.nftConfigs[asset]
	return c, ok
}

func (l *Ledger) Strategy(addr common.Address) (ledger.StrategyParams, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.strategies[addr]
	return p, ok
}

// submit journals one call, applies faults, and executes apply. apply returns
// the gas used and an error that turns into a reverted receipt.
func (l *Ledger) submit(method string, caller common.Address, args any, apply func() (uint64, error)) (ledger.Tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	occurrence := l.counts[method]
	l.counts[method]++

	hash := crypto.Keccak256Hash([]byte(method), l.sender.Bytes(), new(big.Int).SetUint64(l.nonce).Bytes())
	l.nonce++
	l.calls = append(l.calls, Call{Method: method, Caller: caller, Args: args, TxHash: hash})

	revert := false
	for _, f := range l.faults {
		if f.Method != method || f.Occurrence != occurrence {
			continue
		}
		if !f.Revert {
			err := f.Err
			if err == nil {
				err = ErrInjectedFail
			}
			return ledger.Tx{}, fmt.Errorf("%s: %w", method, err)
		}
		revert = true
	}

	l.block++
	receipt := ledger.Receipt{TxHash: hash, BlockNumber: l.block}
	if revert {
		receipt.GasUsed = GasBase + GasRevertedPerItem
	} else if gas, err := apply(); err != nil {
		receipt.GasUsed = GasBase + GasRevertedPerItem
	} else {
		receipt.GasUsed = GasBase + gas
		receipt.Success = true
	}
	l.receipts[hash] = receipt
	return ledger.Tx{Hash: hash, Method: method}, nil
}

// WaitForTx returns the receipt of a submitted transaction.
func (l *Ledger) WaitForTx(ctx context.Context, tx ledger.Tx) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, ok := l.receipts[tx.Hash]
	if !ok {
		return ledger.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownTx, tx.Hash.Hex())
	}
	return receipt, nil
}

// DeployRateStrategy creates a strategy contract and waits for it.
func (l *Ledger) DeployRateStrategy(ctx context.Context, name string, params ledger.StrategyParams) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}
	var addr common.Address
	tx, err := l.submit("deployRateStrategy", l.sender, name, func() (uint64, error) {
		addr = l.nextAddress()
		l.strategies[addr] = params
		return GasDeployStrategy, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	if _, err := ledger.Confirm(ctx, l, tx); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (l *Ledger) Provider(context.Context) (ledger.AddressesProvider, error) {
	return providerHandle{l}, nil
}

func (l *Ledger) Configurator(context.Context) (ledger.Configurator, error) {
	return configuratorHandle{l}, nil
}

func (l *Ledger) Helper(context.Context) (ledger.Helper, error) {
	return helperHandle{l}, nil
}

type providerHandle struct{ l *Ledger }

func (p providerHandle) Address() common.Address { return p.l.provider }

func (p providerHandle) Configurator(context.Context) (common.Address, error) {
	return p.l.configurator, nil
}

func (p providerHandle) PoolAdmin(context.Context) (common.Address, error) {
	return p.l.Admin(), nil
}

func (p providerHandle) SetPoolAdmin(ctx context.Context, admin common.Address) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Tx{}, err
	}
	l := p.l
	return l.submit("setPoolAdmin", l.sender, admin, func() (uint64, error) {
		l.admin = admin
		return GasSetAdmin, nil
	})
}

type configuratorHandle struct{ l *Ledger }

func (c configuratorHandle) BatchInitReserve(ctx context.Context, params []ledger.ReserveInit) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Tx{}, err
	}
	l := c.l
	return l.submit("batchInitReserve", l.sender, params, func() (uint64, error) {
		if err := l.requireAdmin(l.sender, len(params)); err != nil {
			return 0, err
		}
		for _, p := range params {
			if _, ok := l.reserves[p.UnderlyingAsset]; ok {
				return 0, ErrAlreadyInit
			}
		}
		for _, p := range params {
			l.reserves[p.UnderlyingAsset] = p
		}
		return GasInitReserve * uint64(len(params)), nil
	})
}

func (c configuratorHandle) BatchInitNft(ctx context.Context, params []ledger.NftInit) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Tx{}, err
	}
	l := c.l
	return l.submit("batchInitNft", l.sender, params, func() (uint64, error) {
		if err := l.requireAdmin(l.sender, len(params)); err != nil {
			return 0, err
		}
		for _, p := range params {
			if _, ok := l.nfts[p.UnderlyingAsset]; ok {
				return 0, ErrAlreadyInit
			}
		}
		for _, p := range params {
			l.nfts[p.UnderlyingAsset] = p
		}
		return GasInitNft * uint64(len(params)), nil
	})
}

type helperHandle struct{ l *Ledger }

func (h helperHandle) Address() common.Address { return h.l.helper }

func (h helperHandle) ConfigureReserves(ctx context.Context, params []ledger.ReserveConfig) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Tx{}, err
	}
	l := h.l
	return l.submit("configureReserves", l.helper, params, func() (uint64, error) {
		if err := l.requireAdmin(l.helper, len(params)); err != nil {
			return 0, err
		}
		for _, p := range params {
			if _, ok := l.reserves[p.Asset]; !ok {
				return 0, ErrNotInit
			}
		}
		for _, p := range params {
			l.reserveConfigs[p.Asset] = p
		}
		return GasConfigure * uint64(len(params)), nil
	})
}

func (h helperHandle) ConfigureNfts(ctx context.Context, params []ledger.NftConfig) (ledger.Tx, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Tx{}, err
	}
	l := h.l
	return l.submit("configureNfts", l.helper, params, func() (uint64, error) {
		if err := l.requireAdmin(l.helper, len(params)); err != nil {
			return 0, err
		}
		for _, p := range params {
			if _, ok := l.nfts[p.Asset]; !ok {
				return 0, ErrNotInit
			}
		}
		for _, p := range params {
			l.nftConfigs[p.Asset] = p
		}
		return GasConfigure * uint64(len(params)), nil
	})
}

// requireAdmin must be called with l.mu held.
func (l *Ledger) requireAdmin(caller common.Address, n int) error {
	if n == 0 {
		return ErrEmptyBatch
	}
	if l.admin != caller {
		return ErrNotAdmin
	}
	return nil
}
