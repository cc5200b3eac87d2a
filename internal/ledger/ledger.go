// Package ledger defines the external lending-protocol surface driven by the
// onboarding orchestrator.
//
// Ownership boundary:
// - call payload shapes (init and configure records)
// - contract accessor interfaces
// - transaction/receipt handles
//
// Implementations live in ledger/evm (JSON-RPC) and ledger/sim (in-memory).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrReverted = errors.New("ledger: transaction reverted")

// Tx identifies one submitted transaction.
type Tx struct {
	Hash   common.Hash
	Method string
}

// Receipt is the confirmed outcome of a Tx.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Success     bool
}

// ReserveInit is one batchInitReserve element.
type ReserveInit struct {
	BTokenImpl              common.Address `abi:"bTokenImpl"`
	DebtTokenImpl           common.Address `abi:"debtTokenImpl"`
	UnderlyingAssetDecimals uint8          `abi:"underlyingAssetDecimals"`
	InterestRateAddress     common.Address `abi:"interestRateAddress"`
	UnderlyingAsset         common.Address `abi:"underlyingAsset"`
	Treasury                common.Address `abi:"treasury"`
	UnderlyingAssetName     string         `abi:"underlyingAssetName"`
	BTokenName              string         `abi:"bTokenName"`
	BTokenSymbol            string         `abi:"bTokenSymbol"`
	DebtTokenName           string         `abi:"debtTokenName"`
	DebtTokenSymbol         string         `abi:"debtTokenSymbol"`
}

// NftInit is one batchInitNft element.
type NftInit struct {
	UnderlyingAsset common.Address `abi:"underlyingAsset"`
}

// ReserveConfig is one configureReserves element.
type ReserveConfig struct {
	Asset            common.Address `abi:"asset"`
	ReserveFactor    *big.Int       `abi:"reserveFactor"`
	BorrowingEnabled bool           `abi:"borrowingEnabled"`
}

// NftConfig is one configureNfts element.
type NftConfig struct {
	Asset                common.Address `abi:"asset"`
	BaseLTV              *big.Int       `abi:"baseLTV"`
	LiquidationThreshold *big.Int       `abi:"liquidationThreshold"`
	LiquidationBonus     *big.Int       `abi:"liquidationBonus"`
	RedeemDuration       *big.Int       `abi:"redeemDuration"`
	AuctionDuration      *big.Int       `abi:"auctionDuration"`
	RedeemFine           *big.Int       `abi:"redeemFine"`
	RedeemThreshold      *big.Int       `abi:"redeemThreshold"`
}

// StrategyParams are the rate strategy constructor arguments.
type StrategyParams struct {
	AddressesProvider      common.Address
	OptimalUtilizationRate *big.Int
	BaseVariableBorrowRate *big.Int
	VariableRateSlope1     *big.Int
	VariableRateSlope2     *big.Int
}

// RoleAdmin mutates the single pool admin role.
type RoleAdmin interface {
	PoolAdmin(ctx context.Context) (common.Address, error)
	SetPoolAdmin(ctx context.Context, admin common.Address) (Tx, error)
}

// AddressesProvider is the registry entry point of the lending protocol.
type AddressesProvider interface {
	RoleAdmin
	Address() common.Address
	Configurator(ctx context.Context) (common.Address, error)
}

// Configurator exposes the batch initialization calls.
type Configurator interface {
	BatchInitReserve(ctx context.Context, params []ReserveInit) (Tx, error)
	BatchInitNft(ctx context.Context, params []NftInit) (Tx, error)
}

// Helper is the helper deployer that runs configuration batches while it
// holds the pool admin role.
type Helper interface {
	Address() common.Address
	ConfigureReserves(ctx context.Context, params []ReserveConfig) (Tx, error)
	ConfigureNfts(ctx context.Context, params []NftConfig) (Tx, error)
}

// StrategyDeployer provisions one interest rate strategy contract.
type StrategyDeployer interface {
	DeployRateStrategy(ctx context.Context, name string, params StrategyParams) (common.Address, error)
}

// Waiter blocks until a submitted transaction is confirmed.
type Waiter interface {
	WaitForTx(ctx context.Context, tx Tx) (Receipt, error)
}

// Backend resolves every collaborator a run needs.
type Backend interface {
	Waiter
	StrategyDeployer
	Provider(ctx context.Context) (AddressesProvider, error)
	Configurator(ctx context.Context) (Configurator, error)
	Helper(ctx context.Context) (Helper, error)
}

// Confirm waits for tx and converts a failed receipt into ErrReverted.
func Confirm(ctx context.Context, w Waiter, tx Tx) (Receipt, error) {
	receipt, err := w.WaitForTx(ctx, tx)
	if err != nil {
		return Receipt{}, err
	}
	if !receipt.Success {
		return receipt, fmt.Errorf("%w: %s %s", ErrReverted, tx.Method, tx.Hash.Hex())
	}
	return receipt, nil
}
