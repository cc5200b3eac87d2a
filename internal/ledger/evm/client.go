// Package evm drives the lending protocol over JSON-RPC with go-ethereum
// bound contracts.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const DefaultStrategyContract = "InterestRate"

var (
	ErrMissingKey     = errors.New("evm: missing private key")
	ErrMissingAddress = errors.New("evm: missing contract address")
)

// Config is everything needed to reach one deployment.
type Config struct {
	RPCURL string
	// ChainID zero means ask the node.
	ChainID    int64
	PrivateKey string
	Provider   common.Address
	Helper     common.Address

	ArtifactsDir     string
	StrategyContract string
	Backoff          Backoff
}

// Client implements ledger.Backend against a live node.
type Client struct {
	eth    *ethclient.Client
	auth   *bind.TransactOpts
	cfg    Config
	logger zerolog.Logger

	artifactMu sync.Mutex
	strategy   *Artifact
}

var _ ledger.Backend = (*Client)(nil)

// Dial connects to cfg.RPCURL and prepares a keyed transactor.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Provider == (common.Address{}) {
		return nil, fmt.Errorf("%w: addresses provider", ErrMissingAddress)
	}
	if cfg.Helper == (common.Address{}) {
		return nil, fmt.Errorf("%w: helper", ErrMissingAddress)
	}
	key := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if key == "" {
		return nil, ErrMissingKey
	}
	pk, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("evm: parse private key: %w", err)
	}
	if cfg.StrategyContract == "" {
		cfg.StrategyContract = DefaultStrategyContract
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("evm: chain id: %w", err)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: transactor: %w", err)
	}

	logger.Info().
		Str("rpc", cfg.RPCURL).
		Str("chain_id", chainID.String()).
		Str("sender", auth.From.Hex()).
		Msg("ledger connected")
	return &Client{eth: eth, auth: auth, cfg: cfg, logger: logger}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// From is the sending account.
func (c *Client) From() common.Address {
	return c.auth.From
}

func (c *Client) opts(ctx context.Context) *bind.TransactOpts {
	opts := *c.auth
	opts.Context = ctx
	return &opts
}

func (c *Client) bound(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, c.eth, c.eth, c.eth)
}

func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, params ...any) (ledger.Tx, error) {
	tx, err := contract.Transact(c.opts(ctx), method, params...)
	if err != nil {
		return ledger.Tx{}, fmt.Errorf("%s: %w", method, err)
	}
	c.logger.Debug().Str("method", method).Str("tx", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Msg("tx sent")
	return ledger.Tx{Hash: tx.Hash(), Method: method}, nil
}

// WaitForTx polls for the receipt until it is mined or ctx is done.
func (c *Client) WaitForTx(ctx context.Context, tx ledger.Tx) (ledger.Receipt, error) {
	return waitReceipt(ctx, c.eth, tx.Hash, c.cfg.Backoff)
}

type receiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

func waitReceipt(ctx context.Context, src receiptSource, hash common.Hash, backoff Backoff) (ledger.Receipt, error) {
	for attempt := 1; ; attempt++ {
		receipt, err := src.TransactionReceipt(ctx, hash)
		if err == nil {
			out := ledger.Receipt{
				TxHash:  receipt.TxHash,
				GasUsed: receipt.GasUsed,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return ledger.Receipt{}, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}

		timer := time.NewTimer(backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ledger.Receipt{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// DeployRateStrategy deploys the strategy artifact and waits for it.
func (c *Client) DeployRateStrategy(ctx context.Context, name string, params ledger.StrategyParams) (common.Address, error) {
	art, err := c.strategyArtifact()
	if err != nil {
		return common.Address{}, err
	}
	addr, tx, _, err := bind.DeployContract(c.opts(ctx), art.ABI, art.Bytecode, c.eth,
		params.AddressesProvider,
		params.OptimalUtilizationRate,
		params.BaseVariableBorrowRate,
		params.VariableRateSlope1,
		params.VariableRateSlope2,
	)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s (%s): %w", art.Name, name, err)
	}
	if _, err := ledger.Confirm(ctx, c, ledger.Tx{Hash: tx.Hash(), Method: "deployRateStrategy"}); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (c *Client) strategyArtifact() (*Artifact, error) {
	c.artifactMu.Lock()
	defer c.artifactMu.Unlock()
	if c.strategy != nil {
		return c.strategy, nil
	}
	art, err := LoadArtifact(c.cfg.ArtifactsDir, c.cfg.StrategyContract)
	if err != nil {
		return nil, err
	}
	c.strategy = &art
	return c.strategy, nil
}

func (c *Client) Provider(context.Context) (ledger.AddressesProvider, error) {
	return &providerContract{
		client:   c,
		address:  c.cfg.Provider,
		contract: c.bound(c.cfg.Provider, providerABI),
	}, nil
}

func (c *Client) Configurator(ctx context.Context) (ledger.Configurator, error) {
	provider, err := c.Provider(ctx)
	if err != nil {
		return nil, err
	}
	addr, err := provider.Configurator(ctx)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: configurator not registered", ErrMissingAddress)
	}
	return &configuratorContract{client: c, contract: c.bound(addr, configuratorABI)}, nil
}

func (c *Client) Helper(context.Context) (ledger.Helper, error) {
	return &helperContract{
		client:   c,
		address:  c.cfg.Helper,
		contract: c.bound(c.cfg.Helper, helperABI),
	}, nil
}
