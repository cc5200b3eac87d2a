package evm

import (
	"context"
	"fmt"

	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

func callAddress(ctx context.Context, contract *bind.BoundContract, method string) (common.Address, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%s: unexpected output count %d", method, len(out))
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

type providerContract struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

func (p *providerContract) Address() common.Address { return p.address }

func (p *providerContract) PoolAdmin(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, p.contract, "getPoolAdmin")
}

func (p *providerContract) SetPoolAdmin(ctx context.Context, admin common.Address) (ledger.Tx, error) {
	return p.client.transact(ctx, p.contract, "setPoolAdmin", admin)
}

func (p *providerContract) Configurator(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, p.contract, "getLendPoolConfigurator")
}

type configuratorContract struct {
	client   *Client
	contract *bind.BoundContract
}

func (c *configuratorContract) BatchInitReserve(ctx context.Context, params []ledger.ReserveInit) (ledger.Tx, error) {
	return c.client.transact(ctx, c.contract, "batchInitReserve", params)
}

func (c *configuratorContract) BatchInitNft(ctx context.Context, params []ledger.NftInit) (ledger.Tx, error) {
	return c.client.transact(ctx, c.contract, "batchInitNft", params)
}

type helperContract struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
}

func (h *helperContract) Address() common.Address { return h.address }

func (h *helperContract) ConfigureReserves(ctx context.Context, params []ledger.ReserveConfig) (ledger.Tx, error) {
	return h.client.transact(ctx, h.contract, "configureReserves", params)
}

func (h *helperContract) ConfigureNfts(ctx context.Context, params []ledger.NftConfig) (ledger.Tx, error) {
	return h.client.transact(ctx, h.contract, "configureNfts", params)
}
