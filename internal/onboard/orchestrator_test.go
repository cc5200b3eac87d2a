package onboard

import (
	"context"
	"testing"

	"github.com/danmuck/onboardctl/internal/addressbook"
	"github.com/danmuck/onboardctl/internal/batch"
	"github.com/danmuck/onboardctl/internal/chunk"
	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/ledger/sim"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/privilege"
	"github.com/danmuck/onboardctl/internal/testutil/testlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	treasury   = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	bTokenImpl = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	debtImpl   = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	usdc = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	dai  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	bayc = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	punk = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

var naming = market.NamingTemplates{
	BTokenNamePrefix:      "Bend interest bearing",
	BTokenSymbolPrefix:    "bend",
	DebtTokenNamePrefix:   "Bend debt bearing",
	DebtTokenSymbolPrefix: "bendDebt",
}

type fixture struct {
	ledger *sim.Ledger
	book   *addressbook.Book
	orch   *Orchestrator
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	ctx := context.Background()
	logger := testlog.Start(t)

	store, err := addressbook.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	book := addressbook.NewBook(store, "hardhat", nil)
	require.NoError(t, book.Record(ctx, "BToken", bTokenImpl))
	require.NoError(t, book.Record(ctx, market.DebtTokenImpl, debtImpl))

	l := sim.New(deployer)
	orch, err := New(l, book, logger, opts)
	require.NoError(t, err)
	return fixture{ledger: l, book: book, orch: orch}
}

func rateStrategy(name string) market.StrategyDefinition {
	return market.StrategyDefinition{
		Name:                   name,
		OptimalUtilizationRate: decimal.RequireFromString("650000000000000000000000000"),
		BaseVariableBorrowRate: decimal.RequireFromString("30000000000000000000000000"),
		VariableRateSlope1:     decimal.RequireFromString("80000000000000000000000000"),
		VariableRateSlope2:     decimal.RequireFromString("1000000000000000000000000000"),
	}
}

func reserve(strategyName string) market.ReserveSpec {
	return market.ReserveSpec{
		Decimals:         6,
		BTokenImpl:       "BToken",
		Strategy:         rateStrategy(strategyName),
		ReserveFactor:    decimal.NewFromInt(1000),
		BorrowingEnabled: true,
	}
}

func collateral(ltv int64) market.CollateralSpec {
	return market.CollateralSpec{
		BaseLTV:              decimal.NewFromInt(ltv),
		LiquidationThreshold: decimal.NewFromInt(9000),
		LiquidationBonus:     decimal.NewFromInt(500),
		RedeemDuration:       decimal.NewFromInt(48),
		AuctionDuration:      decimal.NewFromInt(48),
		RedeemFine:           decimal.NewFromInt(500),
		RedeemThreshold:      decimal.NewFromInt(5000),
	}
}

func reserveCatalog(t *testing.T, entries ...market.Entry[market.ReserveSpec]) market.Catalog[market.ReserveSpec] {
	t.Helper()
	c, err := market.NewCatalog(entries...)
	require.NoError(t, err)
	return c
}

func directory(t *testing.T, entries ...market.DirectoryEntry) market.Directory {
	t.Helper()
	d, err := market.NewDirectory(entries...)
	require.NoError(t, err)
	return d
}

func chunkSymbols(r batch.Report) [][]string {
	out := make([][]string, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Symbols
	}
	return out
}

func TestNewRejectsInvalidChunkSizes(t *testing.T) {
	logger := testlog.Start(t)
	l := sim.New(deployer)
	book := addressbook.NewBook(nil, "hardhat", nil)

	opts := DefaultOptions()
	opts.InitChunkSize = 0
	_, err := New(l, book, logger, opts)
	require.ErrorIs(t, err, chunk.ErrInvalidSize)

	opts = DefaultOptions()
	opts.ConfigureChunkSize = -1
	_, err = New(l, book, logger, opts)
	require.ErrorIs(t, err, chunk.ErrInvalidSize)
}

func TestInitReservesDistinctStrategies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("rateStrategyUSDC")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: reserve("rateStrategyDAI")},
		),
		Tokens:   directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}, market.DirectoryEntry{Symbol: "DAI", Address: dai}),
		Naming:   naming,
		Treasury: treasury,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.ledger.CallCount("deployRateStrategy"))
	assert.Equal(t, 2, f.ledger.CallCount("batchInitReserve"))
	assert.Equal(t, [][]string{{"USDC"}, {"DAI"}}, chunkSymbols(report.Batch))
	assert.Equal(t, []string{"USDC", "DAI"}, report.Resolved)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, []State{StateStart, StateFiltered, StateStrategyResolved, StatePlanned, StateSubmitting, StateDone}, report.History)
	require.Len(t, report.Strategies, 2)

	got, ok := f.ledger.Reserve(usdc)
	require.True(t, ok)
	assert.Equal(t, "Bend interest bearing USDC", got.BTokenName)
	assert.Equal(t, "bendUSDC", got.BTokenSymbol)
	assert.Equal(t, "Bend debt bearing USDC", got.DebtTokenName)
	assert.Equal(t, "bendDebtUSDC", got.DebtTokenSymbol)
	assert.Equal(t, bTokenImpl, got.BTokenImpl)
	assert.Equal(t, debtImpl, got.DebtTokenImpl)
	assert.Equal(t, treasury, got.Treasury)
	assert.Equal(t, uint8(6), got.UnderlyingAssetDecimals)
	assert.Equal(t, report.Strategies[0].Address, got.InterestRateAddress)

	params, ok := f.ledger.Strategy(got.InterestRateAddress)
	require.True(t, ok)
	assert.Equal(t, f.ledger.ProviderAddress(), params.AddressesProvider)
}

func TestInitReservesSharedStrategyDeploysOnce(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.InitChunkSize = 20
	f := newFixture(t, opts)

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("default")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: reserve("default")},
		),
		Tokens:   directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}, market.DirectoryEntry{Symbol: "DAI", Address: dai}),
		Naming:   naming,
		Treasury: treasury,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.CallCount("deployRateStrategy"))
	assert.Equal(t, 1, f.ledger.CallCount("batchInitReserve"))
	assert.Equal(t, [][]string{{"USDC", "DAI"}}, chunkSymbols(report.Batch))

	a, _ := f.ledger.Reserve(usdc)
	b, _ := f.ledger.Reserve(dai)
	assert.Equal(t, a.InterestRateAddress, b.InterestRateAddress)

	generic, err := f.book.Lookup(ctx, "InterestRate")
	require.NoError(t, err)
	named, err := f.book.Lookup(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, a.InterestRateAddress, generic)
	assert.Equal(t, a.InterestRateAddress, named)
}

func TestInitReservesSkipsUnknownTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "WETH", Spec: reserve("rateStrategyWETH")},
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("rateStrategyUSDC")},
		),
		Tokens: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}),
		Naming: naming,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"WETH"}, report.Skipped)
	assert.Equal(t, []string{"USDC"}, report.Resolved)
	assert.Equal(t, 1, f.ledger.CallCount("deployRateStrategy"), "skipped reserves provision nothing")
}

func TestInitReservesEmptyMakesNoCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t, market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")}),
		Naming:   naming,
	})
	require.NoError(t, err)
	assert.Empty(t, f.ledger.Methods())
	assert.Equal(t, StateDone, report.State)
}

func TestInitReservesInvalidSpecAbortsBeforeCalls(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	bad := reserve("x")
	bad.ReserveFactor = decimal.RequireFromString("10.5")
	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: bad},
		),
		Tokens: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}, market.DirectoryEntry{Symbol: "DAI", Address: dai}),
		Naming: naming,
	})
	require.ErrorIs(t, err, market.ErrInvalidSpec)
	assert.Empty(t, f.ledger.Methods())
	assert.Equal(t, StateAborted, report.State)
}

func TestInitCollateralChunksInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	specs, err := market.NewCatalog(
		market.Entry[market.CollateralSpec]{Symbol: "BAYC", Spec: collateral(4000)},
		market.Entry[market.CollateralSpec]{Symbol: "MAYC", Spec: collateral(3000)},
		market.Entry[market.CollateralSpec]{Symbol: "WPUNKS", Spec: collateral(-1)},
	)
	require.NoError(t, err)

	report, err := f.orch.InitCollateral(ctx, InitCollateralInput{
		Collateral: specs,
		Nfts:       directory(t, market.DirectoryEntry{Symbol: "BAYC", Address: bayc}, market.DirectoryEntry{Symbol: "WPUNKS", Address: punk}),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"BAYC"}, {"WPUNKS"}}, chunkSymbols(report.Batch))
	assert.Equal(t, []string{"MAYC"}, report.Skipped)
	_, ok := f.ledger.Nft(punk)
	assert.True(t, ok, "unconfigurable classes are still initialized")
}

func initNfts(t *testing.T, f fixture, assets ...common.Address) {
	t.Helper()
	ctx := context.Background()
	cfg, err := f.ledger.Configurator(ctx)
	require.NoError(t, err)
	params := make([]ledger.NftInit, len(assets))
	for i, a := range assets {
		params[i] = ledger.NftInit{UnderlyingAsset: a}
	}
	tx, err := cfg.BatchInitNft(ctx, params)
	require.NoError(t, err)
	_, err = ledger.Confirm(ctx, f.ledger, tx)
	require.NoError(t, err)
}

func initReserves(t *testing.T, f fixture, assets ...common.Address) {
	t.Helper()
	ctx := context.Background()
	cfg, err := f.ledger.Configurator(ctx)
	require.NoError(t, err)
	params := make([]ledger.ReserveInit, len(assets))
	for i, a := range assets {
		params[i] = ledger.ReserveInit{UnderlyingAsset: a}
	}
	tx, err := cfg.BatchInitReserve(ctx, params)
	require.NoError(t, err)
	_, err = ledger.Confirm(ctx, f.ledger, tx)
	require.NoError(t, err)
}

func TestConfigureCollateralBracketsAdminRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	initNfts(t, f, bayc, punk)
	before := len(f.ledger.Methods())

	specs, err := market.NewCatalog(
		market.Entry[market.CollateralSpec]{Symbol: "BAYC", Spec: collateral(4000)},
		market.Entry[market.CollateralSpec]{Symbol: "WPUNKS", Spec: collateral(-1)},
	)
	require.NoError(t, err)

	report, err := f.orch.ConfigureCollateral(ctx, ConfigureInput[market.CollateralSpec]{
		Specs:     specs,
		Addresses: directory(t, market.DirectoryEntry{Symbol: "BAYC", Address: bayc}, market.DirectoryEntry{Symbol: "WPUNKS", Address: punk}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"setPoolAdmin", "configureNfts", "setPoolAdmin"}, f.ledger.Methods()[before:])
	calls := f.ledger.Calls()
	assert.Equal(t, f.ledger.HelperAddress(), calls[before].Args)
	assert.Equal(t, deployer, calls[len(calls)-1].Args)
	assert.Equal(t, deployer, f.ledger.Admin())

	assert.Equal(t, []string{"BAYC"}, report.Resolved)
	assert.Equal(t, []string{"WPUNKS"}, report.Excluded)
	assert.True(t, report.Elevated)
	assert.Equal(t, []State{StateStart, StateFiltered, StatePlanned, StateElevated, StateSubmitting, StateRestored, StateDone}, report.History)

	got, ok := f.ledger.NftConfig(bayc)
	require.True(t, ok)
	assert.Equal(t, int64(4000), got.BaseLTV.Int64())
	_, ok = f.ledger.NftConfig(punk)
	assert.False(t, ok)
}

func TestConfigureRestoresAdminOnChunkFailure(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.ConfigureChunkSize = 1
	f := newFixture(t, opts)
	initReserves(t, f, usdc, dai)
	f.ledger.Inject(sim.Fault{Method: "configureReserves", Occurrence: 1, Revert: true})

	report, err := f.orch.ConfigureReserves(ctx, ConfigureInput[market.ReserveSpec]{
		Specs: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: reserve("x")},
		),
		Addresses: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}, market.DirectoryEntry{Symbol: "DAI", Address: dai}),
	})
	require.ErrorIs(t, err, ledger.ErrReverted)
	var chunkErr *batch.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, []string{"DAI"}, chunkErr.Symbols)

	assert.Equal(t, deployer, f.ledger.Admin(), "admin restored after failure")
	assert.Equal(t, 2, f.ledger.CallCount("setPoolAdmin"))
	assert.Equal(t, StateAborted, report.State)
	assert.Contains(t, report.History, StateRestored)
	assert.Equal(t, [][]string{{"USDC"}}, chunkSymbols(report.Batch), "confirmed chunks are reported")

	_, ok := f.ledger.ReserveConfig(usdc)
	assert.True(t, ok)
	_, ok = f.ledger.ReserveConfig(dai)
	assert.False(t, ok)
}

func TestConfigureRestoresExplicitAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	initReserves(t, f, usdc)
	multisig := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	_, err := f.orch.ConfigureReserves(ctx, ConfigureInput[market.ReserveSpec]{
		Specs:     reserveCatalog(t, market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")}),
		Addresses: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}),
		Admin:     multisig,
	})
	require.NoError(t, err)
	assert.Equal(t, multisig, f.ledger.Admin())
}

func TestConfigureEmptySetMakesNoRoleTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())

	specs, err := market.NewCatalog(
		market.Entry[market.CollateralSpec]{Symbol: "BAYC", Spec: collateral(4000)},
		market.Entry[market.CollateralSpec]{Symbol: "WPUNKS", Spec: collateral(-1)},
	)
	require.NoError(t, err)

	report, err := f.orch.ConfigureCollateral(ctx, ConfigureInput[market.CollateralSpec]{
		Specs:     specs,
		Addresses: directory(t, market.DirectoryEntry{Symbol: "WPUNKS", Address: punk}),
	})
	require.NoError(t, err)
	assert.Empty(t, f.ledger.Methods())
	assert.False(t, report.Elevated)
	assert.Equal(t, []string{"BAYC"}, report.Skipped)
	assert.Equal(t, []string{"WPUNKS"}, report.Excluded)
	assert.Equal(t, StateDone, report.State)
}

func TestConfigureElevateFailureSkipsSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	initReserves(t, f, usdc)
	f.ledger.Inject(sim.Fault{Method: "setPoolAdmin", Occurrence: 0, Revert: true})

	report, err := f.orch.ConfigureReserves(ctx, ConfigureInput[market.ReserveSpec]{
		Specs:     reserveCatalog(t, market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")}),
		Addresses: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}),
	})
	require.ErrorIs(t, err, privilege.ErrElevate)
	assert.Zero(t, f.ledger.CallCount("configureReserves"))
	assert.False(t, report.Elevated)
	assert.NotContains(t, report.History, StateRestored)

	// the reverted elevation was still followed by a restore
	assert.Equal(t, 2, f.ledger.CallCount("setPoolAdmin"))
	assert.Equal(t, deployer, f.ledger.Admin())
}

func TestConfigureRefusesHelperAsOriginalAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	initReserves(t, f, usdc)

	// an interrupted run left the helper holding the role
	provider, err := f.ledger.Provider(ctx)
	require.NoError(t, err)
	tx, err := provider.SetPoolAdmin(ctx, f.ledger.HelperAddress())
	require.NoError(t, err)
	_, err = ledger.Confirm(ctx, f.ledger, tx)
	require.NoError(t, err)

	in := ConfigureInput[market.ReserveSpec]{
		Specs:     reserveCatalog(t, market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("x")}),
		Addresses: directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}),
	}
	report, err := f.orch.ConfigureReserves(ctx, in)
	require.ErrorIs(t, err, ErrHelperHoldsAdmin)
	assert.Equal(t, StateAborted, report.State)
	assert.False(t, report.Elevated)
	assert.Equal(t, 1, f.ledger.CallCount("setPoolAdmin"))
	assert.Zero(t, f.ledger.CallCount("configureReserves"))

	in.Admin = deployer
	_, err = f.orch.ConfigureReserves(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, deployer, f.ledger.Admin())
}

func TestInitReservesStrategyDeployFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	f.ledger.Inject(sim.Fault{Method: "deployRateStrategy", Occurrence: 1})

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("rateStrategyUSDC")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: reserve("rateStrategyDAI")},
		),
		Tokens:   directory(t, market.DirectoryEntry{Symbol: "USDC", Address: usdc}, market.DirectoryEntry{Symbol: "DAI", Address: dai}),
		Naming:   naming,
		Treasury: treasury,
	})
	require.ErrorIs(t, err, sim.ErrInjectedFail)
	assert.Contains(t, err.Error(), "rateStrategyDAI")
	assert.Equal(t, StateAborted, report.State)
	assert.NotContains(t, report.History, StateSubmitting)
	assert.Zero(t, f.ledger.CallCount("batchInitReserve"))

	// the strategy deployed before the failure is kept and recorded
	require.Len(t, report.Strategies, 1)
	recorded, err := f.book.Lookup(ctx, "rateStrategyUSDC")
	require.NoError(t, err)
	assert.Equal(t, report.Strategies[0].Address, recorded)
}

func TestInitReservesChunkRevertKeepsEarlierChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultOptions())
	wbtc := common.HexToAddress("0x00000000000000000000000000000000000000a3")
	f.ledger.Inject(sim.Fault{Method: "batchInitReserve", Occurrence: 2, Revert: true})

	report, err := f.orch.InitReserves(ctx, InitReservesInput{
		Reserves: reserveCatalog(t,
			market.Entry[market.ReserveSpec]{Symbol: "USDC", Spec: reserve("default")},
			market.Entry[market.ReserveSpec]{Symbol: "DAI", Spec: reserve("default")},
			market.Entry[market.ReserveSpec]{Symbol: "WBTC", Spec: reserve("default")},
		),
		Tokens: directory(t,
			market.DirectoryEntry{Symbol: "USDC", Address: usdc},
			market.DirectoryEntry{Symbol: "DAI", Address: dai},
			market.DirectoryEntry{Symbol: "WBTC", Address: wbtc},
		),
		Naming:   naming,
		Treasury: treasury,
	})
	require.ErrorIs(t, err, ledger.ErrReverted)
	var chunkErr *batch.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 2, chunkErr.Index)
	assert.Equal(t, []string{"WBTC"}, chunkErr.Symbols)

	assert.Equal(t, StateAborted, report.State)
	assert.Equal(t, 3, report.Batch.Total)
	assert.False(t, report.Batch.Complete())
	assert.Equal(t, [][]string{{"USDC"}, {"DAI"}}, chunkSymbols(report.Batch))

	_, ok := f.ledger.Reserve(usdc)
	assert.True(t, ok)
	_, ok = f.ledger.Reserve(dai)
	assert.True(t, ok)
	_, ok = f.ledger.Reserve(wbtc)
	assert.False(t, ok)
}
