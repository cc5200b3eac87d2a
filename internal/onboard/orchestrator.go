package onboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/onboardctl/internal/batch"
	"github.com/danmuck/onboardctl/internal/catalog"
	"github.com/danmuck/onboardctl/internal/chunk"
	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/privilege"
	"github.com/danmuck/onboardctl/internal/strategy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	DefaultInitChunkSize      = 1
	DefaultConfigureChunkSize = 20
)

// ErrHelperHoldsAdmin means the admin to restore is the configuration helper
// itself, usually left behind by an interrupted run. The real admin must be
// given explicitly.
var ErrHelperHoldsAdmin = errors.New("onboard: configuration helper holds the pool admin role")

// AddressBook resolves implementation addresses and records provisioned ones.
type AddressBook interface {
	Lookup(ctx context.Context, key string) (common.Address, error)
	Record(ctx context.Context, key string, addr common.Address) error
}

// Options configure an Orchestrator.
type Options struct {
	InitChunkSize      int
	ConfigureChunkSize int
	// StrategyKey is the generic address book key for strategies. Empty
	// disables the generic registration.
	StrategyKey string
}

func DefaultOptions() Options {
	return Options{
		InitChunkSize:      DefaultInitChunkSize,
		ConfigureChunkSize: DefaultConfigureChunkSize,
		StrategyKey:        strategy.GenericKey,
	}
}

func (o Options) Validate() error {
	if o.InitChunkSize <= 0 {
		return fmt.Errorf("init chunk size: %w: got %d", chunk.ErrInvalidSize, o.InitChunkSize)
	}
	if o.ConfigureChunkSize <= 0 {
		return fmt.Errorf("configure chunk size: %w: got %d", chunk.ErrInvalidSize, o.ConfigureChunkSize)
	}
	return nil
}

// Orchestrator drives onboarding runs against one ledger backend.
type Orchestrator struct {
	backend   ledger.Backend
	book      AddressBook
	opts      Options
	logger    zerolog.Logger
	submitter *batch.Submitter

	guardMu sync.Mutex
	guard   *privilege.Guard
}

func New(backend ledger.Backend, book AddressBook, logger zerolog.Logger, opts Options) (*Orchestrator, error) {
	if backend == nil {
		return nil, errors.New("onboard: nil backend")
	}
	if book == nil {
		return nil, errors.New("onboard: nil address book")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		backend:   backend,
		book:      book,
		opts:      opts,
		logger:    logger,
		submitter: batch.NewSubmitter(backend, logger),
	}, nil
}

// privilegeGuard returns the single guard bound to provider. All
// configuration runs of this orchestrator share it.
func (o *Orchestrator) privilegeGuard(provider ledger.AddressesProvider) *privilege.Guard {
	o.guardMu.Lock()
	defer o.guardMu.Unlock()
	if o.guard == nil {
		o.guard = privilege.NewGuard(provider, o.backend, o.logger)
	}
	return o.guard
}

// InitReservesInput is the desired reserve set of one initialization run.
type InitReservesInput struct {
	Reserves market.Catalog[market.ReserveSpec]
	Tokens   market.Directory
	Naming   market.NamingTemplates
	Treasury common.Address
}

// InitReserves provisions strategies and initializes every reserve whose
// token address is known.
func (o *Orchestrator) InitReserves(ctx context.Context, in InitReservesInput) (RunReport, error) {
	r := newRun(FlowInitReserves, o.logger)

	filtered := catalog.Filter(r.logger, "token", in.Reserves, in.Tokens)
	r.report.Resolved = filtered.Symbols()
	r.report.Skipped = filtered.Skipped
	r.enter(StateFiltered)
	if len(filtered.Resolved) == 0 {
		return r.finish(nil)
	}
	for _, res := range filtered.Resolved {
		if err := res.Spec.Validate(); err != nil {
			return r.finish(fmt.Errorf("%s: %w", res.Symbol, err))
		}
	}

	provider, err := o.backend.Provider(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("resolve addresses provider: %w", err))
	}
	debtImpl, err := o.book.Lookup(ctx, market.DebtTokenImpl)
	if err != nil {
		return r.finish(fmt.Errorf("resolve %s implementation: %w", market.DebtTokenImpl, err))
	}

	cache := strategy.NewCache(provider.Address(), o.backend, o.book,
		strategy.WithGenericKey(o.opts.StrategyKey),
		strategy.WithLogger(r.logger),
	)
	impls := map[string]common.Address{}

	items := make([]batch.Item[ledger.ReserveInit], 0, len(filtered.Resolved))
	for _, res := range filtered.Resolved {
		rateAddr, err := cache.Resolve(ctx, res.Spec.Strategy)
		r.report.Strategies = cache.Handles()
		if err != nil {
			return r.finish(err)
		}

		bTokenImpl, ok := impls[res.Spec.BTokenImpl]
		if !ok {
			bTokenImpl, err = o.book.Lookup(ctx, res.Spec.BTokenImpl)
			if err != nil {
				return r.finish(fmt.Errorf("%s: resolve %s implementation: %w", res.Symbol, res.Spec.BTokenImpl, err))
			}
			impls[res.Spec.BTokenImpl] = bTokenImpl
		}

		items = append(items, batch.Item[ledger.ReserveInit]{
			Symbol: res.Symbol,
			Asset:  res.Address,
			Params: ledger.ReserveInit{
				BTokenImpl:              bTokenImpl,
				DebtTokenImpl:           debtImpl,
				UnderlyingAssetDecimals: res.Spec.Decimals,
				InterestRateAddress:     rateAddr,
				UnderlyingAsset:         res.Address,
				Treasury:                in.Treasury,
				UnderlyingAssetName:     res.Symbol,
				BTokenName:              in.Naming.BTokenName(res.Symbol),
				BTokenSymbol:            in.Naming.BTokenSymbol(res.Symbol),
				DebtTokenName:           in.Naming.DebtTokenName(res.Symbol),
				DebtTokenSymbol:         in.Naming.DebtTokenSymbol(res.Symbol),
			},
		})
	}
	r.enter(StateStrategyResolved)

	configurator, err := o.backend.Configurator(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("resolve configurator: %w", err))
	}
	r.enter(StatePlanned)
	r.enter(StateSubmitting)
	r.report.Batch, err = batch.Submit(ctx, o.submitter, string(FlowInitReserves), "Reserves initialization",
		items, o.opts.InitChunkSize, configurator.BatchInitReserve)
	return r.finish(err)
}

// InitCollateralInput is the desired collateral set of one initialization run.
type InitCollateralInput struct {
	Collateral market.Catalog[market.CollateralSpec]
	Nfts       market.Directory
}

// InitCollateral initializes every collateral class whose NFT address is known.
func (o *Orchestrator) InitCollateral(ctx context.Context, in InitCollateralInput) (RunReport, error) {
	r := newRun(FlowInitCollateral, o.logger)

	filtered := catalog.Filter(r.logger, "nft", in.Collateral, in.Nfts)
	r.report.Resolved = filtered.Symbols()
	r.report.Skipped = filtered.Skipped
	r.enter(StateFiltered)
	if len(filtered.Resolved) == 0 {
		return r.finish(nil)
	}

	items := make([]batch.Item[ledger.NftInit], 0, len(filtered.Resolved))
	for _, res := range filtered.Resolved {
		items = append(items, batch.Item[ledger.NftInit]{
			Symbol: res.Symbol,
			Asset:  res.Address,
			Params: ledger.NftInit{UnderlyingAsset: res.Address},
		})
	}

	configurator, err := o.backend.Configurator(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("resolve configurator: %w", err))
	}
	r.enter(StatePlanned)
	r.enter(StateSubmitting)
	r.report.Batch, err = batch.Submit(ctx, o.submitter, string(FlowInitCollateral), "NFTs initialization",
		items, o.opts.InitChunkSize, configurator.BatchInitNft)
	return r.finish(err)
}

// ConfigureInput is the desired set of one configuration run. A zero Admin
// means the current pool admin is restored after the run. The admin to
// restore may never be the helper.
type ConfigureInput[T any] struct {
	Specs     market.Catalog[T]
	Addresses market.Directory
	Admin     common.Address
}

// ConfigureReserves applies reserve factors and borrowing flags through the
// helper while it temporarily holds the pool admin role.
func (o *Orchestrator) ConfigureReserves(ctx context.Context, in ConfigureInput[market.ReserveSpec]) (RunReport, error) {
	build := func(res catalog.Resolved[market.ReserveSpec]) (ledger.ReserveConfig, bool, error) {
		if err := res.Spec.Validate(); err != nil {
			return ledger.ReserveConfig{}, false, err
		}
		return ledger.ReserveConfig{
			Asset:            res.Address,
			ReserveFactor:    res.Spec.ReserveFactor.BigInt(),
			BorrowingEnabled: res.Spec.BorrowingEnabled,
		}, true, nil
	}
	send := func(h ledger.Helper) batch.SendFunc[ledger.ReserveConfig] {
		return h.ConfigureReserves
	}
	return configure(ctx, o, FlowConfigureReserves, "token", "Configure reserves", in, build, send)
}

// ConfigureCollateral applies collateral parameters through the helper while
// it temporarily holds the pool admin role. Classes with a base LTV of -1 are
// left out.
func (o *Orchestrator) ConfigureCollateral(ctx context.Context, in ConfigureInput[market.CollateralSpec]) (RunReport, error) {
	build := func(res catalog.Resolved[market.CollateralSpec]) (ledger.NftConfig, bool, error) {
		spec := res.Spec
		if !spec.Configurable() {
			return ledger.NftConfig{}, false, nil
		}
		if err := spec.Validate(); err != nil {
			return ledger.NftConfig{}, false, err
		}
		return ledger.NftConfig{
			Asset:                res.Address,
			BaseLTV:              spec.BaseLTV.BigInt(),
			LiquidationThreshold: spec.LiquidationThreshold.BigInt(),
			LiquidationBonus:     spec.LiquidationBonus.BigInt(),
			RedeemDuration:       spec.RedeemDuration.BigInt(),
			AuctionDuration:      spec.AuctionDuration.BigInt(),
			RedeemFine:           spec.RedeemFine.BigInt(),
			RedeemThreshold:      spec.RedeemThreshold.BigInt(),
		}, true, nil
	}
	send := func(h ledger.Helper) batch.SendFunc[ledger.NftConfig] {
		return h.ConfigureNfts
	}
	return configure(ctx, o, FlowConfigureCollateral, "nft", "Configure NFTs", in, build, send)
}

func configure[T, P any](
	ctx context.Context,
	o *Orchestrator,
	flow Flow,
	kind, label string,
	in ConfigureInput[T],
	build func(catalog.Resolved[T]) (P, bool, error),
	send func(ledger.Helper) batch.SendFunc[P],
) (RunReport, error) {
	r := newRun(flow, o.logger)

	filtered := catalog.Filter(r.logger, kind, in.Specs, in.Addresses)
	r.report.Skipped = filtered.Skipped

	items := make([]batch.Item[P], 0, len(filtered.Resolved))
	for _, res := range filtered.Resolved {
		params, ok, err := build(res)
		if err != nil {
			r.enter(StateFiltered)
			return r.finish(fmt.Errorf("%s: %w", res.Symbol, err))
		}
		if !ok {
			r.logger.Info().Str("symbol", res.Symbol).Msg("  - Excluded from configuration")
			r.report.Excluded = append(r.report.Excluded, res.Symbol)
			continue
		}
		r.logger.Info().Str("symbol", res.Symbol).Interface("params", params).Msgf("  - Params for %s", res.Symbol)
		r.report.Resolved = append(r.report.Resolved, res.Symbol)
		items = append(items, batch.Item[P]{Symbol: res.Symbol, Asset: res.Address, Params: params})
	}
	r.enter(StateFiltered)

	// nothing to configure: no role transfers at all
	if len(items) == 0 {
		return r.finish(nil)
	}

	provider, err := o.backend.Provider(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("resolve addresses provider: %w", err))
	}
	helper, err := o.backend.Helper(ctx)
	if err != nil {
		return r.finish(fmt.Errorf("resolve helper: %w", err))
	}
	admin := in.Admin
	if admin == (common.Address{}) {
		admin, err = provider.PoolAdmin(ctx)
		if err != nil {
			return r.finish(fmt.Errorf("read pool admin: %w", err))
		}
	}
	if admin == helper.Address() {
		r.logger.Error().Str("helper", admin.Hex()).Msg("pool admin is the helper; set the admin to restore explicitly")
		return r.finish(fmt.Errorf("%w: %s", ErrHelperHoldsAdmin, admin.Hex()))
	}
	r.enter(StatePlanned)

	session := privilege.Session{Original: admin, Delegate: helper.Address()}
	err = o.privilegeGuard(provider).Run(ctx, session, func(ctx context.Context) error {
		r.report.Elevated = true
		r.enter(StateElevated)
		r.enter(StateSubmitting)
		var err error
		r.report.Batch, err = batch.Submit(ctx, o.submitter, string(flow), label, items, o.opts.ConfigureChunkSize, send(helper))
		return err
	})
	if r.report.Elevated && !errors.Is(err, privilege.ErrRestore) {
		r.enter(StateRestored)
	}
	return r.finish(err)
}
