// Package strategy provisions interest rate strategies once per name per run.
package strategy

import (
	"context"
	"fmt"

	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// GenericKey is the address book key every provisioned strategy is also
// recorded under. Downstream tooling reads either key.
const GenericKey = "InterestRate"

// Recorder persists a provisioned address under a key.
type Recorder interface {
	Record(ctx context.Context, key string, addr common.Address) error
}

// Handle is one resolved strategy.
type Handle struct {
	Name    string
	Address common.Address
}

// Cache maps strategy name -> provisioned address for the lifetime of one
// run. It is not safe for concurrent use; runs are single threaded.
type Cache struct {
	registry   common.Address
	deployer   ledger.StrategyDeployer
	recorder   Recorder
	genericKey string
	logger     zerolog.Logger

	handles map[string]common.Address
	order   []string
}

// Option adjusts a Cache.
type Option func(*Cache)

// WithGenericKey overrides GenericKey. An empty key disables the second
// registration.
func WithGenericKey(key string) Option {
	return func(c *Cache) {
		c.genericKey = key
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache returns an empty run-scoped cache. registry is the addresses
// provider every strategy is bound to.
func NewCache(registry common.Address, deployer ledger.StrategyDeployer, recorder Recorder, opts ...Option) *Cache {
	c := &Cache{
		registry:   registry,
		deployer:   deployer,
		recorder:   recorder,
		genericKey: GenericKey,
		logger:     zerolog.Nop(),
		handles:    make(map[string]common.Address),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the handle for def, provisioning it on first sight. At most
// one provisioning call is made per distinct name, even when recording the
// address afterwards fails. Failures are returned unretried.
func (c *Cache) Resolve(ctx context.Context, def market.StrategyDefinition) (common.Address, error) {
	if addr, ok := c.handles[def.Name]; ok {
		return addr, nil
	}
	if err := def.Validate(); err != nil {
		return common.Address{}, err
	}

	params := ledger.StrategyParams{
		AddressesProvider:      c.registry,
		OptimalUtilizationRate: def.OptimalUtilizationRate.BigInt(),
		BaseVariableBorrowRate: def.BaseVariableBorrowRate.BigInt(),
		VariableRateSlope1:     def.VariableRateSlope1.BigInt(),
		VariableRateSlope2:     def.VariableRateSlope2.BigInt(),
	}
	addr, err := c.deployer.DeployRateStrategy(ctx, def.Name, params)
	if err != nil {
		return common.Address{}, fmt.Errorf("strategy %s: deploy: %w", def.Name, err)
	}
	observability.RecordStrategyDeployment()
	c.handles[def.Name] = addr
	c.order = append(c.order, def.Name)

	if c.recorder != nil {
		if c.genericKey != "" {
			if err := c.recorder.Record(ctx, c.genericKey, addr); err != nil {
				return common.Address{}, fmt.Errorf("strategy %s: record %s: %w", def.Name, c.genericKey, err)
			}
		}
		if err := c.recorder.Record(ctx, def.Name, addr); err != nil {
			return common.Address{}, fmt.Errorf("strategy %s: record: %w", def.Name, err)
		}
	}
	c.logger.Info().Str("strategy", def.Name).Str("address", addr.Hex()).Msg("rate strategy deployed")
	return addr, nil
}

// Lookup returns a cached handle without provisioning.
func (c *Cache) Lookup(name string) (common.Address, bool) {
	addr, ok := c.handles[name]
	return addr, ok
}

// Handles lists cached strategies in first-resolved order.
func (c *Cache) Handles() []Handle {
	out := make([]Handle, len(c.order))
	for i, name := range c.order {
		out[i] = Handle{Name: name, Address: c.handles[name]}
	}
	return out
}

func (c *Cache) Len() int {
	return len(c.order)
}
