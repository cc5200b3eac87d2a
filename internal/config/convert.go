package config

import (
	"fmt"
	"strings"

	"github.com/danmuck/onboardctl/internal/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Market is a validated market description.
type Market struct {
	Name        string
	Naming      market.NamingTemplates
	Strategies  []market.StrategyDefinition
	Reserves    market.Catalog[market.ReserveSpec]
	Collateral  market.Catalog[market.CollateralSpec]
	Tokens      market.Directory
	Nfts        market.Directory
	Aggregators market.Directory
}

// Market converts the file into domain types. Every strategy, reserve and
// collateral entry is validated here so runs fail before any external call.
func (f MarketFile) Market() (Market, error) {
	out := Market{
		Name: strings.TrimSpace(f.Name),
		Naming: market.NamingTemplates{
			BTokenNamePrefix:      f.Naming.BTokenNamePrefix,
			BTokenSymbolPrefix:    f.Naming.BTokenSymbolPrefix,
			DebtTokenNamePrefix:   f.Naming.DebtTokenNamePrefix,
			DebtTokenSymbolPrefix: f.Naming.DebtTokenSymbolPrefix,
		},
	}

	strategies := make(map[string]market.StrategyDefinition, len(f.Strategies))
	for i, s := range f.Strategies {
		def, err := s.definition()
		if err != nil {
			return Market{}, fmt.Errorf("strategies[%d]: %w", i, err)
		}
		if _, dup := strategies[def.Name]; dup {
			return Market{}, fmt.Errorf("strategies[%d]: %w: duplicate strategy %s", i, ErrInvalidMarket, def.Name)
		}
		strategies[def.Name] = def
		out.Strategies = append(out.Strategies, def)
	}

	for i, r := range f.Reserves {
		def, ok := strategies[strings.TrimSpace(r.Strategy)]
		if !ok {
			return Market{}, fmt.Errorf("reserves[%d] %s: %w: %q", i, r.Symbol, ErrUnknownStrategy, r.Strategy)
		}
		factor, err := parseNumber("reserve_factor", r.ReserveFactor)
		if err != nil {
			return Market{}, fmt.Errorf("reserves[%d] %s: %w", i, r.Symbol, err)
		}
		spec := market.ReserveSpec{
			Decimals:         r.Decimals,
			BTokenImpl:       strings.TrimSpace(r.BTokenImpl),
			Strategy:         def,
			ReserveFactor:    factor,
			BorrowingEnabled: r.BorrowingEnabled,
		}
		if err := spec.Validate(); err != nil {
			return Market{}, fmt.Errorf("reserves[%d] %s: %w", i, r.Symbol, err)
		}
		if err := out.Reserves.Add(r.Symbol, spec); err != nil {
			return Market{}, fmt.Errorf("reserves[%d]: %w", i, err)
		}
	}

	for i, c := range f.Collateral {
		spec, err := c.spec()
		if err != nil {
			return Market{}, fmt.Errorf("collateral[%d] %s: %w", i, c.Symbol, err)
		}
		if err := out.Collateral.Add(c.Symbol, spec); err != nil {
			return Market{}, fmt.Errorf("collateral[%d]: %w", i, err)
		}
	}

	var err error
	if out.Tokens, err = directory("tokens", f.Tokens); err != nil {
		return Market{}, err
	}
	if out.Nfts, err = directory("nfts", f.Nfts); err != nil {
		return Market{}, err
	}
	if out.Aggregators, err = directory("aggregators", f.Aggregators); err != nil {
		return Market{}, err
	}
	return out, nil
}

func (s StrategyFile) definition() (market.StrategyDefinition, error) {
	def := market.StrategyDefinition{Name: strings.TrimSpace(s.Name)}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"optimal_utilization_rate", s.OptimalUtilizationRate, &def.OptimalUtilizationRate},
		{"base_variable_borrow_rate", s.BaseVariableBorrowRate, &def.BaseVariableBorrowRate},
		{"variable_rate_slope1", s.VariableRateSlope1, &def.VariableRateSlope1},
		{"variable_rate_slope2", s.VariableRateSlope2, &def.VariableRateSlope2},
	}
	for _, f := range fields {
		v, err := parseNumber(f.name, f.raw)
		if err != nil {
			return market.StrategyDefinition{}, fmt.Errorf("%s: %w", def.Name, err)
		}
		*f.dst = v
	}
	if err := def.Validate(); err != nil {
		return market.StrategyDefinition{}, err
	}
	return def, nil
}

func (c CollateralFile) spec() (market.CollateralSpec, error) {
	var spec market.CollateralSpec
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"base_ltv", c.BaseLTV, &spec.BaseLTV},
		{"liquidation_threshold", c.LiquidationThreshold, &spec.LiquidationThreshold},
		{"liquidation_bonus", c.LiquidationBonus, &spec.LiquidationBonus},
		{"redeem_duration", c.RedeemDuration, &spec.RedeemDuration},
		{"auction_duration", c.AuctionDuration, &spec.AuctionDuration},
		{"redeem_fine", c.RedeemFine, &spec.RedeemFine},
		{"redeem_threshold", c.RedeemThreshold, &spec.RedeemThreshold},
	}
	for _, f := range fields {
		v, err := parseNumber(f.name, f.raw)
		if err != nil {
			return market.CollateralSpec{}, err
		}
		*f.dst = v
	}
	if err := spec.Validate(); err != nil {
		return market.CollateralSpec{}, err
	}
	return spec, nil
}

func parseNumber(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidMarket, field, raw)
	}
	return v, nil
}

func directory(section string, rows []AddressFile) (market.Directory, error) {
	var d market.Directory
	for i, row := range rows {
		var addr common.Address
		if strings.TrimSpace(row.Address) != "" {
			parsed, err := market.ParseAddress(row.Address)
			if err != nil {
				return market.Directory{}, fmt.Errorf("%s[%d] %s: %w", section, i, row.Symbol, err)
			}
			addr = parsed
		}
		if err := d.Set(row.Symbol, addr); err != nil {
			return market.Directory{}, fmt.Errorf("%s[%d]: %w", section, i, err)
		}
	}
	return d, nil
}
