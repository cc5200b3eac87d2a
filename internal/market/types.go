package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStrategy = errors.New("market: invalid strategy")
	ErrInvalidSpec     = errors.New("market: invalid resource spec")
)

// DebtTokenImpl is the address book key of the shared debt token implementation.
const DebtTokenImpl = "DebtToken"

// StrategyDefinition is a named interest rate strategy shared by reserves.
type StrategyDefinition struct {
	Name                   string
	OptimalUtilizationRate decimal.Decimal
	BaseVariableBorrowRate decimal.Decimal
	VariableRateSlope1     decimal.Decimal
	VariableRateSlope2     decimal.Decimal
}

// Validate requires a name and non-negative integral (ray) parameters.
func (s StrategyDefinition) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidStrategy)
	}
	params := []struct {
		field string
		value decimal.Decimal
	}{
		{"optimal_utilization_rate", s.OptimalUtilizationRate},
		{"base_variable_borrow_rate", s.BaseVariableBorrowRate},
		{"variable_rate_slope1", s.VariableRateSlope1},
		{"variable_rate_slope2", s.VariableRateSlope2},
	}
	for _, p := range params {
		if p.value.IsNegative() || !p.value.IsInteger() {
			return fmt.Errorf("%w: %s: %s must be a non-negative integer", ErrInvalidStrategy, s.Name, p.field)
		}
	}
	return nil
}

// ReserveSpec describes one lending reserve.
type ReserveSpec struct {
	Decimals         uint8
	BTokenImpl       string
	Strategy         StrategyDefinition
	ReserveFactor    decimal.Decimal
	BorrowingEnabled bool
}

// Validate checks the reserve fields that are sent on-chain.
func (r ReserveSpec) Validate() error {
	if strings.TrimSpace(r.BTokenImpl) == "" {
		return fmt.Errorf("%w: missing btoken_impl", ErrInvalidSpec)
	}
	if r.ReserveFactor.IsNegative() || !r.ReserveFactor.IsInteger() {
		return fmt.Errorf("%w: reserve_factor must be a non-negative integer", ErrInvalidSpec)
	}
	return r.Strategy.Validate()
}

// CollateralSpec describes one NFT collateral class.
type CollateralSpec struct {
	BaseLTV              decimal.Decimal
	LiquidationThreshold decimal.Decimal
	LiquidationBonus     decimal.Decimal
	RedeemDuration       decimal.Decimal
	AuctionDuration      decimal.Decimal
	RedeemFine           decimal.Decimal
	RedeemThreshold      decimal.Decimal
}

var disabledLTV = decimal.NewFromInt(-1)

// Configurable reports whether the class takes part in configuration runs.
// A base LTV of -1 marks a class that is initialized but left unconfigured.
func (c CollateralSpec) Configurable() bool {
	return !c.BaseLTV.Equal(disabledLTV)
}

// Validate checks that every configured value is a non-negative integer.
func (c CollateralSpec) Validate() error {
	if !c.Configurable() {
		return nil
	}
	params := []struct {
		field string
		value decimal.Decimal
	}{
		{"base_ltv", c.BaseLTV},
		{"liquidation_threshold", c.LiquidationThreshold},
		{"liquidation_bonus", c.LiquidationBonus},
		{"redeem_duration", c.RedeemDuration},
		{"auction_duration", c.AuctionDuration},
		{"redeem_fine", c.RedeemFine},
		{"redeem_threshold", c.RedeemThreshold},
	}
	for _, p := range params {
		if p.value.IsNegative() || !p.value.IsInteger() {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSpec, p.field)
		}
	}
	return nil
}

// NamingTemplates hold the prefixes used to name per-reserve tokens.
type NamingTemplates struct {
	BTokenNamePrefix      string
	BTokenSymbolPrefix    string
	DebtTokenNamePrefix   string
	DebtTokenSymbolPrefix string
}

func (n NamingTemplates) BTokenName(symbol string) string {
	return n.BTokenNamePrefix + " " + symbol
}

func (n NamingTemplates) BTokenSymbol(symbol string) string {
	return n.BTokenSymbolPrefix + symbol
}

func (n NamingTemplates) DebtTokenName(symbol string) string {
	return n.DebtTokenNamePrefix + " " + symbol
}

func (n NamingTemplates) DebtTokenSymbol(symbol string) string {
	return n.DebtTokenSymbolPrefix + symbol
}
