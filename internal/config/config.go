// Package config loads market description files and renders config templates.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat   = errors.New("config: unknown market file format")
	ErrUnknownStrategy = errors.New("config: unknown strategy")
	ErrInvalidMarket   = errors.New("config: invalid market")
)

// MarketFile is the on-disk market layout. Arrays keep declaration order,
// which is the submission order of every run.
type MarketFile struct {
	Name        string           `toml:"name" yaml:"name"`
	Naming      NamingFile       `toml:"naming" yaml:"naming"`
	Strategies  []StrategyFile   `toml:"strategies" yaml:"strategies"`
	Reserves    []ReserveFile    `toml:"reserves" yaml:"reserves"`
	Collateral  []CollateralFile `toml:"collateral" yaml:"collateral"`
	Tokens      []AddressFile    `toml:"tokens" yaml:"tokens"`
	Nfts        []AddressFile    `toml:"nfts" yaml:"nfts"`
	Aggregators []AddressFile    `toml:"aggregators" yaml:"aggregators"`
}

type NamingFile struct {
	BTokenNamePrefix      string `toml:"btoken_name_prefix" yaml:"btoken_name_prefix"`
	BTokenSymbolPrefix    string `toml:"btoken_symbol_prefix" yaml:"btoken_symbol_prefix"`
	DebtTokenNamePrefix   string `toml:"debt_token_name_prefix" yaml:"debt_token_name_prefix"`
	DebtTokenSymbolPrefix string `toml:"debt_token_symbol_prefix" yaml:"debt_token_symbol_prefix"`
}

// StrategyFile values are decimal strings; ray values overflow 64 bits.
type StrategyFile struct {
	Name                   string `toml:"name" yaml:"name"`
	OptimalUtilizationRate string `toml:"optimal_utilization_rate" yaml:"optimal_utilization_rate"`
	BaseVariableBorrowRate string `toml:"base_variable_borrow_rate" yaml:"base_variable_borrow_rate"`
	VariableRateSlope1     string `toml:"variable_rate_slope1" yaml:"variable_rate_slope1"`
	VariableRateSlope2     string `toml:"variable_rate_slope2" yaml:"variable_rate_slope2"`
}

type ReserveFile struct {
	Symbol           string `toml:"symbol" yaml:"symbol"`
	Decimals         uint8  `toml:"decimals" yaml:"decimals"`
	BTokenImpl       string `toml:"btoken_impl" yaml:"btoken_impl"`
	Strategy         string `toml:"strategy" yaml:"strategy"`
	ReserveFactor    string `toml:"reserve_factor" yaml:"reserve_factor"`
	BorrowingEnabled bool   `toml:"borrowing_enabled" yaml:"borrowing_enabled"`
}

type CollateralFile struct {
	Symbol               string `toml:"symbol" yaml:"symbol"`
	BaseLTV              string `toml:"base_ltv" yaml:"base_ltv"`
	LiquidationThreshold string `toml:"liquidation_threshold" yaml:"liquidation_threshold"`
	LiquidationBonus     string `toml:"liquidation_bonus" yaml:"liquidation_bonus"`
	RedeemDuration       string `toml:"redeem_duration" yaml:"redeem_duration"`
	AuctionDuration      string `toml:"auction_duration" yaml:"auction_duration"`
	RedeemFine           string `toml:"redeem_fine" yaml:"redeem_fine"`
	RedeemThreshold      string `toml:"redeem_threshold" yaml:"redeem_threshold"`
}

// AddressFile is one directory row. An empty address means not provisioned.
type AddressFile struct {
	Symbol  string `toml:"symbol" yaml:"symbol"`
	Address string `toml:"address" yaml:"address"`
}

// LoadMarketFile decodes path by extension: .toml, .yaml or .yml.
func LoadMarketFile(path string) (MarketFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MarketFile{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var out MarketFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		return MarketFile{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return MarketFile{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return out, nil
}

// LoadMarket reads, validates and converts a market file.
func LoadMarket(path string) (Market, error) {
	raw, err := LoadMarketFile(path)
	if err != nil {
		return Market{}, err
	}
	m, err := raw.Market()
	if err != nil {
		return Market{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return m, nil
}
