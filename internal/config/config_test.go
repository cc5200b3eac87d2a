package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/onboardctl/internal/market"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMarketTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.toml")
	require.NoError(t, WriteTemplate(path, "market", false))

	m, err := LoadMarket(path)
	require.NoError(t, err)
	assert.Equal(t, "bend", m.Name)
	assert.Equal(t, "bendWETH", m.Naming.BTokenSymbol("WETH"))
	assert.Equal(t, []string{"WETH"}, m.Reserves.Symbols())
	assert.Equal(t, []string{"BAYC"}, m.Collateral.Symbols())

	spec, ok := m.Reserves.Get("WETH")
	require.True(t, ok)
	assert.Equal(t, "rateStrategyWETH", spec.Strategy.Name)
	assert.Equal(t, "650000000000000000000000000", spec.Strategy.OptimalUtilizationRate.String())

	_, ok = m.Tokens.Lookup("WETH")
	assert.False(t, ok, "empty address means not provisioned")
	assert.Equal(t, 1, m.Tokens.Len())
}

const yamlMarket = `
name: bend
naming:
  btoken_name_prefix: Bend interest bearing
  btoken_symbol_prefix: bend
strategies:
  - name: stable
    optimal_utilization_rate: "900000000000000000000000000"
    base_variable_borrow_rate: "0"
    variable_rate_slope1: "40000000000000000000000000"
    variable_rate_slope2: "600000000000000000000000000"
reserves:
  - symbol: USDC
    decimals: 6
    btoken_impl: BToken
    strategy: stable
    reserve_factor: "1000"
    borrowing_enabled: true
  - symbol: DAI
    decimals: 18
    btoken_impl: BToken
    strategy: stable
    reserve_factor: "1000"
collateral:
  - symbol: WPUNKS
    base_ltv: "-1"
tokens:
  - symbol: DAI
    address: "0x00000000000000000000000000000000000000a2"
  - symbol: USDC
    address: "0x00000000000000000000000000000000000000a1"
aggregators:
  - symbol: USDC
    address: "0x00000000000000000000000000000000000000f1"
`

func TestLoadMarketYAMLKeepsOrder(t *testing.T) {
	m, err := LoadMarket(writeFile(t, "market.yaml", yamlMarket))
	require.NoError(t, err)

	assert.Equal(t, []string{"USDC", "DAI"}, m.Reserves.Symbols())
	entries := m.Tokens.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "DAI", entries[0].Symbol)
	assert.Equal(t, common.HexToAddress("0xa1"), entries[1].Address)

	punks, ok := m.Collateral.Get("WPUNKS")
	require.True(t, ok)
	assert.False(t, punks.Configurable())

	usdc, _ := m.Reserves.Get("USDC")
	dai, _ := m.Reserves.Get("DAI")
	assert.Equal(t, usdc.Strategy, dai.Strategy)
	assert.False(t, dai.BorrowingEnabled)
}

func TestLoadMarketRejectsInvalidFiles(t *testing.T) {
	cases := []struct {
		name string
		body string
		want error
	}{
		{
			name: "unknown strategy",
			body: "[[reserves]]\nsymbol = \"USDC\"\nbtoken_impl = \"BToken\"\nstrategy = \"nope\"\n",
			want: ErrUnknownStrategy,
		},
		{
			name: "duplicate reserve",
			body: "[[strategies]]\nname = \"s\"\n" +
				"[[reserves]]\nsymbol = \"USDC\"\nbtoken_impl = \"BToken\"\nstrategy = \"s\"\n" +
				"[[reserves]]\nsymbol = \"USDC\"\nbtoken_impl = \"BToken\"\nstrategy = \"s\"\n",
			want: market.ErrDuplicateSymbol,
		},
		{
			name: "negative strategy parameter",
			body: "[[strategies]]\nname = \"s\"\nvariable_rate_slope1 = \"-5\"\n",
			want: market.ErrInvalidStrategy,
		},
		{
			name: "fractional strategy parameter",
			body: "[[strategies]]\nname = \"s\"\nvariable_rate_slope2 = \"0.5\"\n",
			want: market.ErrInvalidStrategy,
		},
		{
			name: "malformed address",
			body: "[[tokens]]\nsymbol = \"USDC\"\naddress = \"0x1234\"\n",
			want: market.ErrInvalidAddress,
		},
		{
			name: "not a number",
			body: "[[collateral]]\nsymbol = \"BAYC\"\nbase_ltv = \"forty\"\n",
			want: ErrInvalidMarket,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadMarket(writeFile(t, "market.toml", tc.body))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadMarketUnknownExtension(t *testing.T) {
	_, err := LoadMarket(writeFile(t, "market.json", "{}"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteTemplateRespectsOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboardctl.toml")
	require.NoError(t, WriteTemplate(path, "tool", false))
	require.Error(t, WriteTemplate(path, "tool", false))
	require.NoError(t, WriteTemplate(path, "tool", true))

	_, err := Template("ghost")
	require.Error(t, err)
}
