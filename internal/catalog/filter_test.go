package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/testutil/testlog"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCatalog(t *testing.T, symbols ...string) market.Catalog[string] {
	t.Helper()
	var c market.Catalog[string]
	for _, s := range symbols {
		require.NoError(t, c.Add(s, "spec-"+s))
	}
	return c
}

func TestFilterKeepsOrderAndSkipsMissing(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	specs := mustCatalog(t, "WETH", "USDC", "WBTC", "DAI")
	dir := addrDirectory(t, map[string]string{
		"DAI":  "0x00000000000000000000000000000000000000d1",
		"WETH": "0x00000000000000000000000000000000000000e1",
		"USDC": "0x00000000000000000000000000000000000000c1",
	}, "DAI", "WETH", "USDC")

	res := Filter(logger, "token", specs, dir)
	assert.Equal(t, []string{"WETH", "USDC", "DAI"}, res.Symbols())
	assert.Equal(t, []string{"WBTC"}, res.Skipped)
	assert.Equal(t, "spec-USDC", res.Resolved[1].Spec)
	assert.Equal(t, common.HexToAddress("0xc1"), res.Resolved[1].Address)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Skipping init of WBTC")
}

func TestFilterLawOneDiagnosticPerMissingSymbol(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	specs := mustCatalog(t, "A", "B", "C", "D", "E")
	dir := addrDirectory(t, map[string]string{
		"B": "0x00000000000000000000000000000000000000b0",
		"D": "0x00000000000000000000000000000000000000d0",
		"E": "0x0000000000000000000000000000000000000000",
	}, "B", "D", "E")

	res := Filter(logger, "nft", specs, dir)
	assert.Equal(t, []string{"B", "D"}, res.Symbols())
	assert.Equal(t, []string{"A", "C", "E"}, res.Skipped)
	for _, missing := range res.Skipped {
		assert.Equal(t, 1, strings.Count(buf.String(), "Skipping init of "+missing+" "), missing)
		assert.NotContains(t, res.Symbols(), missing)
	}
}

func TestFilterEmptyInputs(t *testing.T) {
	testlog.Start(t)
	res := Filter(zerolog.Nop(), "token", market.Catalog[string]{}, market.Directory{})
	assert.Empty(t, res.Resolved)
	assert.Empty(t, res.Skipped)
}

func addrDirectory(t *testing.T, addrs map[string]string, order ...string) market.Directory {
	t.Helper()
	pairs := make([][2]string, 0, len(order))
	for _, s := range order {
		pairs = append(pairs, [2]string{s, addrs[s]})
	}
	d, err := market.ParseDirectory(pairs)
	require.NoError(t, err)
	return d
}
