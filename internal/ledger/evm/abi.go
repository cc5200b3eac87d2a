package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the fragments the onboarding flows call are embedded.
const (
	providerABIJSON = `[
	{"type":"function","name":"getPoolAdmin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"setPoolAdmin","stateMutability":"nonpayable","inputs":[{"name":"admin","type":"address"}],"outputs":[]},
	{"type":"function","name":"getLendPoolConfigurator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

	configuratorABIJSON = `[
	{"type":"function","name":"batchInitReserve","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"input","type":"tuple[]","components":[
			{"name":"bTokenImpl","type":"address"},
			{"name":"debtTokenImpl","type":"address"},
			{"name":"underlyingAssetDecimals","type":"uint8"},
			{"name":"interestRateAddress","type":"address"},
			{"name":"underlyingAsset","type":"address"},
			{"name":"treasury","type":"address"},
			{"name":"underlyingAssetName","type":"string"},
			{"name":"bTokenName","type":"string"},
			{"name":"bTokenSymbol","type":"string"},
			{"name":"debtTokenName","type":"string"},
			{"name":"debtTokenSymbol","type":"string"}
		]}
	]},
	{"type":"function","name":"batchInitNft","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"input","type":"tuple[]","components":[
			{"name":"underlyingAsset","type":"address"}
		]}
	]}
]`

	helperABIJSON = `[
	{"type":"function","name":"configureReserves","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"inputParams","type":"tuple[]","components":[
			{"name":"asset","type":"address"},
			{"name":"reserveFactor","type":"uint256"},
			{"name":"borrowingEnabled","type":"bool"}
		]}
	]},
	{"type":"function","name":"configureNfts","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"inputParams","type":"tuple[]","components":[
			{"name":"asset","type":"address"},
			{"name":"baseLTV","type":"uint256"},
			{"name":"liquidationThreshold","type":"uint256"},
			{"name":"liquidationBonus","type":"uint256"},
			{"name":"redeemDuration","type":"uint256"},
			{"name":"auctionDuration","type":"uint256"},
			{"name":"redeemFine","type":"uint256"},
			{"name":"redeemThreshold","type":"uint256"}
		]}
	]}
]`
)

var (
	providerABI     = mustParseABI("provider", providerABIJSON)
	configuratorABI = mustParseABI("configurator", configuratorABIJSON)
	helperABI       = mustParseABI("helper", helperABIJSON)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("evm: parse " + name + " abi: " + err.Error())
	}
	return parsed
}
