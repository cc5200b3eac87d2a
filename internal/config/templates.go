package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "tool":
		return toolTemplate, nil
	case "market":
		return marketTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const toolTemplate = `network = "hardhat"
rpc_url = "http://127.0.0.1:8545"
chain_id = 31337
private_key_env = "DEPLOYER_PRIVATE_KEY"

addressbook = "deployed-contracts.sqlite"
fallback_json = "deployed-contracts.json"
artifacts_dir = "artifacts"

init_chunk_size = 1
configure_chunk_size = 20

# empty admin restores the pool admin read before elevation
admin = ""
treasury = "0x0000000000000000000000000000000000000000"

native_symbols = ["ETH", "WETH"]
strict_pairs = false

metrics_textfile = ""
listen_addr = ":9400"
cors_origins = ["http://localhost:3000"]
# env var holding the bearer token for /addresses and /pairs; empty disables auth
status_token_env = ""
`

const marketTemplate = `name = "bend"

[naming]
btoken_name_prefix = "Bend interest bearing"
btoken_symbol_prefix = "bend"
debt_token_name_prefix = "Bend debt bearing"
debt_token_symbol_prefix = "bendDebt"

[[strategies]]
name = "rateStrategyWETH"
optimal_utilization_rate = "650000000000000000000000000"
base_variable_borrow_rate = "30000000000000000000000000"
variable_rate_slope1 = "80000000000000000000000000"
variable_rate_slope2 = "1000000000000000000000000000"

[[reserves]]
symbol = "WETH"
decimals = 18
btoken_impl = "BToken"
strategy = "rateStrategyWETH"
reserve_factor = "1000"
borrowing_enabled = true

[[collateral]]
symbol = "BAYC"
base_ltv = "4000"
liquidation_threshold = "9000"
liquidation_bonus = "500"
redeem_duration = "48"
auction_duration = "48"
redeem_fine = "500"
redeem_threshold = "5000"

[[tokens]]
symbol = "WETH"
address = ""

[[nfts]]
symbol = "BAYC"
address = ""

[[aggregators]]
symbol = "USDC"
address = ""
`
