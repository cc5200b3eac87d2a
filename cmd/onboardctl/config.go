package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/onboard"
	"github.com/danmuck/onboardctl/internal/pairs"
	"github.com/ethereum/go-ethereum/common"
)

const (
	envRPCURL        = "ONBOARD_RPC_URL"
	envNetwork       = "ONBOARD_NETWORK"
	defaultKeyEnv    = "DEPLOYER_PRIVATE_KEY"
	keyProvider      = "LendPoolAddressesProvider"
	keyHelper        = "BTokensAndBNFTsHelper"
	defaultStatusApp = "onboardctl"
)

// toolConfig is the resolved runtime configuration of onboardctl.
type toolConfig struct {
	Network            string
	RPCURL             string
	ChainID            int64
	PrivateKeyEnv      string
	AddressBook        string
	FallbackJSON       string
	ArtifactsDir       string
	InitChunkSize      int
	ConfigureChunkSize int
	Admin              common.Address
	Treasury           common.Address
	NativeSymbols      []string
	StrictPairs        bool
	MetricsTextfile    string
	ListenAddr         string
	CorsOrigins        []string
	StatusTokenEnv     string
}

// onboardctl.toml key mapping.
type fileConfig struct {
	Network            string   `toml:"network"`
	RPCURL             string   `toml:"rpc_url"`
	ChainID            int64    `toml:"chain_id"`
	PrivateKeyEnv      string   `toml:"private_key_env"`
	AddressBook        string   `toml:"addressbook"`
	FallbackJSON       string   `toml:"fallback_json"`
	ArtifactsDir       string   `toml:"artifacts_dir"`
	InitChunkSize      int      `toml:"init_chunk_size"`
	ConfigureChunkSize int      `toml:"configure_chunk_size"`
	Admin              string   `toml:"admin"`
	Treasury           string   `toml:"treasury"`
	NativeSymbols      []string `toml:"native_symbols"`
	StrictPairs        bool     `toml:"strict_pairs"`
	MetricsTextfile    string   `toml:"metrics_textfile"`
	ListenAddr         string   `toml:"listen_addr"`
	CorsOrigins        []string `toml:"cors_origins"`
	StatusTokenEnv     string   `toml:"status_token_env"`
}

func defaultToolConfig() toolConfig {
	return toolConfig{
		Network:            "hardhat",
		RPCURL:             "http://127.0.0.1:8545",
		PrivateKeyEnv:      defaultKeyEnv,
		AddressBook:        "deployed-contracts.sqlite",
		FallbackJSON:       "deployed-contracts.json",
		ArtifactsDir:       "artifacts",
		InitChunkSize:      onboard.DefaultInitChunkSize,
		ConfigureChunkSize: onboard.DefaultConfigureChunkSize,
		NativeSymbols:      append([]string(nil), pairs.DefaultNativeSymbols...),
		ListenAddr:         ":9400",
	}
}

// loadToolConfig overlays path onto the defaults. An empty path keeps the
// defaults. Relative file paths resolve against the config file directory.
func loadToolConfig(path string) (toolConfig, error) {
	cfg := defaultToolConfig()
	if strings.TrimSpace(path) != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return toolConfig{}, fmt.Errorf("load onboardctl config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return toolConfig{}, fmt.Errorf("load onboardctl config: unknown key %q", undecoded[0].String())
		}
		base := filepath.Dir(path)

		if meta.IsDefined("network") {
			cfg.Network = strings.TrimSpace(raw.Network)
		}
		if meta.IsDefined("rpc_url") {
			cfg.RPCURL = strings.TrimSpace(raw.RPCURL)
		}
		if meta.IsDefined("chain_id") {
			cfg.ChainID = raw.ChainID
		}
		if meta.IsDefined("private_key_env") {
			cfg.PrivateKeyEnv = strings.TrimSpace(raw.PrivateKeyEnv)
		}
		if meta.IsDefined("addressbook") {
			cfg.AddressBook = resolvePath(base, raw.AddressBook)
		}
		if meta.IsDefined("fallback_json") {
			cfg.FallbackJSON = resolvePath(base, raw.FallbackJSON)
		}
		if meta.IsDefined("artifacts_dir") {
			cfg.ArtifactsDir = resolvePath(base, raw.ArtifactsDir)
		}
		if meta.IsDefined("init_chunk_size") {
			cfg.InitChunkSize = raw.InitChunkSize
		}
		if meta.IsDefined("configure_chunk_size") {
			cfg.ConfigureChunkSize = raw.ConfigureChunkSize
		}
		if meta.IsDefined("admin") {
			if cfg.Admin, err = optionalAddress("admin", raw.Admin); err != nil {
				return toolConfig{}, err
			}
		}
		if meta.IsDefined("treasury") {
			if cfg.Treasury, err = optionalAddress("treasury", raw.Treasury); err != nil {
				return toolConfig{}, err
			}
		}
		if meta.IsDefined("native_symbols") {
			cfg.NativeSymbols = append([]string{}, raw.NativeSymbols...)
		}
		if meta.IsDefined("strict_pairs") {
			cfg.StrictPairs = raw.StrictPairs
		}
		if meta.IsDefined("metrics_textfile") {
			cfg.MetricsTextfile = resolvePath(base, raw.MetricsTextfile)
		}
		if meta.IsDefined("listen_addr") {
			cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
		}
		if meta.IsDefined("cors_origins") {
			cfg.CorsOrigins = raw.CorsOrigins
		}
		if meta.IsDefined("status_token_env") {
			cfg.StatusTokenEnv = strings.TrimSpace(raw.StatusTokenEnv)
		}
	}

	if v := strings.TrimSpace(os.Getenv(envRPCURL)); v != "" {
		cfg.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envNetwork)); v != "" {
		cfg.Network = v
	}
	if err := cfg.validate(); err != nil {
		return toolConfig{}, err
	}
	return cfg, nil
}

func (c toolConfig) validate() error {
	if c.Network == "" {
		return fmt.Errorf("load onboardctl config: network is required")
	}
	if c.InitChunkSize <= 0 {
		return fmt.Errorf("load onboardctl config: init_chunk_size must be positive, got %d", c.InitChunkSize)
	}
	if c.ConfigureChunkSize <= 0 {
		return fmt.Errorf("load onboardctl config: configure_chunk_size must be positive, got %d", c.ConfigureChunkSize)
	}
	return nil
}

// privateKey reads the deployer key from the configured environment variable.
func (c toolConfig) privateKey() string {
	if c.PrivateKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.PrivateKeyEnv))
}

// statusToken reads the status server bearer token. Empty disables auth.
func (c toolConfig) statusToken() string {
	if c.StatusTokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.StatusTokenEnv))
}

func (c toolConfig) orchestratorOptions() onboard.Options {
	opts := onboard.DefaultOptions()
	opts.InitChunkSize = c.InitChunkSize
	opts.ConfigureChunkSize = c.ConfigureChunkSize
	return opts
}

func (c toolConfig) pairOptions() pairs.Options {
	return pairs.Options{NativeSymbols: c.NativeSymbols, Strict: c.StrictPairs}
}

func optionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	addr, err := market.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("load onboardctl config: %s: %w", field, err)
	}
	return addr, nil
}

func resolvePath(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == ":memory:" || filepath.IsAbs(raw) {
		return raw
	}
	return filepath.Join(base, raw)
}
