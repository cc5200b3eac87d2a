package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/onboardctl/internal/addressbook"
	"github.com/danmuck/onboardctl/internal/config"
	"github.com/danmuck/onboardctl/internal/ledger"
	"github.com/danmuck/onboardctl/internal/ledger/evm"
	"github.com/danmuck/onboardctl/internal/ledger/sim"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/danmuck/onboardctl/internal/onboard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// dryRunSender stands in for the deployer when no key is configured.
var dryRunSender = common.HexToAddress("0x00000000000000000000000000000000000000d0")

type app struct {
	configPath string
	marketPath string
	envFile    string
	dryRun     bool

	out    io.Writer
	logger zerolog.Logger
}

func newApp(out io.Writer) *app {
	return &app{out: out, logger: zerolog.Nop()}
}

// loadEnv reads the .env file. A missing default file is fine; a missing
// explicit one is not.
func (a *app) loadEnv(explicit bool) error {
	if a.envFile == "" {
		return nil
	}
	if _, err := os.Stat(a.envFile); errors.Is(err, os.ErrNotExist) && !explicit {
		return nil
	}
	if err := godotenv.Load(a.envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", a.envFile, err)
	}
	return nil
}

// session is everything one command needs, opened from the tool config.
type session struct {
	cfg     toolConfig
	market  config.Market
	book    *addressbook.Book
	backend ledger.Backend

	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

type openOptions struct {
	market  bool
	backend bool
	// adopt pre-initializes directory assets in dry runs of configuration flows.
	adopt bool
}

func (a *app) open(ctx context.Context, opts openOptions) (*session, error) {
	cfg, err := loadToolConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}

	if opts.market {
		if strings.TrimSpace(a.marketPath) == "" {
			return nil, errors.New("--market is required")
		}
		if s.market, err = config.LoadMarket(a.marketPath); err != nil {
			return nil, err
		}
	}

	if s.book, err = a.openBook(ctx, s); err != nil {
		s.Close()
		return nil, err
	}

	if opts.backend {
		if err := a.openBackend(ctx, s, opts.adopt); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// openBook opens the persistent address book, or an in-memory copy of it
// for dry runs so rehearsals never write provisioned addresses.
func (a *app) openBook(ctx context.Context, s *session) (*addressbook.Book, error) {
	fallback, err := addressbook.LoadFallback(s.cfg.FallbackJSON, s.cfg.Network)
	if err != nil {
		return nil, err
	}
	if !a.dryRun {
		store, err := addressbook.Open(s.cfg.AddressBook)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = store.Close() })
		return addressbook.NewBook(store, s.cfg.Network, fallback), nil
	}

	mem, err := addressbook.Open(":memory:")
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = mem.Close() })
	if _, err := os.Stat(s.cfg.AddressBook); err == nil {
		src, err := addressbook.Open(s.cfg.AddressBook)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		records, err := src.List(ctx, s.cfg.Network)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if err := mem.Put(ctx, rec.Network, rec.Key, rec.Address); err != nil {
				return nil, err
			}
		}
	}
	return addressbook.NewBook(mem, s.cfg.Network, fallback), nil
}

func (a *app) openBackend(ctx context.Context, s *session, adopt bool) error {
	key := s.cfg.privateKey()
	if a.dryRun {
		sender := dryRunSender
		if key != "" {
			pk, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
			if err != nil {
				return fmt.Errorf("parse private key: %w", err)
			}
			sender = crypto.PubkeyToAddress(pk.PublicKey)
		}
		l := sim.New(sender)
		if adopt {
			l.Adopt(directoryAddresses(s.market.Tokens), directoryAddresses(s.market.Nfts))
		}
		a.logger.Info().Str("sender", sender.Hex()).Msg("dry run: simulated ledger")
		s.backend = l
		return nil
	}

	provider, err := s.book.Lookup(ctx, keyProvider)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", keyProvider, err)
	}
	helper, err := s.book.Lookup(ctx, keyHelper)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", keyHelper, err)
	}
	client, err := evm.Dial(ctx, evm.Config{
		RPCURL:       s.cfg.RPCURL,
		ChainID:      s.cfg.ChainID,
		PrivateKey:   key,
		Provider:     provider,
		Helper:       helper,
		ArtifactsDir: s.cfg.ArtifactsDir,
	}, a.logger)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, client.Close)
	s.backend = client
	return nil
}

func directoryAddresses(d market.Directory) []common.Address {
	var out []common.Address
	for _, e := range d.Entries() {
		if e.Address != (common.Address{}) {
			out = append(out, e.Address)
		}
	}
	return out
}

type flowFunc func(ctx context.Context, orch *onboard.Orchestrator, s *session) (onboard.RunReport, error)

// runFlow opens a session, runs one orchestrator flow and prints its report.
// The report is printed on failure too: confirmed chunks stay committed.
func (a *app) runFlow(ctx context.Context, adopt bool, fn flowFunc) error {
	s, err := a.open(ctx, openOptions{market: true, backend: true, adopt: adopt})
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := onboard.New(s.backend, s.book, a.logger, s.cfg.orchestratorOptions())
	if err != nil {
		return err
	}
	report, runErr := fn(ctx, orch, s)

	if err := a.printJSON(report); err != nil {
		return errors.Join(runErr, err)
	}
	if s.cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
			a.logger.Warn().Err(err).Str("path", s.cfg.MetricsTextfile).Msg("metrics textfile write failed")
		}
	}
	return runErr
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
