package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/onboardctl/internal/auth"
	"github.com/danmuck/onboardctl/internal/config"
	"github.com/danmuck/onboardctl/internal/market"
	"github.com/danmuck/onboardctl/internal/observability"
	"github.com/danmuck/onboardctl/internal/onboard"
	"github.com/danmuck/onboardctl/internal/pairs"
	"github.com/danmuck/onboardctl/internal/server"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Onboard reserves and NFT collateral into a lending market",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadEnv(cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			a.logger = observability.InitLogger(defaultStatusApp)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "onboardctl TOML config")
	root.PersistentFlags().StringVar(&a.marketPath, "market", "", "market file (.toml, .yaml)")
	root.PersistentFlags().BoolVar(&a.dryRun, "dry-run", false, "run against a simulated ledger")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newInitReservesCmd(a),
		newInitNftsCmd(a),
		newConfigureReservesCmd(a),
		newConfigureNftsCmd(a),
		newPairsCmd(a),
		newServeCmd(a),
		newTemplateCmd(a),
	)
	return root
}

func newInitReservesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-reserves",
		Short: "Provision rate strategies and initialize reserves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFlow(cmd.Context(), false, func(ctx context.Context, orch *onboard.Orchestrator, s *session) (onboard.RunReport, error) {
				return orch.InitReserves(ctx, onboard.InitReservesInput{
					Reserves: s.market.Reserves,
					Tokens:   s.market.Tokens,
					Naming:   s.market.Naming,
					Treasury: s.cfg.Treasury,
				})
			})
		},
	}
}

func newInitNftsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-nfts",
		Short: "Initialize NFT collateral classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFlow(cmd.Context(), false, func(ctx context.Context, orch *onboard.Orchestrator, s *session) (onboard.RunReport, error) {
				return orch.InitCollateral(ctx, onboard.InitCollateralInput{
					Collateral: s.market.Collateral,
					Nfts:       s.market.Nfts,
				})
			})
		},
	}
}

func newConfigureReservesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure-reserves",
		Short: "Apply reserve factors and borrowing flags through the helper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFlow(cmd.Context(), true, func(ctx context.Context, orch *onboard.Orchestrator, s *session) (onboard.RunReport, error) {
				return orch.ConfigureReserves(ctx, onboard.ConfigureInput[market.ReserveSpec]{
					Specs:     s.market.Reserves,
					Addresses: s.market.Tokens,
					Admin:     s.cfg.Admin,
				})
			})
		},
	}
}

func newConfigureNftsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure-nfts",
		Short: "Apply collateral parameters through the helper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFlow(cmd.Context(), true, func(ctx context.Context, orch *onboard.Orchestrator, s *session) (onboard.RunReport, error) {
				return orch.ConfigureCollateral(ctx, onboard.ConfigureInput[market.CollateralSpec]{
					Specs:     s.market.Collateral,
					Addresses: s.market.Nfts,
					Admin:     s.cfg.Admin,
				})
			})
		},
	}
}

func newPairsCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "Print the asset/price aggregator table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadToolConfig(a.configPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(a.marketPath) == "" {
				return fmt.Errorf("--market is required")
			}
			m, err := config.LoadMarket(a.marketPath)
			if err != nil {
				return err
			}
			opts := cfg.pairOptions()
			if cmd.Flags().Changed("strict") {
				opts.Strict = strict
			}
			table, buildErr := pairs.Build(m.Tokens, m.Aggregators, opts)
			if len(table.Missing) > 0 {
				a.logger.Warn().Strs("missing", table.Missing).Msg("assets without price aggregator")
			}
			if len(table.Unprovisioned) > 0 {
				a.logger.Warn().Strs("unprovisioned", table.Unprovisioned).Msg("assets without address")
			}
			if err := a.printJSON(table); err != nil {
				return err
			}
			return buildErr
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when an asset has no aggregator")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only status server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx, openOptions{market: a.marketPath != ""})
			if err != nil {
				return err
			}
			defer s.Close()

			var pairsFn server.PairsFunc
			if a.marketPath != "" {
				tokens, aggregators, opts := s.market.Tokens, s.market.Aggregators, s.cfg.pairOptions()
				pairsFn = func() (pairs.Table, error) {
					return pairs.Build(tokens, aggregators, opts)
				}
			}
			var opts []server.Option
			if token := s.cfg.statusToken(); token != "" {
				opts = append(opts, server.WithValidator(auth.StaticToken{Token: token}))
			}
			srv := server.New(defaultStatusApp, s.cfg.ListenAddr, s.cfg.CorsOrigins, s.book, pairsFn, a.logger, opts...)
			return srv.Serve(ctx)
		},
	}
}

func newTemplateCmd(a *app) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:       "template <tool|market>",
		Short:     "Write a starter config",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tool", "market"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				body, err := config.Template(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(a.out, body)
				return err
			}
			if err := config.WriteTemplate(out, args[0], force); err != nil {
				return err
			}
			a.logger.Info().Str("path", out).Str("kind", args[0]).Msg("template written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
