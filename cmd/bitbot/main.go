// Bitbot - Bitget USDT-M futures order bot
//
// Turns directional triggers into one reconciled position with a trailing
// stop and a stop loss attached:
//
//  1. HTTP alerts (open-long / open-short)
//  2. A one-minute MACD histogram regime detector
//  3. Position closes reported on the private order stream
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mattetom/crypto/api"
	"github.com/mattetom/crypto/core"
	"github.com/mattetom/crypto/internal/config"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "bitbot",
		Short:         "Bitget USDT-M futures order bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			bootstrap()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(openCmd("open-long", "Make SYMBOL long, reversing a short"))
	rootCmd.AddCommand(openCmd("open-short", "Make SYMBOL short, reversing a long"))
	rootCmd.AddCommand(macdCmd())
	rootCmd.AddCommand(heartbeatCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("❌ Command failed")
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BOOTSTRAP
// ═══════════════════════════════════════════════════════════════════════════════

func bootstrap() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger, timers and order stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app, err := build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			log.Info().Msg("═══════════════════════════════════════════════════════════════")
			log.Info().Msgf("              BITBOT v%s", version)
			log.Info().Msg("═══════════════════════════════════════════════════════════════")
			log.Info().
				Bool("dry_run", app.Exchange.IsDryRun()).
				Str("macd_symbol", cfg.MACDSymbol).
				Bool("stream", cfg.StreamEnabled).
				Bool("reentry", cfg.StreamReentry).
				Str("state", cfg.StateBackend).
				Msg("⚡ Bitbot starting...")

			app.StartTelegram()
			go app.Engine.RunTimers(ctx)

			if app.Stream != nil {
				go func() {
					if err := app.Stream.Run(ctx); err != nil && ctx.Err() == nil {
						log.Error().Err(err).Msg("❌ Order stream stopped")
					}
				}()
				go app.Engine.ConsumeFills(ctx, app.Stream.Events())
			}

			srv := api.NewServer(cfg.HTTPAddr, app.Engine)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("🛑 Shutting down...")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
			defer c()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("HTTP shutdown incomplete")
			}
			log.Info().Msg("👋 Goodbye")
			return nil
		},
	}
}

func openCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SYMBOL [SIZE]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := core.NormalizeSymbol(args[0])
			if err != nil {
				return err
			}
			size := decimal.Zero
			if len(args) == 2 {
				if size, err = decimal.NewFromString(args[1]); err != nil || !size.IsPositive() {
					return fmt.Errorf("invalid size %q", args[1])
				}
			}

			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				open := app.Engine.OpenLong
				if use == "open-short" {
					open = app.Engine.OpenShort
				}
				out, err := open(ctx, symbol, size)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s order=%s\n", out.Symbol, out.State, out.Action, out.OrderID)
				if out.Bracket != nil {
					fmt.Fprintln(cmd.OutOrStdout(), out.Bracket.Summary())
				}
				return nil
			})
		},
	}
}

func macdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "macd",
		Short: "Record one MACD sample and act on a signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				sig, err := app.Engine.RunMACDCycle(ctx, time.Now())
				if err != nil {
					return err
				}
				if sig == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no signal")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "signal %s %s: %s\n", sig.Symbol, sig.Region, sig.Reason)
				return nil
			})
		},
	}
}

func heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Log every open position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				positions, err := app.Engine.Heartbeat(ctx)
				if err != nil {
					return err
				}
				for _, p := range positions {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s @ %s upnl %s\n",
						p.Symbol, p.HoldSide, p.Total, p.OpenPriceAvg, p.UnrealizedPL)
				}
				return nil
			})
		},
	}
}

// withApp runs fn against a freshly built app for one-shot commands
func withApp(parent context.Context, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
