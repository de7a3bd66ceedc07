package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/solana"
)

type watchFlags struct {
	mint   string
	format string
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	flags := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch <wallet>",
		Short: "Rescan a wallet incrementally whenever it appears in new transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}
			wallet := args[0]
			if err := solana.ValidateAddress(wallet); err != nil {
				return err
			}

			app := root.getApp()
			defer app.Close()
			if app.Config.RPC.WSEndpoint == "" {
				return errors.New("rpc.ws_endpoint is required for watch")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			app.startMetrics(ctx)

			scanner, err := app.newScanner(ctx)
			if err != nil {
				return err
			}

			wsCfg := solana.DefaultWSConfig()
			wsCfg.Logger = app.Logger
			ws, err := solana.NewWSClient(ctx, app.Config.RPC.WSEndpoint, &wsCfg)
			if err != nil {
				return fmt.Errorf("connect websocket: %w", err)
			}
			defer ws.Close()

			notifications, err := ws.SubscribeLogs(ctx, solana.LogsFilter{
				Mentions:   []string{wallet},
				Commitment: app.Config.RPC.Commitment,
			})
			if err != nil {
				return fmt.Errorf("subscribe logs: %w", err)
			}

			out := cmd.OutOrStdout()
			rescan := func(ctx context.Context) error {
				// Cached analyses predate the notified transaction.
				if err := scanner.ClearCache(ctx, wallet); err != nil {
					return err
				}
				return runScan(ctx, scanner, out, wallet, flags.mint, flags.format)
			}

			if err := rescan(ctx); err != nil {
				return err
			}
			app.Logger.Info().Str("wallet", wallet).Dur("debounce", app.Config.Watch.Debounce).Msg("watching wallet")

			err = watchLoop(ctx, notifications, app.Config.Watch.Debounce, rescan, app.Logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&flags.mint, "mint", "", "Restrict scans to one token mint")
	cmd.Flags().StringVar(&flags.format, "format", formatText, "Output format: text or json")
	return cmd
}

// watchLoop calls trigger once notifications have been quiet for debounce.
// Failed transactions are ignored. Trigger errors are logged and do not stop
// the loop. It returns when ctx is done or the subscription closes.
func watchLoop(ctx context.Context, notifications <-chan solana.LogNotification, debounce time.Duration, trigger func(context.Context) error, log zerolog.Logger) error {
	// Idle until the first notification arms the timer.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	pending := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-notifications:
			if !ok {
				return errors.New("logs subscription closed")
			}
			if n.Failed() {
				continue
			}
			log.Debug().Str("signature", n.Signature).Int64("slot", n.Slot).Msg("wallet activity")
			pending++
			timer.Reset(debounce)

		case <-timer.C:
			log.Info().Int("notifications", pending).Msg("rescanning after wallet activity")
			pending = 0
			if err := trigger(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("rescan failed")
			}
		}
	}
}
