package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/orchestrator"
	"solana-trade-ledger/internal/solana"
)

func newClearCacheCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache [wallet]",
		Short: "Drop cached wallet analyses, or every cache entry when no wallet is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := root.getApp()
			defer app.Close()

			wallet := ""
			if len(args) == 1 {
				wallet = args[0]
				if err := solana.ValidateAddress(wallet); err != nil {
					return err
				}
			}

			store, err := app.openCache(cmd.Context())
			if err != nil {
				return err
			}

			scanner := orchestrator.New(orchestrator.Options{Cache: store, Logger: app.Logger})
			if err := scanner.ClearCache(cmd.Context(), wallet); err != nil {
				return err
			}

			if wallet == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "cleared all caches")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cleared cached analyses for %s\n", wallet)
			}
			return nil
		},
	}
}
