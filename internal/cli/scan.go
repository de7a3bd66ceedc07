package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/orchestrator"
)

// Output formats.
const (
	formatJSON = "json"
	formatText = "text"
)

type scanFlags struct {
	mint   string
	format string
}

func newScanCmd(root *rootOptions) *cobra.Command {
	flags := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan <wallet>",
		Short: "Scan a wallet and print its trade ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}
			app := root.getApp()
			defer app.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			app.startMetrics(ctx)

			scanner, err := app.newScanner(ctx)
			if err != nil {
				return err
			}
			return runScan(ctx, scanner, cmd.OutOrStdout(), args[0], flags.mint, flags.format)
		},
	}
	cmd.Flags().StringVar(&flags.mint, "mint", "", "Restrict the scan to one token mint")
	cmd.Flags().StringVar(&flags.format, "format", formatText, "Output format: text or json")
	return cmd
}

func checkFormat(format string) error {
	if format != formatJSON && format != formatText {
		return fmt.Errorf("--format must be %q or %q", formatText, formatJSON)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// writeResult renders a scan result as JSON or as a trade table.
func writeResult(w io.Writer, res *orchestrator.Result, format string) error {
	if format == formatJSON {
		return writeJSON(w, res)
	}

	status := "complete"
	if res.Partial {
		status = "partial (rate limited)"
	}
	if res.Cached {
		status += ", cached"
	}
	fmt.Fprintf(w, "wallet: %s\nmode: %s\nstatus: %s\n", res.Wallet, res.Mode, status)
	if res.Mint != "" {
		fmt.Fprintf(w, "mint: %s\n", res.Mint)
	}
	fmt.Fprintf(w, "trades: %d (%d new)\nunique tokens: %d\ntotal volume: $%s\n\n",
		len(res.Trades), res.NewTrades, res.UniqueTokens, res.TotalVolume.StringFixed(2))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIDE\tTOKEN\tAMOUNT\tSOL\tUSD\tSIGNATURE")
	for _, t := range res.Trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339),
			t.Direction,
			t.TokenSymbol,
			t.TokenAmountChange.String(),
			t.NativeAmount.StringFixed(6),
			t.USDValue.StringFixed(2),
			t.Signature,
		)
	}
	return tw.Flush()
}

// runScan scans one wallet and writes the result. Used by scan and watch.
func runScan(ctx context.Context, scanner *orchestrator.Scanner, w io.Writer, wallet, mint, format string) error {
	res, err := scanner.Scan(ctx, wallet, mint)
	if err != nil {
		return err
	}
	return writeResult(w, res, format)
}
