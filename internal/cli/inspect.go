package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/classify"
	"solana-trade-ledger/internal/domain"
	"solana-trade-ledger/internal/ingestion"
	"solana-trade-ledger/internal/solana"
)

type inspectFlags struct {
	wallet string
	mint   string
	format string
}

// inspection is the JSON shape of the inspect command.
type inspection struct {
	Signature    string               `json:"signature"`
	BlockTime    int64                `json:"blockTime"`
	Failed       bool                 `json:"failed"`
	Fee          decimal.Decimal      `json:"fee"`
	NativeChange *decimal.Decimal     `json:"nativeChange"`
	TokenChanges []domain.TokenChange `json:"tokenChanges"`
	Verdict      classify.Reason      `json:"verdict"`
	Trade        *domain.Trade        `json:"trade,omitempty"`
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <signature>",
		Short: "Show the balance changes of one transaction and how it classifies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}
			app := root.getApp()
			defer app.Close()

			rpc := app.newRPC()
			fetcher := ingestion.NewTransactionFetcher(rpc, app.newExecutor("rpc", app.Config.Resilience.RPCBreaker), app.Logger)
			tx, err := fetcher.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if tx == nil {
				return fmt.Errorf("transaction %s not found", args[0])
			}

			report, err := inspect(tx, app.newClassifier(), flags.wallet, flags.mint)
			if err != nil {
				return err
			}
			if flags.format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return writeInspection(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&flags.wallet, "wallet", "", "Wallet the trade is attributed to (defaults to the fee payer label)")
	cmd.Flags().StringVar(&flags.mint, "mint", "", "Classify scoped to one token mint")
	cmd.Flags().StringVar(&flags.format, "format", formatText, "Output format: text or json")
	return cmd
}

// inspect diffs balances with the fine dust threshold and runs the classifier.
func inspect(tx *solana.Transaction, c *classify.Classifier, wallet, mint string) (*inspection, error) {
	if tx.Meta == nil {
		return nil, errors.New("transaction has no metadata")
	}

	report := &inspection{
		Signature:    tx.Signature,
		BlockTime:    tx.BlockTime,
		Failed:       tx.Meta.Failed(),
		Fee:          solana.LamportsToSOL(tx.Meta.Fee),
		TokenChanges: classify.BalanceDiffs(tx, classify.BalanceDiffDust),
	}
	if native, ok := classify.NativeChange(tx.Meta); ok {
		report.NativeChange = &native
	}

	if wallet == "" {
		wallet = "fee-payer"
	}
	report.Trade, report.Verdict = c.Classify(tx, wallet, mint)
	return report, nil
}

func writeInspection(w io.Writer, r *inspection) error {
	fmt.Fprintf(w, "signature: %s\nblock time: %d\nfailed: %t\nfee: %s SOL\n", r.Signature, r.BlockTime, r.Failed, r.Fee)
	if r.NativeChange != nil {
		fmt.Fprintf(w, "native change (fee payer, fee-adjusted): %s SOL\n", r.NativeChange)
	} else {
		fmt.Fprintln(w, "native change: unavailable")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tMINT\tOWNER\tCHANGE")
	for _, ch := range r.TokenChanges {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ch.AccountIndex, ch.Mint, ch.Owner, ch.Change)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nverdict: %s\n", r.Verdict)
	if r.Trade != nil {
		fmt.Fprintf(w, "trade: %s %s %s for %s SOL\n", r.Trade.Direction, r.Trade.TokenAmountChange, r.Trade.TokenMint, r.Trade.NativeAmount)
	}
	return nil
}
