// Package cli implements the ledger command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/config"
	"solana-trade-ledger/internal/logging"
)

// rootOptions holds the persistent flags and the lazily built App.
type rootOptions struct {
	cfgFile   string
	logLevel  string
	useMemory bool

	app *App
}

// NewRootCommand builds the ledger command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Discover and record the token trades of Solana wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app != nil || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}

			opts.app = NewApp(cfg, logging.NewLogger(cfg.Logging), opts.useMemory)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "Path to configuration file (default ./ledger.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level defined in config")
	root.PersistentFlags().BoolVar(&opts.useMemory, "use-memory", false, "Use in-memory storage and cache instead of Postgres/Redis")

	root.AddCommand(
		newScanCmd(opts),
		newWatchCmd(opts),
		newInspectCmd(opts),
		newClearCacheCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) getApp() *App {
	if o.app == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return o.app
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
