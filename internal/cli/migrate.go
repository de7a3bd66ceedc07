package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"solana-trade-ledger/internal/storage/migrations"
	pgstore "solana-trade-ledger/internal/storage/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded Postgres and ClickHouse schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := root.getApp()
			defer app.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			pgDSN := app.Config.Storage.PostgresDSN
			chDSN := app.Config.Storage.ClickHouseDSN
			if pgDSN == "" && chDSN == "" {
				return errors.New("nothing to migrate: set storage.postgres_dsn and/or storage.clickhouse_dsn")
			}

			if pgDSN != "" {
				pool, err := pgstore.NewPool(ctx, pgDSN)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer pool.Close()

				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				for _, file := range applied {
					fmt.Fprintf(out, "postgres: applied %s\n", file)
				}
			}

			if chDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, chDSN)
				if err != nil {
					return err
				}
				_ = conn.Close()
				fmt.Fprintln(out, "clickhouse: schema up to date")
			}

			app.Logger.Info().Bool("postgres", pgDSN != "").Bool("clickhouse", chDSN != "").Msg("migrations complete")
			return nil
		},
	}
}
