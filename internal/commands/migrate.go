package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashmitsharp/homeledger-api/internal/database"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables and seed the default categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := database.Migrate(cmd.Context(), s.pool); err != nil {
				return err
			}
			s.log.Info().Msg("schema up to date")
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}
