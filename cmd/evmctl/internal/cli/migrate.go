package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.store.Migrate(contextFor(cmd)); err != nil {
				return err
			}
			opts.printer(cmd).Success("Schema is up to date")
			return nil
		},
	}
}
