package main

import (
	"auction-marketplace/pkg/utils"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of the configured SQL storage driver.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := utils.OpenSQLStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.DB().Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("Schema applied (%s)\n", store.Dialect().Name)
			return nil
		},
	}
	return cmd
}
