package main

import (
	"auction-marketplace/internal/config"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "auctionctl",
		Short:         "Operator tools for the auction marketplace",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("config", "", "path to config file (defaults to ./config.yaml lookup)")
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(benchCmd())
	cmd.AddCommand(watchCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
