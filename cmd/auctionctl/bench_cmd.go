package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func benchCmd() *cobra.Command {
	var (
		opts      benchOptions
		increment string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Race concurrent bidders on one auction through the REST API and print the outcome histogram.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inc, err := decimal.NewFromString(increment)
			if err != nil {
				return fmt.Errorf("--increment: %w", err)
			}
			opts.Increment = inc
			if opts.Bidders < 1 || opts.Rounds < 1 {
				return fmt.Errorf("--bidders and --rounds must be positive")
			}

			client := &http.Client{Timeout: timeout}
			report, err := runBench(cmd.Context(), client, opts)
			if err != nil {
				return err
			}
			report.Print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "url", "http://localhost:8080", "auction service base url")
	cmd.Flags().Int64Var(&opts.AuctionID, "auction", 0, "auction to bid on; a new one is created when 0")
	cmd.Flags().IntVar(&opts.Bidders, "bidders", 20, "number of concurrent bidders")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 10, "bids per bidder")
	cmd.Flags().StringVar(&increment, "increment", "10.00", "amount added to the observed price on each bid")
	cmd.Flags().StringVar(&opts.Password, "password", "bench-pass", "password of the bench-N users")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per request timeout")
	return cmd
}
