package main

import (
	"os/signal"
	"syscall"

	"auction-marketplace/internal/domain"
	"auction-marketplace/internal/infrastructure/redis"
	"auction-marketplace/pkg/logger"
	"auction-marketplace/pkg/utils"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var auctionID int64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print bid events from redis as they are published.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Redis.Enabled = true
			log := logger.NewWithLevel("warn")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rdb, err := utils.InitializeRedis(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rdb.Close()

			sub := redis.NewRedisEventSubscriber(rdb, log)
			err = sub.SubscribeToBidEvents(ctx, func(e *domain.BidEvent) error {
				if auctionID != 0 && e.AuctionID != auctionID {
					return nil
				}
				cmd.Printf("%s %-14s auction=%d user=%d amount=%s bid=%s\n",
					e.Timestamp.UTC().Format("15:04:05.000000"), e.Type, e.AuctionID, e.UserID,
					domain.FormatMoney(e.Amount), e.BidID)
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&auctionID, "auction", 0, "only show events of this auction")
	return cmd
}
