package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goldpeg/internal/config"
	"goldpeg/internal/conversion"
	"goldpeg/internal/report"
	"goldpeg/internal/storage"
)

func runEvents(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	records, err := storage.ReadEvents(cfg.EventsOut)
	if err != nil {
		return err
	}
	totals, err := report.Summarize(records)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", cfg.EventsOut, err)
	}

	for _, name := range totals.Names() {
		logger.Info("event count", zap.String("event", name), zap.Uint64("count", totals.Counts[name]))
	}

	fields := []zap.Field{
		zap.String("events_out", cfg.EventsOut),
		zap.Uint64("events", totals.Events),
		zap.Uint64("first_ts", totals.FirstTS),
		zap.Uint64("last_ts", totals.LastTS),
		zap.String("deposited", conversion.FormatUnits(totals.Deposited, conversion.TokenDecimals)),
		zap.String("issued", conversion.FormatUnits(totals.Issued, conversion.TokenDecimals)),
		zap.String("burned", conversion.FormatUnits(totals.Burned, conversion.TokenDecimals)),
		zap.String("returned", conversion.FormatUnits(totals.Returned, conversion.TokenDecimals)),
		zap.String("lottery_paid", conversion.FormatUnits(totals.LotteryPaid, conversion.TokenDecimals)),
		zap.String("fees_withdrawn", conversion.FormatUnits(totals.FeesWithdrawn, conversion.TokenDecimals)),
		zap.Uint64("draws_settled", totals.DrawsSettled),
		zap.Uint64("draws_won", totals.DrawsWon),
	}
	if outstanding, err := totals.Outstanding(); err != nil {
		logger.Warn("outstanding supply unavailable", zap.Error(err))
	} else {
		fields = append(fields, zap.String("outstanding", conversion.FormatUnits(outstanding, conversion.TokenDecimals)))
	}
	logger.Info("events summary", fields...)
	return nil
}
