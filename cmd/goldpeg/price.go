package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goldpeg/internal/chain"
	"goldpeg/internal/config"
	"goldpeg/internal/conversion"
	"goldpeg/internal/oracle"
)

func runPrice(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, closeFn, err := dialOracle(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	eth, gold, err := client.LatestPrices(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gold/usd %s (round %s, updated %s)\n", conversion.FormatSigned(gold.Value, int32(gold.Decimals)), gold.RoundID, gold.UpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "eth/usd  %s (round %s, updated %s)\n", conversion.FormatSigned(eth.Value, int32(eth.Decimals)), eth.RoundID, eth.UpdatedAt.UTC().Format(time.RFC3339))
	return nil
}

// dialOracle connects to the RPC and wires both aggregator feeds.
func dialOracle(ctx context.Context, cfg config.Config, logger *zap.Logger) (*oracle.Client, func(), error) {
	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("rpc url is required")
	}
	goldAddr, ethAddr, err := cfg.FeedAddresses()
	if err != nil {
		return nil, nil, err
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	client := oracle.NewClient(
		oracle.NewAggregatorFeed(chainClient, goldAddr, "XAU/USD"),
		oracle.NewAggregatorFeed(chainClient, ethAddr, "ETH/USD"),
		oracle.Config{
			MaxAge:       cfg.MaxPriceAge,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		},
		logger,
	)

	logger.Info("oracle ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("gold_feed", goldAddr.Hex()),
		zap.String("eth_feed", ethAddr.Hex()),
		zap.Duration("max_price_age", cfg.MaxPriceAge),
	)
	return client, chainClient.Close, nil
}
