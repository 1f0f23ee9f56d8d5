package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"goldpeg/internal/config"
	"goldpeg/internal/conversion"
)

func runQuote(cmd *cobra.Command, _ []string) error {
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

	depositRaw, _ := cmd.Flags().GetString("deposit")
	tokensRaw, _ := cmd.Flags().GetString("tokens")
	if depositRaw == "" && tokensRaw == "" {
		return fmt.Errorf("one of --deposit or --tokens is required")
	}

	engine, err := conversion.New(conversion.Params{FeePercent: cfg.FeePercent})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goldRaw, _ := cmd.Flags().GetString("gold-price")
	ethRaw, _ := cmd.Flags().GetString("eth-price")
	var ethPrice, goldPrice *big.Int
	if goldRaw != "" && ethRaw != "" {
		if goldPrice, err = parsePrice(goldRaw); err != nil {
			return err
		}
		if ethPrice, err = parsePrice(ethRaw); err != nil {
			return err
		}
	} else {
		client, closeFn, err := dialOracle(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()
		eth, gold, err := client.LatestPrices(ctx)
		if err != nil {
			return err
		}
		ethPrice, goldPrice = eth.Value, gold.Value
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "prices gold/usd %s eth/usd %s fee %d%%\n",
		conversion.FormatSigned(goldPrice, conversion.PriceDecimals),
		conversion.FormatSigned(ethPrice, conversion.PriceDecimals),
		engine.FeePercent(),
	)

	if depositRaw != "" {
		deposit, err := conversion.ParseUnits(depositRaw, conversion.TokenDecimals)
		if err != nil {
			return err
		}
		res, err := engine.AmountToTokens(deposit, ethPrice, goldPrice)
		if err != nil {
			return err
		}
		contribution, err := engine.MintPoolContribution(deposit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "mint %s -> %s tokens (fee %s tokens, pool +%s)\n",
			conversion.FormatUnits(deposit, conversion.TokenDecimals),
			conversion.FormatUnits(res.Net, conversion.TokenDecimals),
			conversion.FormatUnits(res.Fee, conversion.TokenDecimals),
			conversion.FormatUnits(contribution, conversion.TokenDecimals),
		)
	}

	if tokensRaw != "" {
		tokens, err := conversion.ParseUnits(tokensRaw, conversion.TokenDecimals)
		if err != nil {
			return err
		}
		res, err := engine.TokensToAmount(tokens, ethPrice, goldPrice)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "burn %s tokens -> %s (fee %s, pool +%s)\n",
			conversion.FormatUnits(tokens, conversion.TokenDecimals),
			conversion.FormatUnits(res.Net, conversion.TokenDecimals),
			conversion.FormatUnits(res.Fee, conversion.TokenDecimals),
			conversion.FormatUnits(engine.BurnPoolContribution(res.Fee), conversion.TokenDecimals),
		)
	}
	return nil
}

func parsePrice(raw string) (*big.Int, error) {
	v, err := conversion.ParseUnits(raw, conversion.PriceDecimals)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}
