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

	"goldpeg/internal/config"
	"goldpeg/internal/conversion"
	"goldpeg/internal/replay"
	"goldpeg/internal/storage"
	"goldpeg/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
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

	input, _ := cmd.Flags().GetString("in")
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	requestCfg, err := cfg.RandomnessConfig()
	if err != nil {
		return err
	}
	goldRaw, _ := cmd.Flags().GetString("gold-price")
	ethRaw, _ := cmd.Flags().GetString("eth-price")
	goldPrice, err := conversion.ParseUnits(goldRaw, conversion.PriceDecimals)
	if err != nil {
		return fmt.Errorf("gold price: %w", err)
	}
	ethPrice, err := conversion.ParseUnits(ethRaw, conversion.PriceDecimals)
	if err != nil {
		return fmt.Errorf("eth price: %w", err)
	}
	strict, _ := cmd.Flags().GetBool("strict")
	runFlag, _ := cmd.Flags().GetString("run-name")
	runName := replay.RunName(runFlag, time.Now())

	file, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	ops, err := replay.ParseOps(file)
	file.Close()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.Fanout{storage.NewJsonlStorage(cfg.EventsOut)}
	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		if err := store.ResetRun(ctx, runName); err != nil {
			return err
		}
		sinks = append(sinks, store.EventSink(ctx, runName))
	}

	engine, err := replay.NewEngine(replay.Config{
		Owner:         owner,
		FeePercent:    cfg.FeePercent,
		Randomness:    requestCfg,
		PendingPolicy: policy,
		Seed:          []byte(cfg.Seed),
		GoldPrice:     goldPrice.ToBig(),
		EthPrice:      ethPrice.ToBig(),
	}, sinks, logger)
	if err != nil {
		return err
	}

	logger.Info("replay start",
		zap.String("in", input),
		zap.String("run", runName),
		zap.Int("ops", len(ops)),
		zap.String("owner", owner.Hex()),
		zap.Uint64("fee_percent", cfg.FeePercent),
		zap.String("pending_policy", string(policy)),
		zap.String("events_out", cfg.EventsOut),
		zap.Bool("postgres", store != nil),
	)

	summary, runErr := engine.Run(ctx, ops, strict)

	state, err := engine.Service.State(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.SaveEngineState(ctx, runName, state); err != nil {
			return fmt.Errorf("save engine state: %w", err)
		}
	}

	logger.Info("replay complete",
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
		zap.String("pool", conversion.FormatUnits(state.PoolBalance, conversion.TokenDecimals)),
		zap.String("eligible", state.Eligible.Hex()),
		zap.String("supply", conversion.FormatUnits(state.TotalSupply, conversion.TokenDecimals)),
		zap.String("treasury", conversion.FormatUnits(state.TreasuryBalance, conversion.TokenDecimals)),
		zap.Int("requests", len(state.Requests)),
		zap.Int("pending", state.Pending),
	)
	return runErr
}
