package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goldpeg/internal/chain"
	"goldpeg/internal/config"
	"goldpeg/internal/indexer"
	"goldpeg/internal/storage"
	"goldpeg/internal/storage/postgres"
)

const watchStateName = "watch"

func runWatch(cmd *cobra.Command, _ []string) error {
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

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	contracts, err := cfg.ContractAddresses()
	if err != nil {
		return err
	}
	if len(contracts) == 0 {
		return fmt.Errorf("contract list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	decoder, err := indexer.NewDecoder()
	if err != nil {
		return err
	}

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
		sinks = append(sinks, store.EventSink(ctx, watchStateName))
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Finality:          cfg.Finality,
		Contracts:         contracts,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, decoder, sinks, logger)
	if store != nil && cfg.CheckpointEnabled {
		runner.SetCheckpointer(&pgCheckpoint{ctx: ctx, store: store, name: watchStateName})
	}

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("finality", cfg.Finality),
		zap.Int("contracts", len(contracts)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("events_out", cfg.EventsOut),
		zap.Bool("postgres", store != nil),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	return runner.Run(ctx)
}

// pgCheckpoint keeps the watch checkpoint in Postgres next to the events.
type pgCheckpoint struct {
	ctx   context.Context
	store *postgres.Store
	name  string
}

func (p *pgCheckpoint) Load() (indexer.Checkpoint, bool, error) {
	return p.store.LoadCheckpoint(p.ctx, p.name)
}

func (p *pgCheckpoint) Save(cp indexer.Checkpoint) error {
	return p.store.SaveCheckpoint(p.ctx, p.name, cp)
}
