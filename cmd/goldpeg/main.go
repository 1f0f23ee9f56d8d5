package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "goldpeg",
		Short:        "Gold-pegged token issuance engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Read the gold/USD and eth/USD feeds",
		RunE:  runPrice,
	}
	addFeedFlags(priceCmd)
	root.AddCommand(priceCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a mint or burn at current or given prices",
		RunE:  runQuote,
	}
	addFeedFlags(quoteCmd)
	quoteCmd.Flags().Uint64("fee-percent", 5, "fee percent applied on mint and burn")
	quoteCmd.Flags().String("deposit", "", "base-currency amount to mint with (decimal)")
	quoteCmd.Flags().String("tokens", "", "token amount to burn (decimal)")
	quoteCmd.Flags().String("gold-price", "", "gold/USD price override (decimal)")
	quoteCmd.Flags().String("eth-price", "", "eth/USD price override (decimal)")
	root.AddCommand(quoteCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a JSONL script of operations to an in-memory engine",
		RunE:  runReplay,
	}
	replayCmd.Flags().String("in", "", "input ops JSONL")
	replayCmd.Flags().String("events-out", "./data/events.jsonl", "output events JSONL")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and final state")
	replayCmd.Flags().String("run-name", "", "name for this run's Postgres rows, replaced if it exists (default replay-<unix nanos>)")
	replayCmd.Flags().String("owner", "", "privileged owner address")
	replayCmd.Flags().Uint64("fee-percent", 5, "fee percent applied on mint and burn")
	replayCmd.Flags().String("pending-policy", "allow", "draw policy while a request is pending (allow, reject)")
	replayCmd.Flags().Uint32("num-words", 1, "random words per request")
	replayCmd.Flags().String("seed", "goldpeg", "seed for locally derived randomness")
	replayCmd.Flags().String("gold-price", "2000", "initial gold/USD price (decimal)")
	replayCmd.Flags().String("eth-price", "2000", "initial eth/USD price (decimal)")
	replayCmd.Flags().Bool("strict", false, "stop at the first failed op")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(replayCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Index Mint, Burn and LotteryWon logs of deployed engine contracts",
		RunE:  runWatch,
	}
	watchCmd.Flags().String("rpc", "", "RPC URL")
	watchCmd.Flags().StringSlice("contract", nil, "engine contract addresses (comma-separated)")
	watchCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	watchCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	watchCmd.Flags().Uint64("finality", 12, "blocks to stay behind the head when --to is 0")
	watchCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	watchCmd.Flags().String("events-out", "./data/events.jsonl", "output events JSONL")
	watchCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and checkpoint")
	watchCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	watchCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(watchCmd)

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Summarize an events JSONL written by replay or watch",
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("events-out", "./data/events.jsonl", "events JSONL to read")
	eventsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(eventsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addFeedFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("gold-feed", "", "gold/USD aggregator address")
	cmd.Flags().String("eth-feed", "", "eth/USD aggregator address")
	cmd.Flags().Duration("max-price-age", 0, "reject quotes older than this, 0 disables")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
