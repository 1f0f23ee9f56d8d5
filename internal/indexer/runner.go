package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"goldpeg/internal/chain"
	"goldpeg/internal/model"
	"goldpeg/internal/storage"
)

// LogSource is the subset of chain.Client the runner reads from.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, contracts []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Checkpointer persists the last fully processed block of a watch.
type Checkpointer interface {
	Load() (Checkpoint, bool, error)
	Save(cp Checkpoint) error
}

// RunConfig holds runtime settings for the indexer. With ToBlock zero the watch
// stops Finality blocks behind the chain head.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Finality          uint64
	Contracts         []common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner streams engine logs from the chain, decodes them and writes events to storage.
type Runner struct {
	cfg        RunConfig
	chain      LogSource
	decoder    *Decoder
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint Checkpointer
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, decoder *Decoder, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      source,
		decoder:    decoder,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// SetCheckpointer replaces the file checkpoint store.
func (r *Runner) SetCheckpointer(c Checkpointer) {
	r.checkpoint = c
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Contracts) == 0 {
		return fmt.Errorf("at least one contract is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()
	contracts := ContractSet(r.cfg.Contracts)

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		head, ok := SafeHead(latest, r.cfg.Finality)
		if !ok {
			r.logger.Info("chain shorter than finality", zap.Uint64("latest", latest), zap.Uint64("finality", r.cfg.Finality))
			return nil
		}
		to = head
	}

	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			if err := cp.Resumes(chainIDValue, contracts); err != nil {
				return err
			}
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := PlanRanges(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	topics := r.decoder.Topics()
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.fetchLogs(ctx, blockRange, topics)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		events := make([]model.Event, 0, len(logs))
		skipped := 0
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			event, err := r.decoder.Decode(chainIDValue, log, ts)
			if err != nil {
				skipped++
				r.logger.Warn("decode log failed",
					zap.String("tx_hash", log.TxHash.Hex()),
					zap.Uint("log_index", log.Index),
					zap.Error(err),
				)
				continue
			}
			events = append(events, event)
		}

		if err := r.storage.PutEventBatch(events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(Checkpoint{
				ChainID:            chainIDValue,
				Contracts:          contracts,
				LastProcessedBlock: blockRange.To,
			}); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("events", len(events)),
			zap.Int("skipped", skipped),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

func (r *Runner) backoff(op string, fields ...zap.Field) chain.Backoff {
	return chain.Backoff{
		MaxRetries: r.cfg.MaxRetries,
		BaseDelay:  r.cfg.RetryBackoff,
		OnRetry: func(attempt int, err error) {
			r.logger.Warn(op+" failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
		},
	}
}

// fetchLogs reads a range, halving it until the provider accepts the span.
func (r *Runner) fetchLogs(ctx context.Context, blockRange BlockRange, topics []common.Hash) ([]types.Log, error) {
	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, topics)
	if err == nil || !errors.Is(err, chain.ErrTooManyLogs) {
		return logs, err
	}
	lo, hi, ok := blockRange.Halve()
	if !ok {
		return nil, err
	}
	r.logger.Info("narrowing log query", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", lo.Blocks()))
	first, err := r.fetchLogs(ctx, lo, topics)
	if err != nil {
		return nil, err
	}
	second, err := r.fetchLogs(ctx, hi, topics)
	if err != nil {
		return nil, err
	}
	return append(first, second...), nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, topics []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	b := r.backoff("filter logs", zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
	b.Permanent = func(err error) bool { return errors.Is(err, chain.ErrTooManyLogs) }
	err := b.Do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Contracts, topics)
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.backoff("block timestamp fetch", zap.Uint64("block_number", blockNumber)).Do(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
