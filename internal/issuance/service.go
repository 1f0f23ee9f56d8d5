package issuance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"goldpeg/internal/conversion"
	"goldpeg/internal/ledger"
	"goldpeg/internal/model"
	"goldpeg/internal/pool"
	"goldpeg/internal/randomness"
	"goldpeg/internal/treasury"
)

// PriceSource supplies fresh, validated quotes on every call.
type PriceSource interface {
	LatestGoldPrice(ctx context.Context) (model.Quote, error)
	LatestEthPrice(ctx context.Context) (model.Quote, error)
	LatestPrices(ctx context.Context) (eth model.Quote, gold model.Quote, err error)
}

// EventSink receives events after the emitting call has committed.
type EventSink interface {
	PutEventBatch(events []model.Event) error
}

// Config holds the construction-time settings of a Service.
type Config struct {
	Owner         common.Address
	FeePercent    uint64
	Randomness    randomness.RequestConfig
	PendingPolicy randomness.PendingPolicy
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Prices   PriceSource
	Ledger   ledger.Ledger
	Treasury treasury.Treasury
	Provider randomness.Provider
	Sink     EventSink
}

// Service owns all engine state: the fee pool, the randomness requests and the owner.
// Every exported operation holds mu for its whole duration, so calls never interleave.
type Service struct {
	mu       sync.Mutex
	owner    common.Address
	engine   *conversion.Engine
	prices   PriceSource
	ledger   ledger.Ledger
	treasury treasury.Treasury
	pool     *pool.FeePool
	draws    *randomness.Coordinator
	sink     EventSink
	logger   *zap.Logger
	now      func() time.Time
	seq      uint64
}

// New wires a Service.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	if deps.Prices == nil {
		return nil, fmt.Errorf("price source is nil")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if deps.Treasury == nil {
		return nil, fmt.Errorf("treasury is nil")
	}

	engine, err := conversion.New(conversion.Params{FeePercent: cfg.FeePercent})
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.Randomness == (randomness.RequestConfig{}):
		cfg.Randomness = randomness.DefaultRequestConfig()
	case cfg.Randomness.NumWords == 0:
		return nil, fmt.Errorf("num words must be greater than zero")
	}

	return &Service{
		owner:    cfg.Owner,
		engine:   engine,
		prices:   deps.Prices,
		ledger:   deps.Ledger,
		treasury: deps.Treasury,
		pool:     pool.New(),
		draws:    randomness.NewCoordinator(deps.Provider, cfg.Randomness, cfg.PendingPolicy, logger),
		sink:     deps.Sink,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Mint converts a deposit into tokens for initiator.
func (s *Service) Mint(ctx context.Context, initiator common.Address, deposit *uint256.Int) (*uint256.Int, error) {
	if deposit == nil || deposit.IsZero() {
		return nil, model.ErrZeroInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eth, gold, err := s.prices.LatestPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	res, err := s.engine.AmountToTokens(deposit, eth.Value, gold.Value)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	contribution, err := s.engine.MintPoolContribution(deposit)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	j := &journal{}
	if err := s.ledger.Mint(ctx, initiator, res.Net); err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}
	j.record(func() { s.undoLedger(ctx, "burn", initiator, res.Net, s.ledger.Burn) })

	snap := s.pool.Snapshot()
	if err := s.pool.Contribute(contribution, initiator); err != nil {
		j.rollback()
		return nil, fmt.Errorf("mint: %w", err)
	}
	j.record(func() { s.pool.Restore(snap) })

	if err := s.treasury.Deposit(ctx, initiator, deposit); err != nil {
		j.rollback()
		return nil, fmt.Errorf("mint deposit: %w", err)
	}

	s.logger.Info("mint",
		zap.String("initiator", initiator.Hex()),
		zap.String("deposit", deposit.Dec()),
		zap.String("tokens", res.Net.Dec()),
		zap.String("fee_tokens", res.Fee.Dec()),
		zap.String("pool_contribution", contribution.Dec()),
	)
	s.publish(s.event(model.EventMint, model.MintEventData{
		Initiator:     initiator.Hex(),
		DepositAmount: deposit.Dec(),
		TokensIssued:  res.Net.Dec(),
	}))
	return res.Net.Clone(), nil
}

// Burn redeems tokens for base currency. The token burn, pool update and payout commit together.
func (s *Service) Burn(ctx context.Context, initiator common.Address, tokens *uint256.Int) (*uint256.Int, error) {
	if tokens == nil || tokens.IsZero() {
		return nil, model.ErrZeroInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.ledger.BalanceOf(ctx, initiator)
	if err != nil {
		return nil, fmt.Errorf("burn balance: %w", err)
	}
	if balance.Lt(tokens) {
		return nil, fmt.Errorf("burn %s with balance %s: %w", tokens.Dec(), balance.Dec(), model.ErrInsufficientBalance)
	}

	eth, gold, err := s.prices.LatestPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	res, err := s.engine.TokensToAmount(tokens, eth.Value, gold.Value)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	contribution := s.engine.BurnPoolContribution(res.Fee)

	j := &journal{}
	if err := s.ledger.Burn(ctx, initiator, tokens); err != nil {
		return nil, fmt.Errorf("burn tokens: %w", err)
	}
	j.record(func() { s.undoLedger(ctx, "mint", initiator, tokens, s.ledger.Mint) })

	snap := s.pool.Snapshot()
	if err := s.pool.Contribute(contribution, initiator); err != nil {
		j.rollback()
		return nil, fmt.Errorf("burn: %w", err)
	}
	j.record(func() { s.pool.Restore(snap) })

	if err := s.send(ctx, initiator, res.Net); err != nil {
		j.rollback()
		s.logger.Warn("burn payout failed, rolled back",
			zap.String("initiator", initiator.Hex()),
			zap.String("amount", res.Net.Dec()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("burn payout: %w", err)
	}

	s.logger.Info("burn",
		zap.String("initiator", initiator.Hex()),
		zap.String("tokens", tokens.Dec()),
		zap.String("returned", res.Net.Dec()),
		zap.String("fee", res.Fee.Dec()),
		zap.String("pool_contribution", contribution.Dec()),
	)
	s.publish(s.event(model.EventBurn, model.BurnEventData{
		Initiator:    initiator.Hex(),
		TokenAmount:  tokens.Dec(),
		BaseReturned: res.Net.Dec(),
	}))
	return res.Net.Clone(), nil
}

// LatestGoldPrice returns the current gold/USD quote.
func (s *Service) LatestGoldPrice(ctx context.Context) (model.Quote, error) {
	return s.prices.LatestGoldPrice(ctx)
}

// LatestEthPrice returns the current eth/USD quote.
func (s *Service) LatestEthPrice(ctx context.Context) (model.Quote, error) {
	return s.prices.LatestEthPrice(ctx)
}

func (s *Service) send(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := s.treasury.Send(ctx, to, amount); err != nil {
		if isTransferFailed(err) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrTransferFailed, err)
	}
	return nil
}

// undoLedger reverses a ledger mutation. The operation it reverses just succeeded under the
// same lock, so a failure here means the ledger is broken and is only logged.
func (s *Service) undoLedger(ctx context.Context, op string, who common.Address, amount *uint256.Int, fn func(context.Context, common.Address, *uint256.Int) error) {
	if err := fn(context.WithoutCancel(ctx), who, amount); err != nil {
		s.logger.Error("ledger rollback failed",
			zap.String("op", op),
			zap.String("account", who.Hex()),
			zap.String("amount", amount.Dec()),
			zap.Error(err),
		)
	}
}

func (s *Service) event(name string, payload interface{}) model.Event {
	s.seq++
	return model.Event{
		Sequence:  s.seq,
		EventName: name,
		Timestamp: uint64(s.now().Unix()),
		Decoded:   payload,
	}
}

func (s *Service) publish(events ...model.Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	if err := s.sink.PutEventBatch(events); err != nil {
		s.logger.Warn("publish events failed", zap.Int("events", len(events)), zap.Error(err))
	}
}
