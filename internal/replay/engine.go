package replay

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"goldpeg/internal/conversion"
	"goldpeg/internal/issuance"
	"goldpeg/internal/ledger"
	"goldpeg/internal/oracle"
	"goldpeg/internal/randomness"
	"goldpeg/internal/treasury"
)

// Config seeds an in-memory engine.
type Config struct {
	Owner         common.Address
	FeePercent    uint64
	Randomness    randomness.RequestConfig
	PendingPolicy randomness.PendingPolicy
	Seed          []byte
	GoldPrice     *big.Int
	EthPrice      *big.Int
}

// Engine drives an issuance.Service backed by in-memory collaborators and static feeds.
type Engine struct {
	Service  *issuance.Service
	Gold     *oracle.StaticFeed
	Eth      *oracle.StaticFeed
	Ledger   *ledger.Memory
	Treasury *treasury.Memory
	Provider *randomness.LocalProvider

	owner  common.Address
	logger *zap.Logger
}

// NewEngine builds an engine. sink may be nil; it must not be a nil pointer in an interface.
func NewEngine(cfg Config, sink issuance.EventSink, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		Gold:     oracle.NewStaticFeed("XAU/USD", cfg.GoldPrice, conversion.PriceDecimals),
		Eth:      oracle.NewStaticFeed("ETH/USD", cfg.EthPrice, conversion.PriceDecimals),
		Ledger:   ledger.NewMemory(),
		Treasury: treasury.NewMemory(),
		Provider: randomness.NewLocalProvider(cfg.Seed),
		owner:    cfg.Owner,
		logger:   logger,
	}

	svc, err := issuance.New(issuance.Config{
		Owner:         cfg.Owner,
		FeePercent:    cfg.FeePercent,
		Randomness:    cfg.Randomness,
		PendingPolicy: cfg.PendingPolicy,
	}, issuance.Deps{
		Prices:   oracle.NewClient(e.Gold, e.Eth, oracle.Config{}, logger),
		Ledger:   e.Ledger,
		Treasury: e.Treasury,
		Provider: e.Provider,
		Sink:     sink,
	}, logger)
	if err != nil {
		return nil, err
	}
	e.Provider.SetConsumer(svc)
	e.Service = svc
	return e, nil
}

// RunName returns name, or a fresh replay-<unix nanos> name when name is blank.
func RunName(name string, now time.Time) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fmt.Sprintf("replay-%d", now.UnixNano())
}

// Summary counts script outcomes.
type Summary struct {
	Applied int
	Failed  int
}

// Run applies ops in order. Failed ops are logged and skipped unless strict is set.
func (e *Engine) Run(ctx context.Context, ops []Op, strict bool) (Summary, error) {
	var summary Summary
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := e.Apply(ctx, op); err != nil {
			summary.Failed++
			e.logger.Warn("op failed", zap.Int("index", i), zap.String("op", op.Op), zap.Error(err))
			if strict {
				return summary, fmt.Errorf("op %d (%s): %w", i, op.Op, err)
			}
			continue
		}
		summary.Applied++
	}
	return summary, nil
}

// Apply executes a single op against the engine.
func (e *Engine) Apply(ctx context.Context, op Op) error {
	switch op.Op {
	case OpSetPrice:
		value, err := conversion.ParseUnits(op.Value, conversion.PriceDecimals)
		if err != nil {
			return err
		}
		switch strings.ToLower(op.Feed) {
		case "gold", "xau":
			e.Gold.Set(value.ToBig())
		case "eth":
			e.Eth.Set(value.ToBig())
		default:
			return fmt.Errorf("unknown feed %q", op.Feed)
		}
		return nil

	case OpMint:
		account, err := e.address(op.Account, false)
		if err != nil {
			return err
		}
		amount, err := conversion.ParseUnits(op.Amount, conversion.TokenDecimals)
		if err != nil {
			return err
		}
		_, err = e.Service.Mint(ctx, account, amount)
		return err

	case OpBurn:
		account, err := e.address(op.Account, false)
		if err != nil {
			return err
		}
		amount, err := e.burnAmount(ctx, account, op.Amount)
		if err != nil {
			return err
		}
		_, err = e.Service.Burn(ctx, account, amount)
		return err

	case OpDraw:
		caller, err := e.address(op.Caller, true)
		if err != nil {
			return err
		}
		_, err = e.Service.TriggerDraw(ctx, caller)
		return err

	case OpFulfill:
		return e.fulfill(ctx, op)

	case OpWithdraw:
		caller, err := e.address(op.Caller, true)
		if err != nil {
			return err
		}
		_, err = e.Service.WithdrawFees(ctx, caller)
		return err

	case OpReject:
		account, err := e.address(op.Account, false)
		if err != nil {
			return err
		}
		e.Treasury.Reject(account, op.Reject)
		return nil

	case OpSetPolicy:
		caller, err := e.address(op.Caller, true)
		if err != nil {
			return err
		}
		policy, err := randomness.ParsePendingPolicy(op.Policy)
		if err != nil {
			return err
		}
		return e.Service.SetPendingPolicy(caller, policy)

	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

// fulfill delivers randomness for one request, or for every queued request when none is named.
func (e *Engine) fulfill(ctx context.Context, op Op) error {
	var ids []*uint256.Int
	if op.Request == "" {
		ids = e.Provider.Pending()
	} else {
		id, err := uint256.FromDecimal(op.Request)
		if err != nil {
			return fmt.Errorf("invalid request id %q: %w", op.Request, err)
		}
		ids = []*uint256.Int{id}
	}

	for _, id := range ids {
		if op.Word == "" {
			if err := e.Provider.Fulfill(ctx, id); err != nil {
				return err
			}
			continue
		}
		word, err := uint256.FromDecimal(op.Word)
		if err != nil {
			return fmt.Errorf("invalid word %q: %w", op.Word, err)
		}
		if err := e.Provider.FulfillWith(ctx, id, []*uint256.Int{word}); err != nil {
			return err
		}
	}
	return nil
}

// burnAmount accepts "all" for the account's whole balance.
func (e *Engine) burnAmount(ctx context.Context, account common.Address, raw string) (*uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return e.Ledger.BalanceOf(ctx, account)
	}
	return conversion.ParseUnits(raw, conversion.TokenDecimals)
}

// address parses raw. An empty raw means the owner when ownerDefault is set.
func (e *Engine) address(raw string, ownerDefault bool) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if ownerDefault {
			return e.owner, nil
		}
		return common.Address{}, fmt.Errorf("account is required")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address: %s", raw)
	}
	return common.HexToAddress(raw), nil
}
