package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goldpeg/internal/chain"
	"goldpeg/internal/model"
)

// TargetDecimals is the precision every quote is normalized to before leaving the client.
const TargetDecimals = 8

// Config controls feed reads.
type Config struct {
	// MaxAge rejects quotes older than this. Zero disables the check.
	MaxAge       time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client reads the gold/USD and eth/USD feeds. Quotes are never cached between calls.
type Client struct {
	gold   Feed
	eth    Feed
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewClient(gold, eth Feed, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		gold:   gold,
		eth:    eth,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// LatestGoldPrice returns a validated gold/USD quote.
func (c *Client) LatestGoldPrice(ctx context.Context) (model.Quote, error) {
	return c.read(ctx, c.gold, "gold")
}

// LatestEthPrice returns a validated eth/USD quote.
func (c *Client) LatestEthPrice(ctx context.Context) (model.Quote, error) {
	return c.read(ctx, c.eth, "eth")
}

// LatestPrices reads both feeds concurrently.
func (c *Client) LatestPrices(ctx context.Context) (eth model.Quote, gold model.Quote, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eth, err = c.LatestEthPrice(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		gold, err = c.LatestGoldPrice(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Quote{}, model.Quote{}, err
	}
	return eth, gold, nil
}

func (c *Client) read(ctx context.Context, feed Feed, name string) (model.Quote, error) {
	if feed == nil {
		return model.Quote{}, fmt.Errorf("%s feed not configured: %w", name, model.ErrInvalidOracleData)
	}

	var quote model.Quote
	backoff := chain.Backoff{
		MaxRetries: c.cfg.MaxRetries,
		BaseDelay:  c.cfg.RetryBackoff,
		Permanent:  isInvalidOracleData,
		OnRetry: func(attempt int, err error) {
			c.logger.Warn("price feed read failed", zap.String("feed", name), zap.Int("attempt", attempt), zap.Error(err))
		},
	}
	err := backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		quote, err = feed.LatestPrice(ctx)
		return err
	})
	if err != nil {
		if isInvalidOracleData(err) {
			return model.Quote{}, fmt.Errorf("read %s feed: %w", name, err)
		}
		return model.Quote{}, fmt.Errorf("read %s feed: %w: %w", name, model.ErrInvalidOracleData, err)
	}
	if quote.Value == nil {
		return model.Quote{}, fmt.Errorf("%s feed returned no answer: %w", name, model.ErrInvalidOracleData)
	}

	if !quote.Positive() {
		return model.Quote{}, fmt.Errorf("%s price %v: %w", name, quote.Value, model.ErrInvalidOracleData)
	}
	if c.cfg.MaxAge > 0 && c.now().Sub(quote.UpdatedAt) > c.cfg.MaxAge {
		return model.Quote{}, fmt.Errorf("%s price updated at %s: %w", name, quote.UpdatedAt.Format(time.RFC3339), model.ErrStalePrice)
	}

	quote.Value = rescale(quote.Value, quote.Decimals, TargetDecimals)
	quote.Decimals = TargetDecimals
	if !quote.Positive() {
		return model.Quote{}, fmt.Errorf("%s price below precision: %w", name, model.ErrInvalidOracleData)
	}
	return quote, nil
}

func isInvalidOracleData(err error) bool {
	return errors.Is(err, model.ErrInvalidOracleData)
}

func rescale(value *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(value)
	switch {
	case from < to:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		out.Mul(out, factor)
	case from > to:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		out.Quo(out, factor)
	}
	return out
}
