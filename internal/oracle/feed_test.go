package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"goldpeg/internal/model"
)

type fakeCaller struct {
	answer    *big.Int
	decimals  uint8
	updatedAt int64
	calls     map[string]int
	failNext  int
	garbage   bool
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	feedABI, err := AggregatorV3ABI()
	if err != nil {
		return nil, err
	}
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("rpc unavailable")
	}

	method, err := feedABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++

	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	case "latestRoundData":
		if f.garbage {
			return []byte{0x01, 0x02}, nil
		}
		return method.Outputs.Pack(
			big.NewInt(42),
			f.answer,
			big.NewInt(f.updatedAt),
			big.NewInt(f.updatedAt),
			big.NewInt(42),
		)
	}
	return nil, errors.New("unexpected method " + method.Name)
}

func TestAggregatorFeedLatestPrice(t *testing.T) {
	caller := &fakeCaller{answer: big.NewInt(180000000000), decimals: 8, updatedAt: 1700000000}
	feed := NewAggregatorFeed(caller, common.HexToAddress("0x214eD9Da11D2fbe465a6fc601a91E62EbEc1a0D6"), "XAU/USD")

	quote, err := feed.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if quote.Value.Cmp(big.NewInt(180000000000)) != 0 {
		t.Fatalf("answer mismatch: %s", quote.Value)
	}
	if quote.Decimals != 8 || quote.RoundID.Int64() != 42 {
		t.Fatalf("metadata mismatch: %+v", quote)
	}
	if quote.UpdatedAt.Unix() != 1700000000 {
		t.Fatalf("updated at mismatch: %s", quote.UpdatedAt)
	}

	if _, err := feed.LatestPrice(context.Background()); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if caller.calls["decimals"] != 1 || caller.calls["latestRoundData"] != 2 {
		t.Fatalf("call counts mismatch: %v", caller.calls)
	}
}

func TestAggregatorFeedNegativeAnswerPassesThrough(t *testing.T) {
	caller := &fakeCaller{answer: big.NewInt(-5), decimals: 8, updatedAt: 1700000000}
	feed := NewAggregatorFeed(caller, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), "")

	quote, err := feed.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if quote.Positive() {
		t.Fatalf("negative answer reported positive")
	}

	client := NewClient(nil, feed, Config{}, zap.NewNop())
	if _, err := client.LatestEthPrice(context.Background()); !errors.Is(err, model.ErrInvalidOracleData) {
		t.Fatalf("expected invalid oracle data, got %v", err)
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	caller := &fakeCaller{answer: big.NewInt(200000000000), decimals: 8, updatedAt: time.Now().Unix(), failNext: 2}
	feed := NewAggregatorFeed(caller, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), "ETH/USD")
	client := NewClient(nil, feed, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, nil)

	quote, err := client.LatestEthPrice(context.Background())
	if err != nil {
		t.Fatalf("latest eth: %v", err)
	}
	if quote.Value.Cmp(big.NewInt(200000000000)) != 0 {
		t.Fatalf("answer mismatch: %s", quote.Value)
	}
}

func TestClientStaleness(t *testing.T) {
	gold := NewStaticFeed("XAU/USD", big.NewInt(180000000000), 8)
	gold.SetUpdatedAt(time.Now().Add(-2 * time.Hour))

	client := NewClient(gold, nil, Config{MaxAge: time.Hour}, nil)
	if _, err := client.LatestGoldPrice(context.Background()); !errors.Is(err, model.ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}

	relaxed := NewClient(gold, nil, Config{}, nil)
	if _, err := relaxed.LatestGoldPrice(context.Background()); err != nil {
		t.Fatalf("staleness disabled should accept: %v", err)
	}
}

func TestClientRescalesDecimals(t *testing.T) {
	ethAnswer := new(big.Int).Mul(big.NewInt(2000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	eth := NewStaticFeed("ETH/USD", ethAnswer, 18)
	gold := NewStaticFeed("XAU/USD", big.NewInt(180000), 2)
	client := NewClient(gold, eth, Config{}, nil)

	ethQuote, goldQuote, err := client.LatestPrices(context.Background())
	if err != nil {
		t.Fatalf("latest prices: %v", err)
	}
	if ethQuote.Value.Cmp(big.NewInt(200000000000)) != 0 || ethQuote.Decimals != 8 {
		t.Fatalf("eth rescale mismatch: %s/%d", ethQuote.Value, ethQuote.Decimals)
	}
	if goldQuote.Value.Cmp(big.NewInt(180000000000)) != 0 {
		t.Fatalf("gold rescale mismatch: %s", goldQuote.Value)
	}
}

func TestClientMissingFeedAndNilValue(t *testing.T) {
	client := NewClient(nil, NewStaticFeed("ETH/USD", nil, 8), Config{}, nil)
	if _, err := client.LatestGoldPrice(context.Background()); !errors.Is(err, model.ErrInvalidOracleData) {
		t.Fatalf("expected invalid oracle data for missing feed, got %v", err)
	}
	if _, err := client.LatestEthPrice(context.Background()); !errors.Is(err, model.ErrInvalidOracleData) {
		t.Fatalf("expected invalid oracle data for nil value, got %v", err)
	}
}

func TestClientReadFailureIsInvalidOracleData(t *testing.T) {
	rpcDown := errors.New("rpc down")
	eth := NewStaticFeed("ETH/USD", big.NewInt(200000000000), 8)
	eth.Fail(rpcDown)
	client := NewClient(nil, eth, Config{MaxRetries: 1, RetryBackoff: time.Millisecond}, nil)

	_, err := client.LatestEthPrice(context.Background())
	if !errors.Is(err, model.ErrInvalidOracleData) {
		t.Fatalf("expected invalid oracle data, got %v", err)
	}
	if !errors.Is(err, rpcDown) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestClientDoesNotRetryMalformedAnswer(t *testing.T) {
	caller := &fakeCaller{decimals: 8, garbage: true}
	feed := NewAggregatorFeed(caller, common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"), "ETH/USD")
	client := NewClient(nil, feed, Config{MaxRetries: 5, RetryBackoff: time.Hour}, nil)

	if _, err := client.LatestEthPrice(context.Background()); !errors.Is(err, model.ErrInvalidOracleData) {
		t.Fatalf("expected invalid oracle data, got %v", err)
	}
	if caller.calls["latestRoundData"] != 1 {
		t.Fatalf("malformed answer retried: %d calls", caller.calls["latestRoundData"])
	}
}
