package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"goldpeg/internal/model"
)

// Feed reports the latest price for one asset pair.
type Feed interface {
	LatestPrice(ctx context.Context) (model.Quote, error)
}

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AggregatorFeed reads an AggregatorV3 price feed contract.
type AggregatorFeed struct {
	caller  ContractCaller
	address common.Address
	id      string

	mu       sync.Mutex
	decimals uint8
	loaded   bool
}

func NewAggregatorFeed(caller ContractCaller, address common.Address, id string) *AggregatorFeed {
	if id == "" {
		id = address.Hex()
	}
	return &AggregatorFeed{caller: caller, address: address, id: id}
}

// LatestPrice calls latestRoundData. The answer is returned as-is; validation is the caller's job.
func (f *AggregatorFeed) LatestPrice(ctx context.Context) (model.Quote, error) {
	if f.caller == nil {
		return model.Quote{}, fmt.Errorf("feed %s: contract caller is nil", f.id)
	}
	feedABI, err := AggregatorV3ABI()
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse aggregator abi: %w", err)
	}

	decimals, err := f.loadDecimals(ctx, feedABI)
	if err != nil {
		return model.Quote{}, err
	}

	values, err := f.call(ctx, feedABI, "latestRoundData")
	if err != nil {
		return model.Quote{}, err
	}
	if len(values) != 5 {
		return model.Quote{}, fmt.Errorf("feed %s: latestRoundData return size %d: %w", f.id, len(values), model.ErrInvalidOracleData)
	}

	roundID, err := asBigInt(values[0])
	if err != nil {
		return model.Quote{}, fmt.Errorf("feed %s round id %v: %w", f.id, err, model.ErrInvalidOracleData)
	}
	answer, err := asBigInt(values[1])
	if err != nil {
		return model.Quote{}, fmt.Errorf("feed %s answer %v: %w", f.id, err, model.ErrInvalidOracleData)
	}
	updatedAt, err := asBigInt(values[3])
	if err != nil {
		return model.Quote{}, fmt.Errorf("feed %s updated at %v: %w", f.id, err, model.ErrInvalidOracleData)
	}

	return model.Quote{
		FeedID:    f.id,
		Value:     answer,
		Decimals:  decimals,
		RoundID:   roundID,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

// loadDecimals caches the feed precision after the first successful read.
func (f *AggregatorFeed) loadDecimals(ctx context.Context, feedABI abi.ABI) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.decimals, nil
	}

	values, err := f.call(ctx, feedABI, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("feed %s: decimals return size %d: %w", f.id, len(values), model.ErrInvalidOracleData)
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return 0, fmt.Errorf("feed %s decimals %v: %w", f.id, err, model.ErrInvalidOracleData)
	}
	f.decimals = decimals
	f.loaded = true
	return decimals, nil
}

func (f *AggregatorFeed) call(ctx context.Context, feedABI abi.ABI, method string) ([]interface{}, error) {
	data, err := feedABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &f.address, Data: data}
	resp, err := f.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, f.id, err)
	}
	values, err := feedABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %v: %w", method, f.id, err, model.ErrInvalidOracleData)
	}
	return values, nil
}

// StaticFeed is a settable in-memory feed.
type StaticFeed struct {
	mu       sync.RWMutex
	id       string
	value    *big.Int
	decimals uint8
	round    int64
	updated  time.Time
	err      error
}

func NewStaticFeed(id string, value *big.Int, decimals uint8) *StaticFeed {
	f := &StaticFeed{id: id, decimals: decimals}
	f.Set(value)
	return f
}

// Set publishes a new answer as a new round.
func (f *StaticFeed) Set(value *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value != nil {
		value = new(big.Int).Set(value)
	}
	f.value = value
	f.round++
	f.updated = time.Now().UTC()
}

// SetUpdatedAt overrides the reported update time.
func (f *StaticFeed) SetUpdatedAt(ts time.Time) {
	f.mu.Lock()
	f.updated = ts
	f.mu.Unlock()
}

// Fail makes LatestPrice return err until cleared with nil.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *StaticFeed) LatestPrice(_ context.Context) (model.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return model.Quote{}, f.err
	}
	var value *big.Int
	if f.value != nil {
		value = new(big.Int).Set(f.value)
	}
	return model.Quote{
		FeedID:    f.id,
		Value:     value,
		Decimals:  f.decimals,
		RoundID:   big.NewInt(f.round),
		UpdatedAt: f.updated,
	}, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
