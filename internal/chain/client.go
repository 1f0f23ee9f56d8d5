package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrTooManyLogs is returned when a provider refuses an eth_getLogs span as too large.
// Retrying the same span cannot succeed; the caller has to narrow it.
var ErrTooManyLogs = errors.New("log query exceeds provider limit")

// maxCachedTimestamps bounds the header timestamp cache of a long-running watch.
const maxCachedTimestamps = 8192

// Provider messages for oversized log queries (geth, Alchemy, Infura, QuickNode, Ankr).
var tooManyLogsMessages = []string{
	"query returned more than",
	"log response size exceeded",
	"response size exceeded",
	"block range is too wide",
	"exceed maximum block range",
	"block range too large",
}

// Client reads price feeds and engine logs over JSON-RPC.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	chainID *big.Int
	tsCache map[uint64]uint64
}

func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID, asking the node only once per connection.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	id := c.chainID
	c.mu.RUnlock()
	if id != nil {
		return new(big.Int).Set(id), nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}

// BlockTimestamp returns the header time of a block, stamped onto every event decoded from it.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}

	c.mu.Lock()
	if len(c.tsCache) >= maxCachedTimestamps {
		c.tsCache = make(map[uint64]uint64)
	}
	c.tsCache[number] = header.Time
	c.mu.Unlock()
	return header.Time, nil
}

// FilterLogs returns logs of contracts in [fromBlock, toBlock] whose topic0 is in topic0.
// An empty contract list is refused so a misconfigured watch never scans every contract on chain.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, contracts []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if len(contracts) == 0 {
		return nil, fmt.Errorf("filter logs: no contracts")
	}
	if toBlock < fromBlock {
		return nil, fmt.Errorf("filter logs: to block %d before from block %d", toBlock, fromBlock)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: contracts,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, classifyLogsError(err)
	}
	return logs, nil
}

// CallContract performs an eth_call. A nil blockNumber reads the latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

func classifyLogsError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, m := range tooManyLogsMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrTooManyLogs, err)
		}
	}
	return fmt.Errorf("eth_getLogs: %w", err)
}
