package randomness

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Consumer receives fulfilled randomness.
type Consumer interface {
	OnRandomnessFulfilled(ctx context.Context, requestID *uint256.Int, words []*uint256.Int) error
}

// LocalProvider is an in-process provider. Requests stay queued until Fulfill is called, and
// words are derived from keccak256(seed, requestID, index) so runs are reproducible.
type LocalProvider struct {
	mu       sync.Mutex
	seed     []byte
	nextID   uint64
	pending  map[uint256.Int]RequestConfig
	consumer Consumer
}

func NewLocalProvider(seed []byte) *LocalProvider {
	return &LocalProvider{
		seed:    append([]byte(nil), seed...),
		nextID:  1,
		pending: make(map[uint256.Int]RequestConfig),
	}
}

// SetConsumer registers the callback target.
func (p *LocalProvider) SetConsumer(consumer Consumer) {
	p.mu.Lock()
	p.consumer = consumer
	p.mu.Unlock()
}

func (p *LocalProvider) RequestRandomWords(_ context.Context, cfg RequestConfig) (*uint256.Int, error) {
	if cfg.NumWords == 0 {
		return nil, fmt.Errorf("num words must be greater than zero")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uint256.NewInt(p.nextID)
	p.nextID++
	p.pending[*id] = cfg
	return id, nil
}

// Pending returns queued request IDs in ascending order.
func (p *LocalProvider) Pending() []*uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*uint256.Int, 0, len(p.pending))
	for id := range p.pending {
		id := id
		out = append(out, &id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lt(out[j]) })
	return out
}

// Words derives the words the provider would deliver for a request.
func (p *LocalProvider) Words(id *uint256.Int, count uint32) []*uint256.Int {
	idBytes := id.Bytes32()
	words := make([]*uint256.Int, 0, count)
	for i := uint32(0); i < count; i++ {
		var index [4]byte
		binary.BigEndian.PutUint32(index[:], i)
		digest := crypto.Keccak256(p.seed, idBytes[:], index[:])
		words = append(words, new(uint256.Int).SetBytes(digest))
	}
	return words
}

// Fulfill delivers derived words for a queued request.
func (p *LocalProvider) Fulfill(ctx context.Context, id *uint256.Int) error {
	p.mu.Lock()
	cfg, ok := p.pending[*id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("request %s not queued", id.Dec())
	}
	return p.FulfillWith(ctx, id, p.Words(id, cfg.NumWords))
}

// FulfillWith delivers explicit words. The request leaves the queue only if the consumer accepts it.
func (p *LocalProvider) FulfillWith(ctx context.Context, id *uint256.Int, words []*uint256.Int) error {
	p.mu.Lock()
	_, ok := p.pending[*id]
	consumer := p.consumer
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("request %s not queued", id.Dec())
	}
	if consumer == nil {
		return fmt.Errorf("no consumer registered")
	}

	if err := consumer.OnRandomnessFulfilled(ctx, id, words); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.pending, *id)
	p.mu.Unlock()
	return nil
}
