package treasury

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

// Treasury holds the engine's base-currency balance and moves value out of it.
type Treasury interface {
	Balance(ctx context.Context) (*uint256.Int, error)
	Deposit(ctx context.Context, from common.Address, amount *uint256.Int) error
	Send(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Memory is an in-process Treasury. Recipients can be marked as rejecting to simulate failed sends.
type Memory struct {
	mu        sync.Mutex
	balance   *uint256.Int
	received  map[common.Address]*uint256.Int
	rejecting map[common.Address]bool
}

func NewMemory() *Memory {
	return &Memory{
		balance:   new(uint256.Int),
		received:  make(map[common.Address]*uint256.Int),
		rejecting: make(map[common.Address]bool),
	}
}

func (m *Memory) Balance(_ context.Context) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance.Clone(), nil
}

func (m *Memory) Deposit(_ context.Context, _ common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, overflow := new(uint256.Int).AddOverflow(m.balance, amount)
	if overflow {
		return fmt.Errorf("treasury balance: %w", model.ErrArithmeticOverflow)
	}
	m.balance = next
	return nil
}

// Send moves amount to the recipient. It fails with ErrTransferFailed when the balance is short
// or the recipient rejects.
func (m *Memory) Send(_ context.Context, to common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejecting[to] {
		return fmt.Errorf("recipient %s rejected: %w", to.Hex(), model.ErrTransferFailed)
	}
	if m.balance.Lt(amount) {
		return fmt.Errorf("send %s with balance %s: %w", amount.Dec(), m.balance.Dec(), model.ErrTransferFailed)
	}
	m.balance = new(uint256.Int).Sub(m.balance, amount)

	prev, ok := m.received[to]
	if !ok {
		prev = new(uint256.Int)
	}
	m.received[to] = new(uint256.Int).Add(prev, amount)
	return nil
}

// Reject makes every later Send to addr fail until cleared.
func (m *Memory) Reject(addr common.Address, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reject {
		m.rejecting[addr] = true
		return
	}
	delete(m.rejecting, addr)
}

// Received returns the total sent to addr.
func (m *Memory) Received(addr common.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.received[addr]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}
