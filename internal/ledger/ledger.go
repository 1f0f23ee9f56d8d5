package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

// Ledger is the fungible token balance book.
type Ledger interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, from common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
	TotalSupply(ctx context.Context) (*uint256.Int, error)
}

// Memory is an in-process Ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (m *Memory) Mint(_ context.Context, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("mint to zero address")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(m.supply, amount)
	if overflow {
		return fmt.Errorf("total supply: %w", model.ErrArithmeticOverflow)
	}
	balance, overflow := new(uint256.Int).AddOverflow(m.balanceLocked(to), amount)
	if overflow {
		return fmt.Errorf("balance: %w", model.ErrArithmeticOverflow)
	}
	m.supply = supply
	m.balances[to] = balance
	return nil
}

func (m *Memory) Burn(_ context.Context, from common.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.balanceLocked(from)
	if current.Lt(amount) {
		return fmt.Errorf("burn %s from %s holding %s: %w", amount.Dec(), from.Hex(), current.Dec(), model.ErrInsufficientBalance)
	}
	m.balances[from] = new(uint256.Int).Sub(current, amount)
	m.supply = new(uint256.Int).Sub(m.supply, amount)
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(owner).Clone(), nil
}

func (m *Memory) TotalSupply(_ context.Context) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply.Clone(), nil
}

func (m *Memory) balanceLocked(owner common.Address) *uint256.Int {
	if bal, ok := m.balances[owner]; ok {
		return bal
	}
	return new(uint256.Int)
}
