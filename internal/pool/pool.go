package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

// FeePool tracks the base-currency balance reserved for the draw and the last actor eligible for it.
// It is not safe for concurrent use; the owning service serializes access.
type FeePool struct {
	balance  *uint256.Int
	eligible common.Address
}

// Snapshot is a copy of the pool state, used for draws and rollback.
type Snapshot struct {
	Balance  *uint256.Int
	Eligible common.Address
}

func New() *FeePool {
	return &FeePool{balance: new(uint256.Int)}
}

// Balance returns a copy of the reserved balance.
func (p *FeePool) Balance() *uint256.Int {
	return p.balance.Clone()
}

// Eligible returns the participant recorded by the most recent mint or burn.
func (p *FeePool) Eligible() common.Address {
	return p.eligible
}

// Contribute adds a fee share to the pool and overwrites the eligible participant.
func (p *FeePool) Contribute(amount *uint256.Int, participant common.Address) error {
	next, overflow := new(uint256.Int).AddOverflow(p.balance, amount)
	if overflow {
		return fmt.Errorf("pool contribution: %w", model.ErrArithmeticOverflow)
	}
	p.balance = next
	p.eligible = participant
	return nil
}

// Payout removes exactly amount from the pool.
func (p *FeePool) Payout(amount *uint256.Int) error {
	next, underflow := new(uint256.Int).SubOverflow(p.balance, amount)
	if underflow {
		return fmt.Errorf("pool payout %s exceeds balance %s: %w", amount.Dec(), p.balance.Dec(), model.ErrArithmeticOverflow)
	}
	p.balance = next
	return nil
}

// Snapshot captures the current state.
func (p *FeePool) Snapshot() Snapshot {
	return Snapshot{Balance: p.balance.Clone(), Eligible: p.eligible}
}

// Restore resets the pool to a previous snapshot.
func (p *FeePool) Restore(s Snapshot) {
	p.balance = s.Balance.Clone()
	p.eligible = s.Eligible
}
