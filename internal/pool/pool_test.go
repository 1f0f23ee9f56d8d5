package pool

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestContributeOverwritesEligible(t *testing.T) {
	p := New()
	if p.Eligible() != (common.Address{}) {
		t.Fatalf("new pool should have no eligible participant")
	}

	if err := p.Contribute(uint256.NewInt(10), alice); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := p.Contribute(uint256.NewInt(5), bob); err != nil {
		t.Fatalf("contribute: %v", err)
	}

	if p.Eligible() != bob {
		t.Fatalf("eligible should be last actor, got %s", p.Eligible().Hex())
	}
	if p.Balance().Uint64() != 15 {
		t.Fatalf("balance mismatch: %s", p.Balance().Dec())
	}

	// zero contributions still move the pointer
	if err := p.Contribute(uint256.NewInt(0), alice); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if p.Eligible() != alice {
		t.Fatalf("eligible should be alice")
	}
}

func TestPayoutExactAmount(t *testing.T) {
	p := New()
	_ = p.Contribute(uint256.NewInt(30), alice)

	if err := p.Payout(uint256.NewInt(20)); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if p.Balance().Uint64() != 10 {
		t.Fatalf("balance mismatch: %s", p.Balance().Dec())
	}
	if err := p.Payout(uint256.NewInt(11)); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if p.Balance().Uint64() != 10 {
		t.Fatalf("failed payout must not change balance")
	}
}

func TestContributeOverflow(t *testing.T) {
	p := New()
	max := new(uint256.Int).SetAllOne()
	if err := p.Contribute(max, alice); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := p.Contribute(uint256.NewInt(1), bob); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if p.Eligible() != alice {
		t.Fatalf("failed contribution must not move eligible pointer")
	}
}

func TestSnapshotRestore(t *testing.T) {
	p := New()
	_ = p.Contribute(uint256.NewInt(7), alice)
	snap := p.Snapshot()

	_ = p.Contribute(uint256.NewInt(3), bob)
	p.Restore(snap)

	if p.Balance().Uint64() != 7 || p.Eligible() != alice {
		t.Fatalf("restore mismatch: %s %s", p.Balance().Dec(), p.Eligible().Hex())
	}

	// snapshot must not alias live state
	snap.Balance.SetUint64(99)
	if p.Balance().Uint64() != 7 {
		t.Fatalf("snapshot aliases pool balance")
	}
}
