package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

func TestMemoryMintBurn(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	holder := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if err := l.Mint(ctx, holder, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(ctx, holder, uint256.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	bal, _ := l.BalanceOf(ctx, holder)
	supply, _ := l.TotalSupply(ctx)
	if bal.Uint64() != 60 || supply.Uint64() != 60 {
		t.Fatalf("balance/supply mismatch: %s %s", bal.Dec(), supply.Dec())
	}

	if err := l.Burn(ctx, holder, uint256.NewInt(61)); !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	bal, _ = l.BalanceOf(ctx, holder)
	if bal.Uint64() != 60 {
		t.Fatalf("failed burn must not change balance")
	}
}

func TestMemoryMintZeroAddress(t *testing.T) {
	if err := NewMemory().Mint(context.Background(), common.Address{}, uint256.NewInt(1)); err == nil {
		t.Fatalf("expected error minting to zero address")
	}
}

func TestMemoryBalanceIsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	holder := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_ = l.Mint(ctx, holder, uint256.NewInt(5))

	bal, _ := l.BalanceOf(ctx, holder)
	bal.SetUint64(1000)

	again, _ := l.BalanceOf(ctx, holder)
	if again.Uint64() != 5 {
		t.Fatalf("balance aliased: %s", again.Dec())
	}
}
