package conversion

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

func mustDec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func price(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(100_000_000))
}

func newEngine(t *testing.T, fee uint64) *Engine {
	t.Helper()
	e, err := New(Params{FeePercent: fee})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestAmountToTokensFixture(t *testing.T) {
	e := newEngine(t, 5)
	deposit := mustDec(t, "1000000000000000000000")

	res, err := e.AmountToTokens(deposit, price(2000), price(1800))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	// usd = 1000e18 * 2000e8 / 1e26; gross = usd * 1e26 / 1800e8
	if res.USDValue.Dec() != "2000000" {
		t.Fatalf("usd mismatch: %s", res.USDValue.Dec())
	}
	if res.Gross.Dec() != "1111111111111111111111" {
		t.Fatalf("gross mismatch: %s", res.Gross.Dec())
	}
	if res.Fee.Dec() != "55555555555555555555" {
		t.Fatalf("fee mismatch: %s", res.Fee.Dec())
	}
	if res.Net.Dec() != "1055555555555555555556" {
		t.Fatalf("net mismatch: %s", res.Net.Dec())
	}

	contribution, err := e.MintPoolContribution(deposit)
	if err != nil {
		t.Fatalf("contribution: %v", err)
	}
	if contribution.Dec() != "25000000000000000000" {
		t.Fatalf("contribution mismatch: %s", contribution.Dec())
	}
}

func TestTokensToAmountFixture(t *testing.T) {
	e := newEngine(t, 5)
	tokens := mustDec(t, "1055555555555555555556")

	res, err := e.TokensToAmount(tokens, price(2000), price(1800))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.USDValue.Dec() != "1900000" {
		t.Fatalf("usd mismatch: %s", res.USDValue.Dec())
	}
	if res.Gross.Dec() != "950000000000000000000" {
		t.Fatalf("gross mismatch: %s", res.Gross.Dec())
	}
	if res.Fee.Dec() != "47500000000000000000" {
		t.Fatalf("fee mismatch: %s", res.Fee.Dec())
	}
	if res.Net.Dec() != "902500000000000000000" {
		t.Fatalf("net mismatch: %s", res.Net.Dec())
	}
	if got := e.BurnPoolContribution(res.Fee).Dec(); got != "23750000000000000000" {
		t.Fatalf("burn contribution mismatch: %s", got)
	}
}

func TestConversionZeroInput(t *testing.T) {
	e := newEngine(t, 5)
	if _, err := e.AmountToTokens(uint256.NewInt(0), price(2000), price(1800)); !errors.Is(err, model.ErrZeroInput) {
		t.Fatalf("expected zero input, got %v", err)
	}
	if _, err := e.TokensToAmount(nil, price(2000), price(1800)); !errors.Is(err, model.ErrZeroInput) {
		t.Fatalf("expected zero input, got %v", err)
	}
}

func TestConversionInvalidPrice(t *testing.T) {
	e := newEngine(t, 5)
	amount := uint256.NewInt(1_000_000)
	cases := []struct {
		name string
		eth  *big.Int
		gold *big.Int
	}{
		{"zero eth", big.NewInt(0), price(1800)},
		{"negative gold", price(2000), big.NewInt(-1)},
		{"missing eth", nil, price(1800)},
	}
	for _, tc := range cases {
		if _, err := e.AmountToTokens(amount, tc.eth, tc.gold); !errors.Is(err, model.ErrInvalidOracleData) {
			t.Fatalf("%s: expected invalid oracle data on mint, got %v", tc.name, err)
		}
		if _, err := e.TokensToAmount(amount, tc.eth, tc.gold); !errors.Is(err, model.ErrInvalidOracleData) {
			t.Fatalf("%s: expected invalid oracle data on burn, got %v", tc.name, err)
		}
	}
}

func TestConversionOverflow(t *testing.T) {
	e := newEngine(t, 5)
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	if _, err := e.AmountToTokens(huge, price(2000), price(1800)); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := e.TokensToAmount(huge, price(2000), price(1800)); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := e.AmountToTokens(uint256.NewInt(1), tooBig, price(1800)); !errors.Is(err, model.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow for oversized price, got %v", err)
	}
}

func TestNewRejectsFeeOutOfRange(t *testing.T) {
	if _, err := New(Params{FeePercent: 101}); err == nil {
		t.Fatalf("expected error for fee > 100")
	}
	e := newEngine(t, 100)
	res, err := e.AmountToTokens(mustDec(t, "1000000000000000000"), price(2000), price(1800))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !res.Net.IsZero() {
		t.Fatalf("full fee should leave nothing, got %s", res.Net.Dec())
	}
}

func TestRoundTripNeverGains(t *testing.T) {
	e := newEngine(t, 5)
	deposits := []string{"1", "999", "1000000000000000000", "123456789012345678901", "50000000000000000000000"}
	prices := [][2]int64{{2000, 1800}, {1, 1}, {3500, 2400}, {17, 90000}, {100000, 3}}

	for _, d := range deposits {
		deposit := mustDec(t, d)
		for _, p := range prices {
			minted, err := e.AmountToTokens(deposit, price(p[0]), price(p[1]))
			if err != nil {
				t.Fatalf("mint %s at %v: %v", d, p, err)
			}
			if minted.Net.IsZero() {
				continue
			}
			redeemed, err := e.TokensToAmount(minted.Net, price(p[0]), price(p[1]))
			if err != nil && !errors.Is(err, model.ErrZeroInput) {
				t.Fatalf("burn %s at %v: %v", minted.Net.Dec(), p, err)
			}
			if err != nil {
				continue
			}
			if redeemed.Net.Gt(deposit) {
				t.Fatalf("round trip gained value: deposit %s returned %s at %v", d, redeemed.Net.Dec(), p)
			}

			// exact double-fee bound: deposit * (100-fee)^2 / 100^2
			bound := new(big.Int).Mul(deposit.ToBig(), big.NewInt(95*95))
			bound.Div(bound, big.NewInt(100*100))
			if redeemed.Net.ToBig().Cmp(bound) > 0 {
				t.Fatalf("returned %s exceeds double fee bound %s at %v", redeemed.Net.Dec(), bound, p)
			}
		}
	}
}

func TestDoubleFeeGapIsSumOfSidedFees(t *testing.T) {
	e := newEngine(t, 5)
	deposit := mustDec(t, "100000000000000000000")

	minted, err := e.AmountToTokens(deposit, price(2000), price(2000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	redeemed, err := e.TokensToAmount(minted.Net, price(2000), price(2000))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}

	// at parity prices token units equal base units, so the mint-side fee is directly comparable.
	gap := new(uint256.Int).Sub(deposit, redeemed.Net)
	fees := new(uint256.Int).Add(minted.Fee, redeemed.Fee)
	if !gap.Eq(fees) {
		t.Fatalf("gap %s != fees %s", gap.Dec(), fees.Dec())
	}

	single := new(uint256.Int).Sub(deposit, minted.Net)
	if !gap.Gt(single) {
		t.Fatalf("double trip gap %s should exceed single trip %s", gap.Dec(), single.Dec())
	}
}
