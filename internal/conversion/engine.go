package conversion

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"goldpeg/internal/model"
)

// TokenDecimals is the fixed precision of the issued token.
const TokenDecimals = 18

// PriceDecimals is the precision of both oracle feeds.
const PriceDecimals = 8

var (
	// scale reconciles 18-decimal amounts with 8-decimal prices: 10^(18+8).
	scale   = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(TokenDecimals+PriceDecimals))
	hundred = uint256.NewInt(100)
	two     = uint256.NewInt(2)
)

// Params configures the engine. It is copied at construction and never changes afterwards.
type Params struct {
	FeePercent uint64
}

// Result is the outcome of one conversion.
type Result struct {
	USDValue *uint256.Int
	Gross    *uint256.Int
	Fee      *uint256.Int
	Net      *uint256.Int
}

// Engine converts between base-currency amounts and token amounts using two oracle prices.
type Engine struct {
	feePercent *uint256.Int
}

// New validates params and returns an Engine.
func New(params Params) (*Engine, error) {
	if params.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent %d out of range [0,100]", params.FeePercent)
	}
	return &Engine{feePercent: uint256.NewInt(params.FeePercent)}, nil
}

// FeePercent returns the configured fee percent.
func (e *Engine) FeePercent() uint64 {
	return e.feePercent.Uint64()
}

// AmountToTokens converts a base-currency amount into tokens, withholding the fee from the output.
func (e *Engine) AmountToTokens(baseAmount *uint256.Int, ethPrice, goldPrice *big.Int) (Result, error) {
	if baseAmount == nil || baseAmount.IsZero() {
		return Result{}, model.ErrZeroInput
	}
	eth, gold, err := pricePair(ethPrice, goldPrice)
	if err != nil {
		return Result{}, err
	}

	usd, err := mulDiv(baseAmount, eth, scale)
	if err != nil {
		return Result{}, fmt.Errorf("usd value: %w", err)
	}
	gross, err := mulDiv(usd, scale, gold)
	if err != nil {
		return Result{}, fmt.Errorf("gross tokens: %w", err)
	}
	return e.withFee(usd, gross)
}

// TokensToAmount converts tokens back into base currency, withholding the fee from the output.
func (e *Engine) TokensToAmount(tokenAmount *uint256.Int, ethPrice, goldPrice *big.Int) (Result, error) {
	if tokenAmount == nil || tokenAmount.IsZero() {
		return Result{}, model.ErrZeroInput
	}
	eth, gold, err := pricePair(ethPrice, goldPrice)
	if err != nil {
		return Result{}, err
	}

	usd, err := mulDiv(tokenAmount, gold, scale)
	if err != nil {
		return Result{}, fmt.Errorf("usd value: %w", err)
	}
	gross, err := mulDiv(usd, scale, eth)
	if err != nil {
		return Result{}, fmt.Errorf("gross amount: %w", err)
	}
	return e.withFee(usd, gross)
}

// MintPoolContribution is half of the nominal fee percent of the deposit: deposit*fee/100/2.
func (e *Engine) MintPoolContribution(deposit *uint256.Int) (*uint256.Int, error) {
	nominal, err := mulDiv(deposit, e.feePercent, hundred)
	if err != nil {
		return nil, fmt.Errorf("mint pool contribution: %w", err)
	}
	return nominal.Div(nominal, two), nil
}

// BurnPoolContribution is half of the fee already computed on the redemption output.
func (e *Engine) BurnPoolContribution(fee *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(fee, two)
}

func (e *Engine) withFee(usd, gross *uint256.Int) (Result, error) {
	fee, err := mulDiv(gross, e.feePercent, hundred)
	if err != nil {
		return Result{}, fmt.Errorf("fee: %w", err)
	}
	net, underflow := new(uint256.Int).SubOverflow(gross, fee)
	if underflow {
		return Result{}, fmt.Errorf("net amount: %w", model.ErrArithmeticOverflow)
	}
	return Result{USDValue: usd, Gross: gross, Fee: fee, Net: net}, nil
}

func pricePair(ethPrice, goldPrice *big.Int) (*uint256.Int, *uint256.Int, error) {
	eth, err := PriceToUint(ethPrice)
	if err != nil {
		return nil, nil, fmt.Errorf("eth price: %w", err)
	}
	gold, err := PriceToUint(goldPrice)
	if err != nil {
		return nil, nil, fmt.Errorf("gold price: %w", err)
	}
	return eth, gold, nil
}

// PriceToUint converts a signed oracle value into an unsigned operand, rejecting non-positive values.
func PriceToUint(price *big.Int) (*uint256.Int, error) {
	if price == nil || price.Sign() <= 0 {
		return nil, model.ErrInvalidOracleData
	}
	out, overflow := uint256.FromBig(price)
	if overflow {
		return nil, model.ErrArithmeticOverflow
	}
	return out, nil
}

// mulDiv computes a*b/c with the multiplication first. c must be non-zero.
func mulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, model.ErrArithmeticOverflow
	}
	return product.Div(product, c), nil
}
