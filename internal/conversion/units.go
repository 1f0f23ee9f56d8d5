package conversion

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatUnits renders a fixed-point integer as a decimal string.
func FormatUnits(value *uint256.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -decimals).String()
}

// FormatSigned renders a signed fixed-point integer, such as an oracle answer.
func FormatSigned(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// ParseUnits parses a human decimal ("1.5") into a fixed-point integer with the given precision.
func ParseUnits(input string, decimals int32) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", input)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", input, decimals)
	}
	out, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows uint256", input)
	}
	return out, nil
}
