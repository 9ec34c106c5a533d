package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	OneEtherInWei = int64(1_000_000_000_000_000_000)
	OneGweiInWei  = int64(1_000_000_000)
)

// ParseUsd parses a USD price such as "68.382". Prices must be positive.
func ParseUsd(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Invalid price %s", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("Price %s is not positive", s)
	}

	return d, nil
}

// ToDecimal converts an amount in the smallest unit of an asset to a decimal value.
func ToDecimal(amount *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FromDecimal converts a decimal value to the smallest unit of an asset, rounding up.
func FromDecimal(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).Ceil().BigInt()
}
