package core

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/hbridge/utils"
)

// RequiredFee converts the native cost of a withdrawal into the fee asset through the USD prices
// of both assets. The result is rounded up.
func RequiredFee(nativeCost *big.Int, nativeDecimals int, nativeUsd decimal.Decimal,
	feeDecimals int, feeUsd decimal.Decimal) *big.Int {
	usd := utils.ToDecimal(nativeCost, nativeDecimals).Mul(nativeUsd)
	return utils.FromDecimal(usd.Div(feeUsd), feeDecimals)
}

// CheckFee returns ErrInsufficientFee when the provided fee is below the required one.
func CheckFee(provided, required *big.Int) error {
	if provided.Cmp(required) < 0 {
		return types.ErrInsufficientFee
	}

	return nil
}

// GasPriceForFee returns the highest gas price the fee paid on the home chain can cover. Once
// signers have committed to a gas price it is never lowered: a result below committed returns
// ErrFeeRegression.
func GasPriceForFee(fee *big.Int, feeDecimals int, feeUsd decimal.Decimal, nativeDecimals int,
	nativeUsd decimal.Decimal, gasLimit uint64, committed *big.Int) (*big.Int, error) {
	if gasLimit == 0 {
		return nil, types.ErrInsufficientFee
	}

	usd := utils.ToDecimal(fee, feeDecimals).Mul(feeUsd)
	native := usd.Div(nativeUsd).Shift(int32(nativeDecimals)).Floor().BigInt()
	price := native.Div(native, new(big.Int).SetUint64(gasLimit))

	if committed != nil && price.Cmp(committed) < 0 {
		return nil, types.ErrFeeRegression
	}

	return price, nil
}
