package core

import (
	"math/big"

	"github.com/sisu-network/hbridge/types"
)

const (
	// The replacement gas price never goes above this percentage of the network price.
	GasPriceCapPercent = 110
)

// EscalateGasPrice returns the gas price of a replacement transaction:
// min(max(old, current) + step, 110% of current). It returns ErrGasPriceCapReached when this
// price is not above the old one.
func EscalateGasPrice(old, current, step *big.Int) (*big.Int, error) {
	base := new(big.Int).Set(current)
	if old.Cmp(current) > 0 {
		base.Set(old)
	}

	escalated := new(big.Int).Add(base, step)

	limit := new(big.Int).Mul(current, big.NewInt(GasPriceCapPercent))
	limit.Div(limit, big.NewInt(100))
	if escalated.Cmp(limit) > 0 {
		escalated = limit
	}

	if escalated.Cmp(old) <= 0 {
		return nil, types.ErrGasPriceCapReached
	}

	return escalated, nil
}
