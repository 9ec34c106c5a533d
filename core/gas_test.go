package core

import (
	"math/big"
	"testing"

	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

func TestEscalateGasPrice(t *testing.T) {
	price, err := EscalateGasPrice(big.NewInt(10), big.NewInt(100), big.NewInt(1))
	require.Nil(t, err)
	require.Equal(t, big.NewInt(101), price)

	// Capped at 110% of the network price.
	price, err = EscalateGasPrice(big.NewInt(105), big.NewInt(100), big.NewInt(10))
	require.Nil(t, err)
	require.Equal(t, big.NewInt(110), price)

	_, err = EscalateGasPrice(big.NewInt(110), big.NewInt(100), big.NewInt(10))
	require.Equal(t, types.ErrGasPriceCapReached, err)

	// The old price is above the cap after the network price dropped.
	_, err = EscalateGasPrice(big.NewInt(200), big.NewInt(100), big.NewInt(10))
	require.Equal(t, types.ErrGasPriceCapReached, err)
}

func TestEscalateGasPrice_MonotoneAndCapped(t *testing.T) {
	current := big.NewInt(1_000)
	limit := big.NewInt(1_100)
	old := big.NewInt(900)

	steps := 0
	for {
		price, err := EscalateGasPrice(old, current, big.NewInt(30))
		if err != nil {
			require.Equal(t, types.ErrGasPriceCapReached, err)
			break
		}

		require.True(t, price.Cmp(old) > 0)
		require.True(t, price.Cmp(limit) <= 0)
		old = price
		steps++
		require.Less(t, steps, 100)
	}

	require.Equal(t, limit, old)
}
