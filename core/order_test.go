package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeSendOrder(t *testing.T) {
	orders := ComputeSendOrder(testNerveHash, testBank)
	require.Equal(t, map[string]int{"0xaaa": 2, "0xbbb": 3, "0xccc": 1}, orders)

	// Every member computes the same orders whatever the case of the addresses.
	other := ComputeSendOrder(testNerveHash, map[string]int{"0xCCC": 3, "0xAAA": 1, "0xBBB": 2})
	require.Equal(t, orders, other)

	// Another hash rotates the members.
	orders = ComputeSendOrder("0x0000000000000000000000000000000000000000000000000000000000000003", testBank)
	require.Equal(t, map[string]int{"0xaaa": 1, "0xbbb": 2, "0xccc": 3}, orders)
}

func TestComputeSendOrder_IsPermutation(t *testing.T) {
	bank := map[string]int{"0x1": 1, "0x2": 2, "0x3": 3, "0x4": 4, "0x5": 5}
	for _, hash := range []string{"0xdeadbeef", "0x01", "not hex", ""} {
		orders := ComputeSendOrder(hash, bank)
		require.Len(t, orders, 5)

		seen := make(map[int]bool)
		for _, order := range orders {
			require.True(t, order >= 1 && order <= 5)
			seen[order] = true
		}
		require.Len(t, seen, 5)
		require.Equal(t, orders, ComputeSendOrder(hash, bank))
	}

	require.Empty(t, ComputeSendOrder(testNerveHash, map[string]int{}))
}

func TestNextSenderOrder(t *testing.T) {
	require.Equal(t, 2, NextSenderOrder(1, 3))
	require.Equal(t, 1, NextSenderOrder(3, 3))
	require.Equal(t, 1, NextSenderOrder(0, 3))
	require.Equal(t, 0, NextSenderOrder(1, 0))
}

func TestDeadlines(t *testing.T) {
	start := time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, start, RoundDeadline(start, 1, time.Minute))
	require.Equal(t, start.Add(2*time.Minute), RoundDeadline(start, 3, time.Minute))

	require.Equal(t, start.Add(30*time.Minute), MaxDeadline(start, 3, time.Minute, 30*time.Minute))
	require.Equal(t, start.Add(50*time.Minute), MaxDeadline(start, 50, time.Minute, 30*time.Minute))
}

func TestHasEnoughConfirmations(t *testing.T) {
	require.False(t, HasEnoughConfirmations(100, 0, 10))
	require.False(t, HasEnoughConfirmations(100, 91, 10))
	require.True(t, HasEnoughConfirmations(100, 90, 10))
}
