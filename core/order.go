package core

import (
	"encoding/hex"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/hbridge/utils"
)

// ComputeSendOrder rotates the bank members for one request. Members are ranked by their global
// order and the ranking is shifted by a seed taken from the request hash, so every member computes
// the same orders 1..N and no member is always first.
func ComputeSendOrder(nerveTxHash string, bankOrder map[string]int) map[string]int {
	members := make([]string, 0, len(bankOrder))
	for addr := range bankOrder {
		members = append(members, strings.ToLower(addr))
	}

	lowered := make(map[string]int, len(bankOrder))
	for addr, order := range bankOrder {
		lowered[strings.ToLower(addr)] = order
	}

	sort.Slice(members, func(i, j int) bool {
		if lowered[members[i]] != lowered[members[j]] {
			return lowered[members[i]] < lowered[members[j]]
		}
		return members[i] < members[j]
	})

	n := len(members)
	ret := make(map[string]int, n)
	if n == 0 {
		return ret
	}

	seed := rotationSeed(nerveTxHash, n)
	for i, addr := range members {
		ret[addr] = (i-seed+n)%n + 1
	}

	return ret
}

func rotationSeed(nerveTxHash string, n int) int {
	bz, err := hex.DecodeString(types.NormalizeHash(nerveTxHash))
	if err != nil || len(bz) == 0 {
		bz = utils.Keccak256([]byte(nerveTxHash))
	}

	seed := new(big.Int).SetBytes(bz)
	return int(seed.Mod(seed, big.NewInt(int64(n))).Int64())
}

// NextSenderOrder is the order of the member that must resend after the member with the given
// order failed. An unknown sender (order 0) hands over to order 1.
func NextSenderOrder(failedOrder, memberCount int) int {
	if memberCount == 0 {
		return 0
	}

	return failedOrder%memberCount + 1
}

// RoundDeadline is the time from which the member with the given order may send.
func RoundDeadline(roundStart time.Time, order int, interval time.Duration) time.Time {
	if order < 1 {
		order = 1
	}

	return roundStart.Add(time.Duration(order-1) * interval)
}

// MaxDeadline is the time at which the whole rotation restarts.
func MaxDeadline(roundStart time.Time, memberCount int, interval, maxWait time.Duration) time.Time {
	wait := time.Duration(memberCount) * interval
	if maxWait > wait {
		wait = maxWait
	}

	return roundStart.Add(wait)
}

// HasEnoughConfirmations is the depth gate of the confirmation engine.
func HasEnoughConfirmations(tip, blockHeight, required int64) bool {
	return blockHeight > 0 && tip-blockHeight >= required
}
