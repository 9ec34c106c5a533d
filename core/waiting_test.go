package core

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

// countBuilds makes every build produce a distinct transaction and returns the build counter.
func countBuilds(env *testEnv) *int {
	builds := 0
	env.family.BuildFunc = func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
		builds++
		return testOutbound(fmt.Sprintf("0xbuild%d", builds), req, big.NewInt(100)), nil
	}
	return &builds
}

func (env *testEnv) waitingTx(t *testing.T) *types.WaitingTx {
	w, err := env.chain.waiting.Get(queueKey(testNerveHash))
	require.Nil(t, err)
	return w
}

func TestWaiting_OneSenderPerRound(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)
	coordinator := env.chain.WaitingCoordinator()

	// 0xaaa has order 2 for this request.
	hash, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)
	require.Empty(t, hash)

	w := env.waitingTx(t)
	require.Equal(t, 2, w.ThisNodeOrder)
	require.True(t, w.RoundDeadline.Equal(env.now.Add(env.chain.cfg.RoundPeriod())))
	require.True(t, w.MaxDeadline.Equal(env.now.Add(env.chain.cfg.MaxWaitPeriod())))

	require.Nil(t, coordinator.Run(context.Background()))
	require.Equal(t, 0, *builds)

	env.advance(env.chain.cfg.RoundPeriod())
	require.Nil(t, coordinator.Run(context.Background()))
	require.Equal(t, 1, *builds)

	w = env.waitingTx(t)
	require.True(t, w.InvokedResendThisRound)
	require.True(t, w.Sent)
	require.Equal(t, 1, w.ResendCount)
	require.NotNil(t, env.unconfirmed(t, "0xbuild1"))

	// Only one send per round.
	env.advance(time.Minute)
	require.Nil(t, coordinator.Run(context.Background()))
	require.Equal(t, 1, *builds)

	// The rotation restarts after the maximum wait.
	env.advance(env.chain.cfg.MaxWaitPeriod())
	require.Nil(t, coordinator.Run(context.Background()))
	require.Equal(t, 1, *builds)

	w = env.waitingTx(t)
	require.False(t, w.InvokedResendThisRound)
	require.False(t, w.Sent)
	require.True(t, w.RoundStart.Equal(env.now))
	require.True(t, w.RoundDeadline.Equal(env.now.Add(env.chain.cfg.RoundPeriod())))
}

func TestWaiting_FirstOrderSendsOnReset(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)
	env.home.NodeAddressFunc = func(chain string) (string, error) { return "0xccc", nil }
	// The first transaction left the mempool, so the next send is built from scratch.
	env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 8, nil }

	hash, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)
	require.Equal(t, 1, env.waitingTx(t).ThisNodeOrder)

	// Order 1 never takes over inside a round.
	env.advance(env.chain.cfg.RoundPeriod())
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Equal(t, 1, *builds)

	env.advance(env.chain.cfg.MaxWaitPeriod())
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Equal(t, 2, *builds)
	require.True(t, env.waitingTx(t).InvokedResendThisRound)
}

func TestWaiting_SkipsWhenBroadcastOnChain(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)

	_, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)

	// Another member's transaction is already mined.
	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xother",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeChange,
		Status:      types.TxStatusCompleted,
		BlockHeight: 100,
	})

	env.advance(env.chain.cfg.RoundPeriod())
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Equal(t, 0, *builds)
}

func TestWaiting_Discard(t *testing.T) {
	env := getTestEnv(t)
	countBuilds(env)

	_, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)

	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.NotNil(t, env.waitingTx(t))

	env.home.IsAlreadySkippedFunc = func(chain, nerveTxHash string) (bool, error) {
		return nerveTxHash == testNerveHash, nil
	}
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Nil(t, env.waitingTx(t))
}

func TestWaiting_RevalidateOnChain(t *testing.T) {
	env := getTestEnv(t)
	countBuilds(env)

	_, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)

	completed := false
	env.family.IsCompletedFunc = func(ctx context.Context, nerveTxHash string) (bool, error) {
		return completed, nil
	}

	setHomeHeight(env, env.chain.bridgeCfg.RevalidateInterval)
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Equal(t, env.chain.bridgeCfg.RevalidateInterval, env.waitingTx(t).LastValidateHeight)

	// Not checked again until the interval passed.
	completed = true
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.NotNil(t, env.waitingTx(t))

	setHomeHeight(env, 2*env.chain.bridgeCfg.RevalidateInterval)
	require.Nil(t, env.chain.WaitingCoordinator().Run(context.Background()))
	require.Nil(t, env.waitingTx(t))
}
