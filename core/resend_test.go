package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

// sentChange registers a manager change and stores the transaction this node sent for it.
func sentChange(t *testing.T, env *testEnv, gasPrice int64) *types.SentTxRecord {
	req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
	_, err := env.chain.orchestrator.register(req)
	require.Nil(t, err)

	record := testOutbound("0xsent", req, big.NewInt(gasPrice)).Record
	require.Nil(t, env.db.SaveSentTx("ganache1", record))
	return record
}

func TestResend_Replace(t *testing.T) {
	env := getTestEnv(t)
	sentChange(t, env, 100)

	env.adapter.CurrentFeeRateFunc = func(ctx context.Context) (*big.Int, error) { return big.NewInt(100), nil }
	env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 7, nil }

	var price *big.Int
	env.family.BuildReplacementFunc = func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
		require.Equal(t, uint64(7), sent.Nonce)
		price = feeRate
		req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
		return testOutbound("0xreplaced", req, feeRate), nil
	}

	hash, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xreplaced", hash)
	require.Equal(t, big.NewInt(105), price)

	sent, err := env.db.GetSentTx("ganache1", testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xreplaced", sent.TxHash)
	require.Equal(t, big.NewInt(105), sent.GasPrice)

	utx := env.unconfirmed(t, "0xreplaced")
	require.NotNil(t, utx)
	require.Equal(t, []string{"0xaaa", "0xbbb"}, utx.Signers)

	w := env.waitingTx(t)
	require.Equal(t, 1, w.ResendCount)
	require.True(t, w.Sent)
}

func TestResend_NonceClear(t *testing.T) {
	env := getTestEnv(t)
	sentChange(t, env, 100)

	env.adapter.CurrentFeeRateFunc = func(ctx context.Context) (*big.Int, error) { return big.NewInt(100), nil }
	env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 7, nil }
	env.adapter.SimulateFunc = func(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error) {
		return &types.SimulateResult{Success: false, Reason: "already executed"}, nil
	}
	env.family.IsCompletedFunc = func(ctx context.Context, nerveTxHash string) (bool, error) { return true, nil }

	req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
	env.family.BuildReplacementFunc = func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
		return testOutbound("0xreplaced", req, feeRate), nil
	}
	env.family.BuildNonceClearFunc = func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
		return testOutbound("0xclear", req, feeRate), nil
	}

	var broadcast string
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		broadcast = string(raw)
		return "", nil
	}

	hash, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xclear", hash)
	require.Equal(t, "0xclear", broadcast)
}

func TestResend_CapReached(t *testing.T) {
	env := getTestEnv(t)
	sentChange(t, env, 100)

	// The current price is far below the sent one, escalation cannot go higher.
	env.adapter.CurrentFeeRateFunc = func(ctx context.Context) (*big.Int, error) { return big.NewInt(50), nil }
	env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 7, nil }
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		t.Fatal("nothing must be broadcast")
		return "", nil
	}

	_, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.ErrorIs(t, err, types.ErrGasPriceCapReached)
	require.Equal(t, 0, env.waitingTx(t).ResendCount)
}

func TestResend_Fresh(t *testing.T) {
	env := getTestEnv(t)
	sentChange(t, env, 100)
	builds := countBuilds(env)

	// The sent transaction is mined, its nonce is used.
	env.adapter.TxByHashFunc = func(ctx context.Context, hash string) (*types.ChainTx, error) {
		return &types.ChainTx{Hash: hash, BlockHeight: 90}, nil
	}

	hash, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)
	require.Equal(t, 1, *builds)
}

func TestResend_ReplaceWhileInMempool(t *testing.T) {
	env := getTestEnv(t)
	sentChange(t, env, 100)
	builds := countBuilds(env)

	// The pending nonce counts the unmined transaction.
	env.adapter.TxByHashFunc = func(ctx context.Context, hash string) (*types.ChainTx, error) {
		return &types.ChainTx{Hash: hash}, nil
	}
	env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 8, nil }
	env.adapter.CurrentFeeRateFunc = func(ctx context.Context) (*big.Int, error) { return big.NewInt(100), nil }

	replacements := 0
	env.family.BuildReplacementFunc = func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
		replacements++
		require.Equal(t, uint64(7), sent.Nonce)
		req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
		return testOutbound("0xreplaced", req, feeRate), nil
	}

	hash, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xreplaced", hash)
	require.Equal(t, 1, replacements)
	require.Equal(t, 0, *builds)
}

func TestResend_Refused(t *testing.T) {
	env := getTestEnv(t)

	_, err := env.chain.resender.Resend(context.Background(), testNerveHash)
	require.ErrorIs(t, err, types.ErrNoWaitingRecord)

	sentChange(t, env, 100)
	w := env.waitingTx(t)
	w.ResendCount = env.chain.bridgeCfg.ResendLimit
	require.Nil(t, env.chain.waiting.Offer(queueKey(testNerveHash), w))

	_, err = env.chain.resender.Resend(context.Background(), testNerveHash)
	require.ErrorIs(t, err, types.ErrResendLimit)

	env.chain.setRpcAvailable(false)
	_, err = env.chain.resender.Resend(context.Background(), testNerveHash)
	require.ErrorIs(t, err, types.ErrRpcUnavailable)
}
