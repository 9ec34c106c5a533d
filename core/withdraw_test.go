package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

func testWithdrawRequest() *types.WithdrawRequest {
	return &types.WithdrawRequest{
		NerveTxHash: testNerveHash,
		To:          "0xuser",
		Amount:      big.NewInt(1_000_000),
		Decimals:    18,
		Signatures: []types.Signature{
			{Signer: "0xaaa", Data: [][]byte{{1}}},
			{Signer: "0xbbb", Data: [][]byte{{2}}},
		},
	}
}

// withFee makes the home chain report the given fee in ETH and the cost of a withdrawal 1e15 wei.
func withFee(env *testEnv, amount string) {
	env.home.WithdrawFeeFunc = func(chain, nerveTxHash string) (*types.WithdrawFee, error) {
		return &types.WithdrawFee{Amount: amount, Asset: "ETH", Decimals: 18}, nil
	}
	env.home.UsdPriceFunc = func(asset string) (decimal.Decimal, error) {
		return decimal.NewFromInt(1500), nil
	}
	env.family.EstimateWithdrawCostFunc = func(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error) {
		return big.NewInt(1_000_000_000_000_000), nil
	}
}

// A withdrawal whose fee does not cover the cost is never built.
func TestOrchestrator_ScenarioC(t *testing.T) {
	env := getTestEnv(t)
	withFee(env, "1000")
	env.family.BuildFunc = func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
		t.Fatal("an underpaid withdrawal must not be built")
		return nil, nil
	}
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		t.Fatal("an underpaid withdrawal must not be broadcast")
		return "", nil
	}

	_, err := env.chain.Orchestrator().CreateOrSignWithdraw(context.Background(), testWithdrawRequest(), false)
	require.ErrorIs(t, err, types.ErrInsufficientFee)
	require.True(t, types.IsBusinessRejection(err))

	// The request stays registered for the rotation.
	require.NotNil(t, env.waitingTx(t))
	require.False(t, env.waitingTx(t).Sent)
}

func TestOrchestrator_Withdraw(t *testing.T) {
	env := getTestEnv(t)
	withFee(env, "2000000000000000")
	env.adapter.CurrentFeeRateFunc = func(ctx context.Context) (*big.Int, error) { return big.NewInt(30), nil }

	var builtRate *big.Int
	env.family.BuildFunc = func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
		builtRate = feeRate
		return testOutbound("0xlocal", req, feeRate), nil
	}
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		return "0xwithdraw", nil
	}

	hash, err := env.chain.Orchestrator().CreateOrSignWithdraw(context.Background(), testWithdrawRequest(), false)
	require.Nil(t, err)
	require.Equal(t, "0xwithdraw", hash)
	require.Equal(t, big.NewInt(30), builtRate)

	sent, err := env.db.GetSentTx("ganache1", testNerveHash)
	require.Nil(t, err)
	require.Equal(t, "0xwithdraw", sent.TxHash)
	require.Equal(t, uint64(7), sent.Nonce)

	utx := env.unconfirmed(t, "0xwithdraw")
	require.Equal(t, types.TxStatusInitial, utx.Status)
	require.Equal(t, types.TxTypeWithdraw, utx.TxType)
	require.Equal(t, "0xuser", utx.To)
	require.Equal(t, big.NewInt(1_000_000), utx.Amount)
	require.Equal(t, []string{"0xaaa", "0xbbb"}, utx.Signers)

	stored, err := env.db.GetTx("ganache1", "0xwithdraw")
	require.Nil(t, err)
	require.Equal(t, types.NormalizeHash(testNerveHash), stored.NerveTxHash)

	require.True(t, env.waitingTx(t).Sent)
}

// An empty manager change is confirmed without touching the external chain.
func TestOrchestrator_ScenarioD(t *testing.T) {
	env := getTestEnv(t)
	env.family.BuildFunc = func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
		t.Fatal("an empty change is not built")
		return nil, nil
	}

	var conf *types.BroadcastConfirmation
	env.home.ConfirmBroadcastFunc = func(c *types.BroadcastConfirmation) (*types.SubmitResult, error) {
		conf = c
		return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
	}

	req := testChangeRequest()
	req.Adds = nil
	hash, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), req, true)
	require.Nil(t, err)
	require.Empty(t, hash)

	require.NotNil(t, conf)
	require.Empty(t, conf.TxHash)
	require.Equal(t, types.TxTypeChange, conf.TxType)
	require.Equal(t, testMultisig, conf.MultisigAddress)
	require.Equal(t, []string{"0xaaa", "0xbbb"}, conf.Signers)
	require.Nil(t, env.waitingTx(t))

	env.home.ConfirmBroadcastFunc = func(c *types.BroadcastConfirmation) (*types.SubmitResult, error) {
		return &types.SubmitResult{Outcome: types.OutcomeFailed, Reason: "unknown request"}, nil
	}
	_, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), req, true)
	require.NotNil(t, err)
}

func TestOrchestrator_CheckOrder(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)

	hash, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)
	require.Empty(t, hash)
	require.Equal(t, 0, *builds)

	w := env.waitingTx(t)
	require.Equal(t, map[string]int{"0xaaa": 2, "0xbbb": 3, "0xccc": 1}, w.CurrentBankOrder)
	roundStart := w.RoundStart

	// Another call refreshes the signatures but keeps the rotation.
	env.advance(env.chain.cfg.RoundPeriod())
	req := testChangeRequest()
	req.Signatures = append(req.Signatures, types.Signature{Signer: "0xccc", Data: [][]byte{{3}}})
	_, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), req, true)
	require.Nil(t, err)

	w = env.waitingTx(t)
	require.True(t, w.RoundStart.Equal(roundStart))
	require.Len(t, w.Request.Signers(), 3)

	// Without the order check the request is sent right away.
	hash, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), req, false)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)
	require.Equal(t, 1, *builds)
}

func TestOrchestrator_SentOncePerRound(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)
	broadcasts := 0
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		broadcasts++
		return "", nil
	}
	env.home.NodeAddressFunc = func(chain string) (string, error) { return "0xccc", nil }

	hash, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)

	// The home chain asks again before the first transaction is mined.
	hash, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)

	require.Equal(t, 1, *builds)
	require.Equal(t, 1, broadcasts)
	require.True(t, env.waitingTx(t).Sent)
}

func TestOrchestrator_Upgrade(t *testing.T) {
	env := getTestEnv(t)
	countBuilds(env)
	env.home.NodeAddressFunc = func(chain string) (string, error) { return "0xccc", nil }

	req := &types.UpgradeRequest{
		NerveTxHash:     testNerveHash,
		UpgradeContract: "0x2222222222222222222222222222222222222222",
		Signatures:      testChangeRequest().Signatures,
	}
	hash, err := env.chain.Orchestrator().CreateOrSignUpgrade(context.Background(), req, true)
	require.Nil(t, err)
	require.Equal(t, "0xbuild1", hash)
	require.Equal(t, req.UpgradeContract, env.unconfirmed(t, hash).To)
}

func TestOrchestrator_Rejections(t *testing.T) {
	env := getTestEnv(t)
	builds := countBuilds(env)

	req := testChangeRequest()
	req.Signatures = req.Signatures[:1]
	_, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), req, false)
	require.ErrorIs(t, err, types.ErrInsufficientSignatures)

	env.family.ValidateFunc = func(ctx context.Context, req *types.Request) error {
		return types.ErrDuplicateManager
	}
	_, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), false)
	require.ErrorIs(t, err, types.ErrDuplicateManager)

	env.family.ValidateFunc = nil
	env.chain.setRpcAvailable(false)
	_, err = env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), false)
	require.ErrorIs(t, err, types.ErrRpcUnavailable)
	require.Equal(t, 0, *builds)
}

func TestOrchestrator_NotInBank(t *testing.T) {
	env := getTestEnv(t)
	env.home.NodeAddressFunc = func(chain string) (string, error) { return "0xzzz", nil }

	_, err := env.chain.Orchestrator().CreateOrSignManagerChange(context.Background(), testChangeRequest(), true)
	require.NotNil(t, err)
	require.Nil(t, env.waitingTx(t))
}
