package core

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

func setTip(env *testEnv, tip int64) {
	env.adapter.HeightFunc = func(ctx context.Context) (int64, error) { return tip, nil }
}

func setHomeHeight(env *testEnv, height int64) {
	env.home.HomeChainHeightFunc = func() (int64, error) { return height, nil }
}

func successReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, Status: true, Logs: []*types.Log{{Address: testMultisig}}}, nil
}

// A deposit with unknown height whose block is behind the scanned height was superseded.
func TestConfirmer_ScenarioA(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)
	env.chain.observeHeight(100)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:                "0xdeposit",
		TxType:                types.TxTypeDeposit,
		BlockHeightProbeCount: MaxHeightProbes - 1,
		CreatedAt:             env.now,
	})
	env.adapter.TxByHashFunc = func(ctx context.Context, hash string) (*types.ChainTx, error) {
		return &types.ChainTx{Hash: hash, BlockHeight: 50}, nil
	}
	env.home.SubmitDepositFunc = func(info *types.DepositInfo) (*types.SubmitResult, error) {
		t.Fatal("superseded deposit must not be submitted")
		return nil, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xdeposit"))
}

func TestConfirmer_ProbeHeight(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdeposit", TxType: types.TxTypeDeposit, CreatedAt: env.now})
	env.adapter.TxByHashFunc = func(ctx context.Context, hash string) (*types.ChainTx, error) {
		t.Fatal("tx is fetched only after the probes")
		return nil, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, 1, env.unconfirmed(t, "0xdeposit").BlockHeightProbeCount)

	// The relation store knows the height.
	require.Nil(t, env.db.SaveTx("ganache1", &types.StoredTx{TxHash: "0xdeposit", TxType: types.TxTypeDeposit, BlockHeight: 150}))
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, int64(150), env.unconfirmed(t, "0xdeposit").BlockHeight)
}

// A failed broadcast that used up the resend budget is dropped and never sent again.
func TestConfirmer_ScenarioB(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xfailed",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeWithdraw,
		Status:      types.TxStatusFailed,
		BlockHeight: 10,
		ResendCount: env.chain.bridgeCfg.ResendLimit,
	})
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		t.Fatal("nothing must be resent")
		return "", nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xfailed"))

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
}

func TestConfirmer_DepthGate(t *testing.T) {
	env := getTestEnv(t)
	required := env.chain.cfg.WithdrawConfirmations
	require.True(t, required > env.chain.cfg.DepositConfirmations)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xwithdraw",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeWithdraw,
		Status:      types.TxStatusCompleted,
		BlockHeight: 100,
		Signers:     []string{"0xaaa", "0xbbb"},
	})
	env.adapter.ReceiptFunc = successReceipt

	var confirmed *types.BroadcastConfirmation
	env.home.ConfirmBroadcastFunc = func(conf *types.BroadcastConfirmation) (*types.SubmitResult, error) {
		confirmed = conf
		return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
	}

	setTip(env, 100+required-1)
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, confirmed)

	setTip(env, 100+required)
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.NotNil(t, confirmed)
	require.Equal(t, "0xwithdraw", confirmed.TxHash)
	require.Equal(t, []string{"0xaaa", "0xbbb"}, confirmed.Signers)
	require.Equal(t, testMultisig, confirmed.MultisigAddress)
	require.True(t, env.unconfirmed(t, "0xwithdraw").MarkedDeleted)
}

func TestConfirmer_RollbackSafePurge(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)
	setHomeHeight(env, 100)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xdeposit",
		TxType:      types.TxTypeDeposit,
		BlockHeight: 100,
		Amount:      big.NewInt(10),
	})
	env.adapter.ReceiptFunc = successReceipt

	submits := 0
	env.home.SubmitDepositFunc = func(info *types.DepositInfo) (*types.SubmitResult, error) {
		submits++
		require.Equal(t, "10", info.Amount)
		if submits == 1 {
			return &types.SubmitResult{Outcome: types.OutcomeConfirmed, NerveTxHash: "0xnerve"}, nil
		}
		return &types.SubmitResult{Outcome: types.OutcomeAlreadyConfirmed}, nil
	}
	onHome := true
	env.home.IsAlreadyConfirmedOnHomeFunc = func(chain, hash string) (bool, error) {
		require.Equal(t, "0xdeposit", hash)
		return onHome, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	utx := env.unconfirmed(t, "0xdeposit")
	require.True(t, utx.MarkedDeleted)
	window := env.chain.bridgeCfg.RollbackWindow
	require.Equal(t, 100+window, utx.DeleteAtHeight)

	// Inside the window the row stays.
	setHomeHeight(env, 100+window-1)
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.NotNil(t, env.unconfirmed(t, "0xdeposit"))
	require.Equal(t, 1, submits)

	// The home chain rolled back: the mark is undone and the deposit submitted again.
	onHome = false
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.False(t, env.unconfirmed(t, "0xdeposit").MarkedDeleted)
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, 2, submits)
	utx = env.unconfirmed(t, "0xdeposit")
	require.True(t, utx.MarkedDeleted)
	require.Equal(t, 100+2*window-1, utx.DeleteAtHeight)

	onHome = true
	setHomeHeight(env, 100+2*window-1)
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xdeposit"))
}

func TestConfirmer_DepositErrors(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdeposit", TxType: types.TxTypeDeposit, BlockHeight: 100})
	env.adapter.ReceiptFunc = successReceipt
	env.home.SubmitDepositFunc = func(info *types.DepositInfo) (*types.SubmitResult, error) {
		return &types.SubmitResult{Outcome: types.OutcomeFailed, Reason: "invalid address"}, nil
	}

	limit := env.chain.bridgeCfg.DepositErrorLimit
	for i := 0; i <= limit; i++ {
		require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	}
	require.Equal(t, limit+1, env.unconfirmed(t, "0xdeposit").DepositErrorCount)

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xdeposit"))
}

func TestConfirmer_InvalidDeposit(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdeposit", TxType: types.TxTypeDeposit, BlockHeight: 100})
	env.adapter.ReceiptFunc = func(ctx context.Context, hash string) (*types.Receipt, error) {
		return &types.Receipt{TxHash: hash, Status: false}, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xdeposit"))
}

func TestConfirmer_FeeRecharge(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xrecharge",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeFeeRecharge,
		BlockHeight: 100,
		Amount:      big.NewInt(5000),
	})
	env.adapter.ReceiptFunc = successReceipt

	var record *types.WithdrawFeeRecord
	env.home.RecordWithdrawFeeFunc = func(r *types.WithdrawFeeRecord) (*types.SubmitResult, error) {
		record = r
		return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, testNerveHash, record.NerveTxHash)
	require.Equal(t, "5000", record.Amount)
	require.True(t, env.unconfirmed(t, "0xrecharge").MarkedDeleted)
}

func TestConfirmer_Recovery(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	require.Nil(t, env.chain.SignalRecovery("0xrecovery"))
	env.offer(t, &types.UnconfirmedTx{TxHash: "0xchange1", TxType: types.TxTypeChange, Status: types.TxStatusCompleted, BlockHeight: 100})
	env.offer(t, &types.UnconfirmedTx{TxHash: "0xchange2", TxType: types.TxTypeChange, Status: types.TxStatusInitial})
	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdeposit", TxType: types.TxTypeDeposit, BlockHeight: 100})
	// Already reported, it stays until the home chain is past the rollback window.
	env.offer(t, &types.UnconfirmedTx{
		TxHash:         "0xchange3",
		TxType:         types.TxTypeChange,
		Status:         types.TxStatusCompleted,
		BlockHeight:    90,
		MarkedDeleted:  true,
		DeleteAtHeight: 130,
	})
	setHomeHeight(env, 100)
	env.home.SubmitDepositFunc = func(info *types.DepositInfo) (*types.SubmitResult, error) {
		t.Fatal("the cycle stops after a recovery")
		return nil, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))

	items, err := env.chain.UnconfirmedTxs()
	require.Nil(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "0xdeposit", items[0].TxHash)
	require.Equal(t, "0xchange3", items[1].TxHash)
	require.True(t, items[1].MarkedDeleted)
}

func TestConfirmer_DenyAndDelay(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)
	env.chain.cfg.DenyTxs = []string{"0xDENIED"}
	env.chain.cfg.DelayTxs = map[string]int{"0xdelayed": 2}

	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdenied", TxType: types.TxTypeDeposit, BlockHeight: 100})
	env.offer(t, &types.UnconfirmedTx{TxHash: "0xdelayed", TxType: types.TxTypeDeposit, BlockHeight: 100})
	env.adapter.ReceiptFunc = successReceipt

	submitted := make([]string, 0)
	env.home.SubmitDepositFunc = func(info *types.DepositInfo) (*types.SubmitResult, error) {
		submitted = append(submitted, info.TxHash)
		return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xdenied"))
	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Empty(t, submitted)

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, []string{"0xdelayed"}, submitted)
}

func TestConfirmer_UpgradeSwitchesMultisig(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)
	newMultisig := "0x2222222222222222222222222222222222222222"

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xupgrade",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeUpgrade,
		Status:      types.TxStatusCompleted,
		BlockHeight: 100,
		To:          newMultisig,
		Signers:     []string{"0xaaa", "0xbbb"},
	})
	env.adapter.ReceiptFunc = successReceipt

	var current string
	env.family.UpdateMultisigFunc = func(c string, history []string) {
		current = c
		require.Equal(t, []string{testMultisig, newMultisig}, history)
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Equal(t, newMultisig, current)
}

func TestConfirmer_CompletedWithoutLogsIsResent(t *testing.T) {
	env := getTestEnv(t)
	setTip(env, 200)

	req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
	_, err := env.chain.orchestrator.register(req)
	require.Nil(t, err)

	env.offer(t, &types.UnconfirmedTx{
		TxHash:      "0xold",
		NerveTxHash: testNerveHash,
		TxType:      types.TxTypeChange,
		Status:      types.TxStatusCompleted,
		BlockHeight: 100,
	})
	env.adapter.ReceiptFunc = func(ctx context.Context, hash string) (*types.Receipt, error) {
		return &types.Receipt{TxHash: hash, Status: true}, nil
	}
	env.family.BuildFunc = func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
		return testOutbound("0xnew", req, big.NewInt(1)), nil
	}
	env.adapter.BroadcastFunc = func(ctx context.Context, raw []byte) (string, error) {
		return "0xnew", nil
	}
	env.home.ConfirmBroadcastFunc = func(conf *types.BroadcastConfirmation) (*types.SubmitResult, error) {
		t.Fatal("an invalid completion must not be confirmed")
		return nil, nil
	}

	require.Nil(t, env.chain.Confirmer().Run(context.Background()))
	require.Nil(t, env.unconfirmed(t, "0xold"))

	resent := env.unconfirmed(t, "0xnew")
	require.NotNil(t, resent)
	require.Equal(t, types.TxStatusInitial, resent.Status)
	require.Equal(t, 1, resent.ResendCount)
}

func TestConfirmer_CompletedResendBudget(t *testing.T) {
	tests := []struct {
		name        string
		resendCount int
	}{
		{name: "limit reached", resendCount: 50},
		{name: "no waiting record", resendCount: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := getTestEnv(t)
			setTip(env, 200)
			builds := countBuilds(env)

			env.offer(t, &types.UnconfirmedTx{
				TxHash:      "0xcompleted",
				NerveTxHash: testNerveHash,
				TxType:      types.TxTypeChange,
				Status:      types.TxStatusCompleted,
				BlockHeight: 100,
				ResendCount: tc.resendCount,
				CreatedAt:   env.now.Add(-env.chain.cfg.ReceiptTimeoutPeriod() - time.Minute),
			})

			require.Nil(t, env.chain.Confirmer().Run(context.Background()))
			require.Nil(t, env.unconfirmed(t, "0xcompleted"))
			require.Equal(t, 0, *builds)
		})
	}
}

func TestConfirmer_FailedAndUnpackaged(t *testing.T) {
	tests := []struct {
		name string
		// register stores the waiting record of the change, 0xaaa has order 2.
		register  bool
		status    types.TxStatus
		from      string
		height    int64
		createdAt time.Duration
		sentByUs  bool
		kept      bool
		builds    int
	}{
		{
			name:     "next sender after the failed one resends",
			register: true,
			status:   types.TxStatusFailed,
			from:     "0xccc",
			height:   100,
			builds:   1,
		},
		{
			name:     "other member is the next sender",
			register: true,
			status:   types.TxStatusFailed,
			from:     "0xaaa",
			height:   100,
		},
		{
			name:      "no waiting record past the failed timeout",
			status:    types.TxStatusFailed,
			from:      "0xccc",
			height:    100,
			createdAt: -11 * time.Minute,
		},
		{
			name:      "no waiting record within the failed timeout",
			status:    types.TxStatusFailed,
			from:      "0xccc",
			height:    100,
			createdAt: -time.Minute,
			kept:      true,
		},
		{
			name:      "own transaction unpackaged for too long",
			register:  true,
			status:    types.TxStatusInitial,
			from:      "0xaaa",
			createdAt: -UnpackagedTimeout - time.Minute,
			sentByUs:  true,
			builds:    1,
		},
		{
			name:      "own transaction unpackaged for a short while",
			register:  true,
			status:    types.TxStatusInitial,
			from:      "0xaaa",
			createdAt: -time.Minute,
			sentByUs:  true,
			kept:      true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := getTestEnv(t)
			setTip(env, 200)
			builds := countBuilds(env)
			// The nonce of the old transaction is used, the resend is built from scratch.
			env.adapter.LatestNonceFunc = func(ctx context.Context, addr string) (uint64, error) { return 8, nil }

			req := &types.Request{Type: types.TxTypeChange, Change: testChangeRequest()}
			if tc.register {
				_, err := env.chain.orchestrator.register(req)
				require.Nil(t, err)
			}
			if tc.sentByUs {
				require.Nil(t, env.db.SaveSentTx("ganache1", testOutbound("0xold", req, big.NewInt(100)).Record))
			}

			env.offer(t, &types.UnconfirmedTx{
				TxHash:      "0xold",
				NerveTxHash: testNerveHash,
				TxType:      types.TxTypeChange,
				Status:      tc.status,
				From:        tc.from,
				BlockHeight: tc.height,
				CreatedAt:   env.now.Add(tc.createdAt),
			})

			require.Nil(t, env.chain.Confirmer().Run(context.Background()))
			require.Equal(t, tc.kept, env.unconfirmed(t, "0xold") != nil)
			require.Equal(t, tc.builds, *builds)

			if tc.builds > 0 {
				resent := env.unconfirmed(t, "0xbuild1")
				require.NotNil(t, resent)
				require.Equal(t, 1, resent.ResendCount)
				require.True(t, env.waitingTx(t).Sent)
			}
		})
	}
}
