package chains

import (
	"context"
	"math/big"

	"github.com/sisu-network/hbridge/types"
)

type MockAdapter struct {
	ChainFunc          func() string
	HeightFunc         func(ctx context.Context) (int64, error)
	BlockAtFunc        func(ctx context.Context, height int64) (*types.Block, error)
	HeaderAtFunc       func(ctx context.Context, height int64) (*types.Header, error)
	TxByHashFunc       func(ctx context.Context, hash string) (*types.ChainTx, error)
	ReceiptFunc        func(ctx context.Context, hash string) (*types.Receipt, error)
	CurrentFeeRateFunc func(ctx context.Context) (*big.Int, error)
	CallViewFunc       func(ctx context.Context, contract string, data []byte) ([]byte, error)
	SimulateFunc       func(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error)
	LatestNonceFunc    func(ctx context.Context, addr string) (uint64, error)
	BroadcastFunc      func(ctx context.Context, raw []byte) (string, error)
	CheckRpcsFunc      func(ctx context.Context) bool
}

func (m *MockAdapter) Chain() string {
	if m.ChainFunc != nil {
		return m.ChainFunc()
	}

	return "ganache1"
}

func (m *MockAdapter) Height(ctx context.Context) (int64, error) {
	if m.HeightFunc != nil {
		return m.HeightFunc(ctx)
	}

	return 0, nil
}

func (m *MockAdapter) BlockAt(ctx context.Context, height int64) (*types.Block, error) {
	if m.BlockAtFunc != nil {
		return m.BlockAtFunc(ctx, height)
	}

	return nil, nil
}

func (m *MockAdapter) HeaderAt(ctx context.Context, height int64) (*types.Header, error) {
	if m.HeaderAtFunc != nil {
		return m.HeaderAtFunc(ctx, height)
	}

	return nil, nil
}

func (m *MockAdapter) TxByHash(ctx context.Context, hash string) (*types.ChainTx, error) {
	if m.TxByHashFunc != nil {
		return m.TxByHashFunc(ctx, hash)
	}

	return nil, nil
}

func (m *MockAdapter) Receipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if m.ReceiptFunc != nil {
		return m.ReceiptFunc(ctx, hash)
	}

	return nil, nil
}

func (m *MockAdapter) CurrentFeeRate(ctx context.Context) (*big.Int, error) {
	if m.CurrentFeeRateFunc != nil {
		return m.CurrentFeeRateFunc(ctx)
	}

	return big.NewInt(0), nil
}

func (m *MockAdapter) CallView(ctx context.Context, contract string, data []byte) ([]byte, error) {
	if m.CallViewFunc != nil {
		return m.CallViewFunc(ctx, contract, data)
	}

	return nil, nil
}

func (m *MockAdapter) Simulate(ctx context.Context, req *types.CallRequest) (*types.SimulateResult, error) {
	if m.SimulateFunc != nil {
		return m.SimulateFunc(ctx, req)
	}

	return &types.SimulateResult{Success: true}, nil
}

func (m *MockAdapter) LatestNonce(ctx context.Context, addr string) (uint64, error) {
	if m.LatestNonceFunc != nil {
		return m.LatestNonceFunc(ctx, addr)
	}

	return 0, nil
}

func (m *MockAdapter) Broadcast(ctx context.Context, raw []byte) (string, error) {
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, raw)
	}

	return "", nil
}

func (m *MockAdapter) CheckRpcs(ctx context.Context) bool {
	if m.CheckRpcsFunc != nil {
		return m.CheckRpcsFunc(ctx)
	}

	return false
}

type MockFamily struct {
	NativeDecimalsFunc       func() int
	AnalyzeFunc              func(ctx context.Context, block *types.Block) ([]*types.UnconfirmedTx, error)
	ValidateFunc             func(ctx context.Context, req *types.Request) error
	EstimateWithdrawCostFunc func(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error)
	BuildFunc                func(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error)
	IsCompletedFunc          func(ctx context.Context, nerveTxHash string) (bool, error)
	BuildReplacementFunc     func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error)
	BuildNonceClearFunc      func(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error)
	MultisigAddressFunc      func() string
	UpdateMultisigFunc       func(current string, history []string)
}

func (m *MockFamily) NativeDecimals() int {
	if m.NativeDecimalsFunc != nil {
		return m.NativeDecimalsFunc()
	}

	return 18
}

func (m *MockFamily) Analyze(ctx context.Context, block *types.Block) ([]*types.UnconfirmedTx, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, block)
	}

	return nil, nil
}

func (m *MockFamily) Validate(ctx context.Context, req *types.Request) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, req)
	}

	return nil
}

func (m *MockFamily) EstimateWithdrawCost(ctx context.Context, req *types.WithdrawRequest, feeRate *big.Int) (*big.Int, error) {
	if m.EstimateWithdrawCostFunc != nil {
		return m.EstimateWithdrawCostFunc(ctx, req, feeRate)
	}

	return big.NewInt(0), nil
}

func (m *MockFamily) Build(ctx context.Context, req *types.Request, feeRate *big.Int) (*types.OutboundTx, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, req, feeRate)
	}

	return nil, nil
}

func (m *MockFamily) IsCompleted(ctx context.Context, nerveTxHash string) (bool, error) {
	if m.IsCompletedFunc != nil {
		return m.IsCompletedFunc(ctx, nerveTxHash)
	}

	return false, nil
}

func (m *MockFamily) BuildReplacement(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	if m.BuildReplacementFunc != nil {
		return m.BuildReplacementFunc(ctx, sent, feeRate)
	}

	return nil, nil
}

func (m *MockFamily) BuildNonceClear(ctx context.Context, sent *types.SentTxRecord, feeRate *big.Int) (*types.OutboundTx, error) {
	if m.BuildNonceClearFunc != nil {
		return m.BuildNonceClearFunc(ctx, sent, feeRate)
	}

	return nil, nil
}

func (m *MockFamily) MultisigAddress() string {
	if m.MultisigAddressFunc != nil {
		return m.MultisigAddressFunc()
	}

	return ""
}

func (m *MockFamily) UpdateMultisig(current string, history []string) {
	if m.UpdateMultisigFunc != nil {
		m.UpdateMultisigFunc(current, history)
	}
}
