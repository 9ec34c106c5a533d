package btc

import (
	"context"
)

type MockClient struct {
	BlockCountFunc         func(ctx context.Context) (int64, error)
	BlockHashFunc          func(ctx context.Context, height int64) (string, error)
	BlockHeaderFunc        func(ctx context.Context, hash string) (*BlockHeader, error)
	BlockFunc              func(ctx context.Context, hash string) (*Block, error)
	RawTransactionFunc     func(ctx context.Context, txid string) (*RawTx, error)
	EstimateSmartFeeFunc   func(ctx context.Context, target int) (*SmartFee, error)
	TestMempoolAcceptFunc  func(ctx context.Context, raw []byte) (*MempoolAccept, error)
	SendRawTransactionFunc func(ctx context.Context, raw []byte) (string, error)
	ListUnspentFunc        func(ctx context.Context, address string) ([]*Unspent, error)
}

func (m *MockClient) BlockCount(ctx context.Context) (int64, error) {
	if m.BlockCountFunc != nil {
		return m.BlockCountFunc(ctx)
	}

	return 0, nil
}

func (m *MockClient) BlockHash(ctx context.Context, height int64) (string, error) {
	if m.BlockHashFunc != nil {
		return m.BlockHashFunc(ctx, height)
	}

	return "", nil
}

func (m *MockClient) BlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	if m.BlockHeaderFunc != nil {
		return m.BlockHeaderFunc(ctx, hash)
	}

	return &BlockHeader{Hash: hash}, nil
}

func (m *MockClient) Block(ctx context.Context, hash string) (*Block, error) {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, hash)
	}

	return &Block{BlockHeader: BlockHeader{Hash: hash}}, nil
}

func (m *MockClient) RawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	if m.RawTransactionFunc != nil {
		return m.RawTransactionFunc(ctx, txid)
	}

	return nil, nil
}

func (m *MockClient) EstimateSmartFee(ctx context.Context, target int) (*SmartFee, error) {
	if m.EstimateSmartFeeFunc != nil {
		return m.EstimateSmartFeeFunc(ctx, target)
	}

	return &SmartFee{}, nil
}

func (m *MockClient) TestMempoolAccept(ctx context.Context, raw []byte) (*MempoolAccept, error) {
	if m.TestMempoolAcceptFunc != nil {
		return m.TestMempoolAcceptFunc(ctx, raw)
	}

	return &MempoolAccept{Allowed: true}, nil
}

func (m *MockClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	if m.SendRawTransactionFunc != nil {
		return m.SendRawTransactionFunc(ctx, raw)
	}

	return "", nil
}

func (m *MockClient) ListUnspent(ctx context.Context, address string) ([]*Unspent, error) {
	if m.ListUnspentFunc != nil {
		return m.ListUnspentFunc(ctx, address)
	}

	return []*Unspent{}, nil
}
