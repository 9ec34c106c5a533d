package database

import "github.com/sisu-network/hbridge/types"

type MockDb struct {
	InitFunc                  func() error
	SaveHeaderFunc            func(chain string, header *types.Header) error
	GetLatestHeaderFunc       func(chain string) (*types.Header, error)
	DeleteHeaderFunc          func(chain string, height int64) error
	PruneHeadersFunc          func(chain string, belowHeight int64) error
	SaveTxFunc                func(chain string, tx *types.StoredTx) error
	GetTxFunc                 func(chain, txHash string) (*types.StoredTx, error)
	GetTxsByNerveHashFunc     func(chain, nerveTxHash string) ([]*types.StoredTx, error)
	SaveSentTxFunc            func(chain string, record *types.SentTxRecord) error
	GetSentTxFunc             func(chain, nerveTxHash string) (*types.SentTxRecord, error)
	DeleteSentTxFunc          func(chain, nerveTxHash string) error
	SaveMultisigAddressFunc   func(chain, address string, height int64) error
	LoadMultisigAddressesFunc func(chain string) ([]string, error)
}

func (mock *MockDb) Init() error {
	if mock.InitFunc != nil {
		return mock.InitFunc()
	}

	return nil
}

func (mock *MockDb) Close() error {
	return nil
}

func (mock *MockDb) SaveHeader(chain string, header *types.Header) error {
	if mock.SaveHeaderFunc != nil {
		return mock.SaveHeaderFunc(chain, header)
	}

	return nil
}

func (mock *MockDb) GetLatestHeader(chain string) (*types.Header, error) {
	if mock.GetLatestHeaderFunc != nil {
		return mock.GetLatestHeaderFunc(chain)
	}

	return nil, nil
}

func (mock *MockDb) DeleteHeader(chain string, height int64) error {
	if mock.DeleteHeaderFunc != nil {
		return mock.DeleteHeaderFunc(chain, height)
	}

	return nil
}

func (mock *MockDb) PruneHeaders(chain string, belowHeight int64) error {
	if mock.PruneHeadersFunc != nil {
		return mock.PruneHeadersFunc(chain, belowHeight)
	}

	return nil
}

func (mock *MockDb) SaveTx(chain string, tx *types.StoredTx) error {
	if mock.SaveTxFunc != nil {
		return mock.SaveTxFunc(chain, tx)
	}

	return nil
}

func (mock *MockDb) GetTx(chain, txHash string) (*types.StoredTx, error) {
	if mock.GetTxFunc != nil {
		return mock.GetTxFunc(chain, txHash)
	}

	return nil, nil
}

func (mock *MockDb) GetTxsByNerveHash(chain, nerveTxHash string) ([]*types.StoredTx, error) {
	if mock.GetTxsByNerveHashFunc != nil {
		return mock.GetTxsByNerveHashFunc(chain, nerveTxHash)
	}

	return nil, nil
}

func (mock *MockDb) SaveSentTx(chain string, record *types.SentTxRecord) error {
	if mock.SaveSentTxFunc != nil {
		return mock.SaveSentTxFunc(chain, record)
	}

	return nil
}

func (mock *MockDb) GetSentTx(chain, nerveTxHash string) (*types.SentTxRecord, error) {
	if mock.GetSentTxFunc != nil {
		return mock.GetSentTxFunc(chain, nerveTxHash)
	}

	return nil, nil
}

func (mock *MockDb) DeleteSentTx(chain, nerveTxHash string) error {
	if mock.DeleteSentTxFunc != nil {
		return mock.DeleteSentTxFunc(chain, nerveTxHash)
	}

	return nil
}

func (mock *MockDb) SaveMultisigAddress(chain, address string, height int64) error {
	if mock.SaveMultisigAddressFunc != nil {
		return mock.SaveMultisigAddressFunc(chain, address, height)
	}

	return nil
}

func (mock *MockDb) LoadMultisigAddresses(chain string) ([]string, error) {
	if mock.LoadMultisigAddressesFunc != nil {
		return mock.LoadMultisigAddressesFunc(chain)
	}

	return nil, nil
}
