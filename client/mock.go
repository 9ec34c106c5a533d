package client

import (
	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/types"
)

type MockClient struct {
	TryDialFunc                  func()
	GetVersionFunc               func() (string, error)
	IsRunningFunc                func() bool
	IsBankMemberFunc             func(chain string) (bool, error)
	NodeAddressFunc              func(chain string) (string, error)
	CurrentBankOrderFunc         func(chain string) (map[string]int, error)
	ByzantineThresholdFunc       func(chain string, memberCount int) (int, error)
	UsdPriceFunc                 func(asset string) (decimal.Decimal, error)
	WithdrawFeeFunc              func(chain, nerveTxHash string) (*types.WithdrawFee, error)
	HomeChainHeightFunc          func() (int64, error)
	IsAlreadySkippedFunc         func(chain, nerveTxHash string) (bool, error)
	IsAlreadyConfirmedOnHomeFunc func(chain, nerveTxHash string) (bool, error)
	SubmitDepositFunc            func(info *types.DepositInfo) (*types.SubmitResult, error)
	ConfirmBroadcastFunc         func(conf *types.BroadcastConfirmation) (*types.SubmitResult, error)
	RecordWithdrawFeeFunc        func(record *types.WithdrawFeeRecord) (*types.SubmitResult, error)
}

func (c *MockClient) TryDial() {
	if c.TryDialFunc != nil {
		c.TryDialFunc()
	}
}

func (c *MockClient) GetVersion() (string, error) {
	if c.GetVersionFunc != nil {
		return c.GetVersionFunc()
	}

	return "", nil
}

func (c *MockClient) IsRunning() bool {
	if c.IsRunningFunc != nil {
		return c.IsRunningFunc()
	}

	return true
}

func (c *MockClient) IsBankMember(chain string) (bool, error) {
	if c.IsBankMemberFunc != nil {
		return c.IsBankMemberFunc(chain)
	}

	return true, nil
}

func (c *MockClient) NodeAddress(chain string) (string, error) {
	if c.NodeAddressFunc != nil {
		return c.NodeAddressFunc(chain)
	}

	return "", nil
}

func (c *MockClient) CurrentBankOrder(chain string) (map[string]int, error) {
	if c.CurrentBankOrderFunc != nil {
		return c.CurrentBankOrderFunc(chain)
	}

	return map[string]int{}, nil
}

func (c *MockClient) ByzantineThreshold(chain string, memberCount int) (int, error) {
	if c.ByzantineThresholdFunc != nil {
		return c.ByzantineThresholdFunc(chain, memberCount)
	}

	return memberCount*66/100 + 1, nil
}

func (c *MockClient) UsdPrice(asset string) (decimal.Decimal, error) {
	if c.UsdPriceFunc != nil {
		return c.UsdPriceFunc(asset)
	}

	return decimal.Zero, nil
}

func (c *MockClient) WithdrawFee(chain, nerveTxHash string) (*types.WithdrawFee, error) {
	if c.WithdrawFeeFunc != nil {
		return c.WithdrawFeeFunc(chain, nerveTxHash)
	}

	return nil, nil
}

func (c *MockClient) HomeChainHeight() (int64, error) {
	if c.HomeChainHeightFunc != nil {
		return c.HomeChainHeightFunc()
	}

	return 0, nil
}

func (c *MockClient) IsAlreadySkipped(chain, nerveTxHash string) (bool, error) {
	if c.IsAlreadySkippedFunc != nil {
		return c.IsAlreadySkippedFunc(chain, nerveTxHash)
	}

	return false, nil
}

func (c *MockClient) IsAlreadyConfirmedOnHome(chain, nerveTxHash string) (bool, error) {
	if c.IsAlreadyConfirmedOnHomeFunc != nil {
		return c.IsAlreadyConfirmedOnHomeFunc(chain, nerveTxHash)
	}

	return false, nil
}

func (c *MockClient) SubmitDeposit(info *types.DepositInfo) (*types.SubmitResult, error) {
	if c.SubmitDepositFunc != nil {
		return c.SubmitDepositFunc(info)
	}

	return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
}

func (c *MockClient) ConfirmBroadcast(conf *types.BroadcastConfirmation) (*types.SubmitResult, error) {
	if c.ConfirmBroadcastFunc != nil {
		return c.ConfirmBroadcastFunc(conf)
	}

	return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
}

func (c *MockClient) RecordWithdrawFee(record *types.WithdrawFeeRecord) (*types.SubmitResult, error) {
	if c.RecordWithdrawFeeFunc != nil {
		return c.RecordWithdrawFeeFunc(record)
	}

	return &types.SubmitResult{Outcome: types.OutcomeConfirmed}, nil
}
