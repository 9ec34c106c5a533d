package client

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/types"
	"github.com/stretchr/testify/require"
)

// homeService mimics the rpc api of the home chain node.
type homeService struct {
	deposits map[string]bool
}

func (s *homeService) Version() string {
	return "1.0.0"
}

func (s *homeService) CurrentBankOrder(chain string) map[string]int {
	return map[string]int{"0xaaa": 1, "0xbbb": 2}
}

func (s *homeService) UsdPrice(asset string) decimal.Decimal {
	return decimal.RequireFromString("1523.25")
}

func (s *homeService) SubmitDeposit(info *types.DepositInfo) (string, error) {
	if s.deposits[info.TxHash] {
		return "", errors.New("deposit already exists")
	}
	if info.Amount == "0" {
		return "", errors.New("invalid amount")
	}

	s.deposits[info.TxHash] = true
	return "nerve-" + info.TxHash, nil
}

func getTestClient(t *testing.T) Client {
	server := rpc.NewServer()
	require.Nil(t, server.RegisterName("nerve", &homeService{deposits: make(map[string]bool)}))
	t.Cleanup(server.Stop)

	return NewClientWithRpc(rpc.DialInProc(server))
}

func TestSubmitOutcomes(t *testing.T) {
	c := getTestClient(t)

	version, err := c.GetVersion()
	require.Nil(t, err)
	require.Equal(t, "1.0.0", version)

	result, err := c.SubmitDeposit(&types.DepositInfo{Chain: "ganache1", TxHash: "0x1", Amount: "10"})
	require.Nil(t, err)
	require.Equal(t, types.OutcomeConfirmed, result.Outcome)
	require.Equal(t, "nerve-0x1", result.NerveTxHash)
	require.True(t, result.Done())

	// A second member submitting the same deposit is a success as well.
	result, err = c.SubmitDeposit(&types.DepositInfo{Chain: "ganache1", TxHash: "0x1", Amount: "10"})
	require.Nil(t, err)
	require.Equal(t, types.OutcomeAlreadyConfirmed, result.Outcome)
	require.True(t, result.Done())

	result, err = c.SubmitDeposit(&types.DepositInfo{Chain: "ganache1", TxHash: "0x2", Amount: "0"})
	require.Nil(t, err)
	require.Equal(t, types.OutcomeFailed, result.Outcome)
	require.False(t, result.Done())
}

func TestBridgeQueries(t *testing.T) {
	c := getTestClient(t)

	order, err := c.CurrentBankOrder("ganache1")
	require.Nil(t, err)
	require.Equal(t, map[string]int{"0xaaa": 1, "0xbbb": 2}, order)

	price, err := c.UsdPrice("ETH")
	require.Nil(t, err)
	require.True(t, decimal.RequireFromString("1523.25").Equal(price))

	// Methods the service does not have fail with an rpc error.
	_, err = c.HomeChainHeight()
	require.NotNil(t, err)
}

func TestNotConnected(t *testing.T) {
	c := NewClient("http://localhost:1")

	_, err := c.SubmitDeposit(&types.DepositInfo{})
	require.Equal(t, ErrHomeNotConnected, err)
	require.False(t, c.IsRunning())
}
