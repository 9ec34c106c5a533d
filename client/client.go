package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
)

const (
	RetryTime   = 10 * time.Second
	CallTimeout = 15 * time.Second
)

var (
	ErrHomeNotConnected = errors.New("home chain node is not connected")
)

// Bridge is the view of the home chain and the bank this engine works with.
type Bridge interface {
	IsRunning() bool
	IsBankMember(chain string) (bool, error)
	// NodeAddress is the address of this node on the external chain.
	NodeAddress(chain string) (string, error)
	// CurrentBankOrder maps the address of each bank member on the chain to its global order.
	CurrentBankOrder(chain string) (map[string]int, error)
	ByzantineThreshold(chain string, memberCount int) (int, error)
	UsdPrice(asset string) (decimal.Decimal, error)
	WithdrawFee(chain, nerveTxHash string) (*types.WithdrawFee, error)
	HomeChainHeight() (int64, error)
	IsAlreadySkipped(chain, nerveTxHash string) (bool, error)
	IsAlreadyConfirmedOnHome(chain, nerveTxHash string) (bool, error)
}

// Callbacks deliver confirmed external transactions to the home chain.
type Callbacks interface {
	SubmitDeposit(info *types.DepositInfo) (*types.SubmitResult, error)
	ConfirmBroadcast(conf *types.BroadcastConfirmation) (*types.SubmitResult, error)
	RecordWithdrawFee(record *types.WithdrawFeeRecord) (*types.SubmitResult, error)
}

// A client that connects to the home chain node.
type Client interface {
	Bridge
	Callbacks

	TryDial()
	GetVersion() (string, error)
}

type DefaultClient struct {
	client *rpc.Client
	url    string
}

func NewClient(url string) Client {
	return &DefaultClient{
		url: url,
	}
}

// NewClientWithRpc creates a client on an already connected rpc client.
func NewClientWithRpc(client *rpc.Client) Client {
	return &DefaultClient{
		client: client,
	}
}

func (c *DefaultClient) TryDial() {
	log.Info("Trying to dial home chain node")

	for {
		log.Info("Dialing...", c.url)
		var err error
		c.client, err = rpc.DialContext(context.Background(), c.url)
		if err != nil {
			log.Error("Cannot connect to home chain node err = ", err)
			time.Sleep(RetryTime)
			continue
		}

		_, err = c.GetVersion()
		if err != nil {
			log.Error("Cannot get home chain node version err = ", err)
			time.Sleep(RetryTime)
			continue
		}

		break
	}

	log.Info("Home chain node is connected")
}

func (c *DefaultClient) call(result interface{}, method string, args ...interface{}) error {
	if c.client == nil {
		return ErrHomeNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()

	return c.client.CallContext(ctx, result, method, args...)
}

func (c *DefaultClient) GetVersion() (string, error) {
	var version string
	err := c.call(&version, "nerve_version")
	return version, err
}

func (c *DefaultClient) IsRunning() bool {
	var running bool
	if err := c.call(&running, "nerve_isRunning"); err != nil {
		log.Verbose("Cannot get running state of home chain node, err = ", err)
		return false
	}

	return running
}

func (c *DefaultClient) IsBankMember(chain string) (bool, error) {
	var member bool
	err := c.call(&member, "nerve_isBankMember", chain)
	return member, err
}

func (c *DefaultClient) NodeAddress(chain string) (string, error) {
	var addr string
	err := c.call(&addr, "nerve_nodeAddress", chain)
	return addr, err
}

func (c *DefaultClient) CurrentBankOrder(chain string) (map[string]int, error) {
	order := make(map[string]int)
	err := c.call(&order, "nerve_currentBankOrder", chain)
	return order, err
}

func (c *DefaultClient) ByzantineThreshold(chain string, memberCount int) (int, error) {
	var threshold int
	err := c.call(&threshold, "nerve_byzantineThreshold", chain, memberCount)
	return threshold, err
}

func (c *DefaultClient) UsdPrice(asset string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.call(&price, "nerve_usdPrice", asset)
	return price, err
}

func (c *DefaultClient) WithdrawFee(chain, nerveTxHash string) (*types.WithdrawFee, error) {
	fee := &types.WithdrawFee{}
	if err := c.call(fee, "nerve_withdrawFee", chain, nerveTxHash); err != nil {
		return nil, err
	}

	return fee, nil
}

func (c *DefaultClient) HomeChainHeight() (int64, error) {
	var height int64
	err := c.call(&height, "nerve_height")
	return height, err
}

func (c *DefaultClient) IsAlreadySkipped(chain, nerveTxHash string) (bool, error) {
	var skipped bool
	err := c.call(&skipped, "nerve_isAlreadySkipped", chain, nerveTxHash)
	return skipped, err
}

func (c *DefaultClient) IsAlreadyConfirmedOnHome(chain, nerveTxHash string) (bool, error) {
	var confirmed bool
	err := c.call(&confirmed, "nerve_isConfirmed", chain, nerveTxHash)
	return confirmed, err
}

func (c *DefaultClient) SubmitDeposit(info *types.DepositInfo) (*types.SubmitResult, error) {
	log.Verbose("Submitting deposit ", info.TxHash, " of chain ", info.Chain, " to home chain...")
	return c.submit("nerve_submitDeposit", info)
}

func (c *DefaultClient) ConfirmBroadcast(conf *types.BroadcastConfirmation) (*types.SubmitResult, error) {
	log.Verbose("Confirming ", conf.TxType, " ", conf.NerveTxHash, " of chain ", conf.Chain, " to home chain...")
	return c.submit("nerve_confirmBroadcast", conf)
}

func (c *DefaultClient) RecordWithdrawFee(record *types.WithdrawFeeRecord) (*types.SubmitResult, error) {
	log.Verbose("Recording withdrawal fee ", record.TxHash, " of chain ", record.Chain, " to home chain...")
	return c.submit("nerve_recordWithdrawFee", record)
}

// submit sends a submission and turns the answer of the home chain into a typed outcome. The
// home chain answers with the hash of its transaction, or an error when it already holds the
// submission.
func (c *DefaultClient) submit(method string, arg interface{}) (*types.SubmitResult, error) {
	var hash string
	err := c.call(&hash, method, arg)
	return toSubmitResult(hash, err)
}

func toSubmitResult(hash string, err error) (*types.SubmitResult, error) {
	if err == nil {
		if hash == "" {
			return &types.SubmitResult{Outcome: types.OutcomePending}, nil
		}
		return &types.SubmitResult{Outcome: types.OutcomeConfirmed, NerveTxHash: hash}, nil
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		// Transport error, nothing is known about the submission.
		return nil, err
	}

	msg := strings.ToLower(rpcErr.Error())
	if strings.Contains(msg, "already exists") || strings.Contains(msg, "already confirmed") {
		return &types.SubmitResult{Outcome: types.OutcomeAlreadyConfirmed, Reason: rpcErr.Error()}, nil
	}

	return &types.SubmitResult{Outcome: types.OutcomeFailed, Reason: rpcErr.Error()}, nil
}
