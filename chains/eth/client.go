package eth

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/lib/log"
)

const (
	RpcTimeOut = time.Second * 15
)

var (
	RpcCheckInterval = time.Minute * 30
)

type NoHealthyClientErr struct {
	chain string
}

func NewNoHealthyClientErr(chain string) error {
	return &NoHealthyClientErr{chain: chain}
}

func (e *NoHealthyClientErr) Error() string {
	return fmt.Sprintf("No healthy client for chain %s", e.chain)
}

// A wrapper around eth.client so that we can mock in tests.
type EthClient interface {
	Start()
	// CheckRpcs re-dials all rpcs and keeps the healthy ones. It returns false if another check is
	// running or no rpc is healthy.
	CheckRpcs(ctx context.Context) bool

	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error)
}

type defaultEthClient struct {
	chain string

	clients   []*ethclient.Client
	healthies []bool
	rpcs      []string
	allRpcs   []string

	lock     *sync.RWMutex
	swapLock *sync.Mutex
}

func NewEthClients(cfg config.Chain) EthClient {
	return &defaultEthClient{
		chain:    cfg.Chain,
		allRpcs:  cfg.Rpcs,
		lock:     &sync.RWMutex{},
		swapLock: &sync.Mutex{},
	}
}

func (c *defaultEthClient) Start() {
	c.updateRpcs(context.Background())
	go c.loopCheck()
}

func (c *defaultEthClient) loopCheck() {
	for {
		time.Sleep(RpcCheckInterval)
		c.CheckRpcs(context.Background())
	}
}

func (c *defaultEthClient) CheckRpcs(ctx context.Context) bool {
	if !c.swapLock.TryLock() {
		return false
	}
	defer c.swapLock.Unlock()

	return c.updateRpcs(ctx) > 0
}

func (c *defaultEthClient) updateRpcs(ctx context.Context) int {
	c.lock.RLock()
	oldClients := c.clients
	c.lock.RUnlock()

	rpcs, clients, healthies := c.getRpcsHealthiness(ctx, c.allRpcs)
	log.Infof("Chain %s has %d healthy rpcs out of %d", c.chain, len(rpcs), len(c.allRpcs))

	// Close all the old clients
	c.lock.Lock()
	for _, client := range oldClients {
		client.Close()
	}
	c.rpcs, c.clients, c.healthies = rpcs, clients, healthies
	c.lock.Unlock()

	return len(clients)
}

func (c *defaultEthClient) getRpcsHealthiness(ctx context.Context, allRpcs []string) ([]string, []*ethclient.Client, []bool) {
	clients := make([]*ethclient.Client, 0)
	rpcs := make([]string, 0)
	healthies := make([]bool, 0)

	for _, rpc := range allRpcs {
		client, err := ethclient.DialContext(ctx, rpc)
		if err != nil {
			log.Warnf("Cannot dial %s for chain %s, err = %v", rpc, c.chain, err)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, RpcTimeOut)
		_, err = client.BlockNumber(checkCtx)
		cancel()
		if err != nil {
			log.Warnf("Rpc %s of chain %s is not healthy, err = %v", rpc, c.chain, err)
			client.Close()
			continue
		}

		clients = append(clients, client)
		rpcs = append(rpcs, rpc)
		healthies = append(healthies, true)
	}

	return rpcs, clients, healthies
}

func (c *defaultEthClient) shuffle() ([]*ethclient.Client, []bool, []string) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	n := len(c.clients)

	clients := make([]*ethclient.Client, n)
	healthy := make([]bool, n)
	rpcs := make([]string, n)

	copy(clients, c.clients)
	copy(healthy, c.healthies)
	copy(rpcs, c.rpcs)

	rand.Shuffle(n, func(x, y int) {
		clients[x], clients[y] = clients[y], clients[x]
		healthy[x], healthy[y] = healthy[y], healthy[x]
		rpcs[x], rpcs[y] = rpcs[y], rpcs[x]
	})

	return clients, healthy, rpcs
}

func (c *defaultEthClient) getHealthyClient() (*ethclient.Client, string) {
	// Shuffle rpcs so that we will use different healthy rpc
	clients, healthies, rpcs := c.shuffle()
	for i, healthy := range healthies {
		if healthy {
			return clients[i], rpcs[i]
		}
	}

	return nil, ""
}

func execute[T any](c *defaultEthClient, f func(client *ethclient.Client, rpc string) (T, error)) (T, error) {
	client, rpc := c.getHealthyClient()
	if client == nil {
		var empty T
		return empty, NewNoHealthyClientErr(c.chain)
	}

	return f(client, rpc)
}

func (c *defaultEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

func (c *defaultEthClient) BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*ethtypes.Block, error) {
		return client.BlockByNumber(ctx, number)
	})
}

func (c *defaultEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*ethtypes.Header, error) {
		return client.HeaderByNumber(ctx, number)
	})
}

type txLookup struct {
	tx        *ethtypes.Transaction
	isPending bool
}

func (c *defaultEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	ret, err := execute(c, func(client *ethclient.Client, rpc string) (*txLookup, error) {
		tx, isPending, err := client.TransactionByHash(ctx, hash)
		return &txLookup{tx: tx, isPending: isPending}, err
	})
	if err != nil {
		return nil, false, err
	}

	return ret.tx, ret.isPending, nil
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}

func (c *defaultEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (c *defaultEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (c *defaultEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	_, err := execute(c, func(client *ethclient.Client, rpc string) (int, error) {
		return 0, client.SendTransaction(ctx, tx)
	})

	return err
}

func (c *defaultEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return execute(c, func(client *ethclient.Client, rpc string) ([]byte, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
}

func (c *defaultEthClient) BalanceAt(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		balance, err := client.BalanceAt(ctx, from, block)
		if err == nil && balance != nil && balance.Sign() == 0 {
			log.Verbosef("Balance is 0 for using URL %s", rpc)
		}

		return balance, err
	})
}
