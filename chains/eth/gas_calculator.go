package eth

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/sisu-network/lib/log"
)

const (
	DefaultGasPrice = int64(20_000_000_000) // 20 gwei
)

var (
	GasPriceUpdateInterval = time.Second * 60
)

// gasCalculator caches the network gas price so that every task of a cycle does not hit the rpc.
type gasCalculator struct {
	chain                  string
	client                 EthClient
	gasPrice               int64
	gasPriceUpdateInterval time.Duration

	lastUpdateGasPrice time.Time
	lock               *sync.RWMutex
}

func newGasCalculator(chain string, client EthClient, gasPriceUpdateInterval time.Duration) *gasCalculator {
	return &gasCalculator{
		chain:                  chain,
		client:                 client,
		gasPriceUpdateInterval: gasPriceUpdateInterval,
		lock:                   &sync.RWMutex{},
	}
}

// GetGasPrice returns the latest known network gas price. The returned error is only set when the
// price has never been fetched.
func (g *gasCalculator) GetGasPrice(ctx context.Context) (*big.Int, error) {
	g.lock.RLock()
	lastUpdate := g.lastUpdateGasPrice
	g.lock.RUnlock()

	var err error
	if time.Now().After(lastUpdate.Add(g.gasPriceUpdateInterval)) {
		err = g.updateGasPrice(ctx)
	}

	g.lock.RLock()
	defer g.lock.RUnlock()

	if g.gasPrice == 0 {
		if err == nil {
			return big.NewInt(DefaultGasPrice), nil
		}
		return nil, err
	}

	return big.NewInt(g.gasPrice), nil
}

func (g *gasCalculator) updateGasPrice(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, RpcTimeOut)
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	cancel()

	if err != nil || gasPrice == nil {
		log.Errorf("Failed to get gas price for chain %s, err = %v", g.chain, err)
		return err
	}

	g.lock.Lock()
	g.gasPrice = gasPrice.Int64()
	g.lastUpdateGasPrice = time.Now()
	g.lock.Unlock()

	return nil
}
