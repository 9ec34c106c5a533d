package core

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/shopspring/decimal"
	"github.com/sisu-network/hbridge/chains"
	"github.com/sisu-network/hbridge/client"
	"github.com/sisu-network/hbridge/config"
	"github.com/sisu-network/hbridge/database"
	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/lib/log"
	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/atomic"
)

const (
	HeaderCacheSize = 256
)

// PriceSource returns the USD price of an asset.
type PriceSource interface {
	UsdPrice(asset string) (decimal.Decimal, error)
}

// Chain is the state of the bridge on one external chain. Every task of the chain works on its
// own Chain and nothing is shared between chains except the databases.
type Chain struct {
	cfg       config.Chain
	bridgeCfg *config.Bridge

	adapter chains.Adapter
	family  chains.Family
	db      database.Database
	home    client.Client
	prices  PriceSource
	metrics *metrics.Metrics

	unconfirmed *database.Queue[types.UnconfirmedTx]
	waiting     *database.Queue[types.WaitingTx]

	headerLock        sync.Mutex
	headers           *lru.Cache
	lastHeader        *types.Header
	firstCycle        bool
	rpcAvailable      *atomic.Bool
	maxObservedHeight *atomic.Int64
	pacer             *scanPacer

	scanner      *Scanner
	rpcMonitor   *RpcMonitor
	confirmer    *Confirmer
	coordinator  *WaitingCoordinator
	resender     *Resender
	orchestrator *Orchestrator

	now func() time.Time
}

func NewChain(
	cfg config.Chain,
	bridgeCfg *config.Bridge,
	adapter chains.Adapter,
	family chains.Family,
	db database.Database,
	queueDb *leveldb.DB,
	home client.Client,
	prices PriceSource,
	m *metrics.Metrics,
) *Chain {
	c := &Chain{
		cfg:               cfg,
		bridgeCfg:         bridgeCfg,
		adapter:           adapter,
		family:            family,
		db:                db,
		home:              home,
		prices:            prices,
		metrics:           m,
		unconfirmed:       database.NewQueue[types.UnconfirmedTx](queueDb, cfg.Chain, "unconfirmed"),
		waiting:           database.NewQueue[types.WaitingTx](queueDb, cfg.Chain, "waiting"),
		headers:           lru.New(HeaderCacheSize),
		firstCycle:        true,
		rpcAvailable:      atomic.NewBool(true),
		maxObservedHeight: atomic.NewInt64(0),
		pacer:             newScanPacer(cfg.ScanPeriod()),
		now:               time.Now,
	}

	c.scanner = &Scanner{c: c}
	c.rpcMonitor = &RpcMonitor{c: c}
	c.resender = &Resender{c: c}
	c.orchestrator = &Orchestrator{c: c}
	c.confirmer = &Confirmer{c: c}
	c.coordinator = &WaitingCoordinator{c: c}

	return c
}

// Init rehydrates the queues and the multisig history. Consumers of the queues block until it is
// done.
func (c *Chain) Init() error {
	if err := c.unconfirmed.Load(); err != nil {
		return fmt.Errorf("cannot load unconfirmed queue of chain %s: %w", c.cfg.Chain, err)
	}
	if err := c.waiting.Load(); err != nil {
		return fmt.Errorf("cannot load waiting queue of chain %s: %w", c.cfg.Chain, err)
	}

	history, err := c.db.LoadMultisigAddresses(c.cfg.Chain)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		c.family.UpdateMultisig(history[len(history)-1], history)
	}

	log.Infof("%s: loaded %d unconfirmed and %d waiting txs", c.cfg.Chain, c.unconfirmed.Len(), c.waiting.Len())
	return nil
}

func (c *Chain) Name() string {
	return c.cfg.Chain
}

func (c *Chain) Config() config.Chain {
	return c.cfg
}

func (c *Chain) Scanner() *Scanner {
	return c.scanner
}

func (c *Chain) RpcMonitor() *RpcMonitor {
	return c.rpcMonitor
}

func (c *Chain) Confirmer() *Confirmer {
	return c.confirmer
}

func (c *Chain) WaitingCoordinator() *WaitingCoordinator {
	return c.coordinator
}

func (c *Chain) Orchestrator() *Orchestrator {
	return c.orchestrator
}

func (c *Chain) IsRpcAvailable() bool {
	return c.rpcAvailable.Load()
}

func (c *Chain) setRpcAvailable(available bool) {
	if c.rpcAvailable.Swap(available) != available {
		if available {
			log.Infof("%s: rpc is available again", c.cfg.Chain)
		} else {
			log.Warnf("%s: rpc is not making progress, marking it unavailable", c.cfg.Chain)
		}
	}

	value := float64(0)
	if available {
		value = 1
	}
	c.metrics.Set(metrics.RpcAvailable, value, c.cfg.Chain)
}

func (c *Chain) observeHeight(height int64) {
	for {
		current := c.maxObservedHeight.Load()
		if height <= current || c.maxObservedHeight.CAS(current, height) {
			return
		}
	}
}

// UnconfirmedTxs returns the queued external transactions.
func (c *Chain) UnconfirmedTxs() ([]*types.UnconfirmedTx, error) {
	return c.unconfirmed.Items()
}

// WaitingTxs returns the outbound requests waiting for a sender.
func (c *Chain) WaitingTxs() ([]*types.WaitingTx, error) {
	return c.waiting.Items()
}

// SignalRecovery queues an emergency recovery. It cancels every pending manager change on the
// next confirmation cycle.
func (c *Chain) SignalRecovery(nerveTxHash string) error {
	key := "recovery-" + types.NormalizeHash(nerveTxHash)
	return c.unconfirmed.Offer(key, &types.UnconfirmedTx{
		TxHash:      key,
		NerveTxHash: nerveTxHash,
		TxType:      types.TxTypeRecovery,
		CreatedAt:   c.now(),
	})
}

func (c *Chain) requiredConfirmations(txType types.TxType) int64 {
	if txType.IsBroadcast() {
		return c.cfg.WithdrawConfirmations
	}

	return c.cfg.DepositConfirmations
}

func (c *Chain) threshold(memberCount int) int {
	m, err := c.home.ByzantineThreshold(c.cfg.Chain, memberCount)
	if err != nil || m <= 0 {
		log.Warnf("%s: cannot get byzantine threshold from home chain, err = %v", c.cfg.Chain, err)
		return config.ByzantineThreshold(memberCount)
	}

	return m
}

func (c *Chain) usdPrice(asset string) (decimal.Decimal, error) {
	price, err := c.prices.UsdPrice(asset)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("no usd price for %s", asset)
	}

	return price, nil
}

func (c *Chain) isMultisig(addr string) bool {
	return strings.EqualFold(addr, c.family.MultisigAddress())
}

func queueKey(hash string) string {
	return types.NormalizeHash(hash)
}
