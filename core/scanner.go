package core

import (
	"context"
	"fmt"

	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/hbridge/types"
	"github.com/sisu-network/hbridge/utils"
	"github.com/sisu-network/lib/log"
)

// Scanner walks the external chain block by block and queues the bridge transactions it finds.
type Scanner struct {
	c *Chain
}

func (s *Scanner) Run(ctx context.Context) error {
	c := s.c

	member, err := c.home.IsBankMember(c.cfg.Chain)
	if err != nil {
		return err
	}
	if !member {
		s.clearCache()
		return nil
	}

	tip, err := c.adapter.Height(ctx)
	if err != nil {
		return err
	}

	stored, err := s.latestHeader()
	if err != nil {
		return err
	}

	firstCycle := s.takeFirstCycle()

	// Nothing scanned before or the node was down for a while: start from the tip, older
	// transactions are handled by the other members.
	if stored == nil || (firstCycle && tip-stored.Height >= 2) {
		log.Infof("%s: starting to scan from tip %d", c.cfg.Chain, tip)
		header, err := c.adapter.HeaderAt(ctx, tip)
		if err != nil {
			return err
		}
		if header == nil {
			return fmt.Errorf("header %d not found", tip)
		}
		return s.saveHeader(header)
	}

	current, err := c.adapter.HeaderAt(ctx, stored.Height)
	if err != nil {
		return err
	}
	if current == nil || current.Hash != stored.Hash {
		return s.rollback(stored)
	}

	end := utils.MinInt(tip, stored.Height+c.cfg.MaxBlocksPerCycle)
	prev := stored
	for height := stored.Height + 1; height <= end; height++ {
		block, err := c.adapter.BlockAt(ctx, height)
		if err != nil {
			return err
		}
		if block == nil {
			return fmt.Errorf("block %d not found", height)
		}
		if block.ParentHash != "" && block.ParentHash != prev.Hash {
			return s.rollback(prev)
		}

		if err := s.processBlock(ctx, block); err != nil {
			return err
		}

		header := block.Header
		if err := s.saveHeader(&header); err != nil {
			return err
		}
		prev = &header
	}

	if walked := prev.Height - stored.Height; walked > 0 {
		c.pacer.hit(walked)
	} else {
		c.pacer.miss()
	}

	if c.cfg.HeaderKeep > 0 && prev.Height > c.cfg.HeaderKeep {
		if err := c.db.PruneHeaders(c.cfg.Chain, prev.Height-c.cfg.HeaderKeep); err != nil {
			log.Warnf("%s: cannot prune headers, err = %v", c.cfg.Chain, err)
		}
	}

	return nil
}

func (s *Scanner) processBlock(ctx context.Context, block *types.Block) error {
	c := s.c

	utxs, err := c.family.Analyze(ctx, block)
	if err != nil {
		return err
	}

	c.metrics.Inc(metrics.TotalBlockScanned, c.cfg.Chain)
	if len(utxs) > 0 {
		log.Verbosef("%s: found %d bridge txs in block %d", c.cfg.Chain, len(utxs), block.Height)
	}

	for _, utx := range utxs {
		if err := s.track(utx, block); err != nil {
			return err
		}
		c.metrics.Inc(metrics.TxDiscovered, c.cfg.Chain, utx.TxType.String())
	}

	return nil
}

// track records a transaction found in a block. A transaction this node sent is already queued;
// it keeps its counters and takes the state seen on chain.
func (s *Scanner) track(utx *types.UnconfirmedTx, block *types.Block) error {
	c := s.c
	key := queueKey(utx.TxHash)

	if err := c.db.SaveTx(c.cfg.Chain, &types.StoredTx{
		TxHash:      utx.TxHash,
		NerveTxHash: utx.NerveTxHash,
		TxType:      utx.TxType,
		BlockHeight: block.Height,
		Status:      utx.Status,
	}); err != nil {
		return err
	}

	existing, err := c.unconfirmed.Get(key)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.MarkedDeleted {
			return nil
		}

		existing.BlockHeight = block.Height
		existing.BlockTime = block.Time
		existing.Status = utx.Status
		existing.Validated = false
		if utx.To != "" {
			existing.To = utx.To
		}
		if existing.From == "" {
			existing.From = utx.From
		}
		return c.unconfirmed.Offer(key, existing)
	}

	utx.BlockHeight = block.Height
	utx.BlockTime = block.Time
	utx.CreatedAt = c.now()
	return c.unconfirmed.Offer(key, utx)
}

func (s *Scanner) rollback(stored *types.Header) error {
	c := s.c
	log.Warnf("%s: fork detected at height %d, dropping header %s", c.cfg.Chain, stored.Height, stored.Hash)
	c.metrics.Inc(metrics.TotalForks, c.cfg.Chain)

	if err := c.db.DeleteHeader(c.cfg.Chain, stored.Height); err != nil {
		return err
	}

	c.headerLock.Lock()
	defer c.headerLock.Unlock()

	c.headers.Remove(stored.Height)
	c.lastHeader = nil
	if value, ok := c.headers.Get(stored.Height - 1); ok {
		c.lastHeader = value.(*types.Header)
	}

	return nil
}

func (s *Scanner) latestHeader() (*types.Header, error) {
	c := s.c

	c.headerLock.Lock()
	defer c.headerLock.Unlock()

	if c.lastHeader != nil {
		return c.lastHeader, nil
	}

	header, err := c.db.GetLatestHeader(c.cfg.Chain)
	if err != nil {
		return nil, err
	}
	if header != nil {
		c.lastHeader = header
		c.headers.Add(header.Height, header)
	}

	return header, nil
}

func (s *Scanner) saveHeader(header *types.Header) error {
	c := s.c
	if err := c.db.SaveHeader(c.cfg.Chain, header); err != nil {
		return err
	}

	c.headerLock.Lock()
	c.lastHeader = header
	c.headers.Add(header.Height, header)
	c.headerLock.Unlock()

	c.observeHeight(header.Height)
	c.metrics.Set(metrics.ScanHeight, float64(header.Height), c.cfg.Chain)
	return nil
}

func (s *Scanner) clearCache() {
	c := s.c
	c.headerLock.Lock()
	defer c.headerLock.Unlock()

	c.headers.Clear()
	c.lastHeader = nil
}

func (s *Scanner) takeFirstCycle() bool {
	c := s.c
	c.headerLock.Lock()
	defer c.headerLock.Unlock()

	first := c.firstCycle
	c.firstCycle = false
	return first
}
