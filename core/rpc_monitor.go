package core

import (
	"context"
	"time"

	"github.com/sisu-network/hbridge/chains"
	"github.com/sisu-network/lib/log"
)

// RpcMonitor marks the rpc of a chain unavailable when its height stops increasing. Nothing is
// sent to a chain while its rpc is unavailable.
type RpcMonitor struct {
	c *Chain

	lastHeight  int64
	lastAdvance time.Time
}

func (m *RpcMonitor) Run(ctx context.Context) error {
	c := m.c
	now := c.now()
	if m.lastAdvance.IsZero() {
		m.lastAdvance = now
	}

	height, err := c.adapter.Height(ctx)
	if err != nil {
		log.Warnf("%s: cannot get height, err = %v", c.cfg.Chain, err)
	}

	if err == nil && height > m.lastHeight {
		m.lastHeight = height
		m.lastAdvance = now
		c.setRpcAvailable(true)
		return nil
	}

	if now.Sub(m.lastAdvance) <= c.cfg.StaleThreshold() {
		return nil
	}

	c.setRpcAvailable(false)

	if swapper, ok := c.adapter.(chains.RpcSwapper); ok {
		if swapper.CheckRpcs(ctx) {
			log.Infof("%s: switched to another rpc", c.cfg.Chain)
		}
	}

	return nil
}
