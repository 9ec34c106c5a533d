package core

import (
	"sync"
	"time"
)

const (
	MinScanInterval = 500 * time.Millisecond
)

// scanPacer adapts the scan interval to the block production of the chain. Cycles that find new
// blocks shorten the interval, empty cycles lengthen it.
type scanPacer struct {
	lock           sync.RWMutex
	current        time.Duration
	min            time.Duration
	max            time.Duration
	consecutiveHit int
}

func newScanPacer(interval time.Duration) *scanPacer {
	min := MinScanInterval
	if interval < min {
		min = interval
	}

	return &scanPacer{
		current: interval,
		min:     min,
		max:     4 * interval,
	}
}

// hit is called after a cycle that scanned new blocks.
func (p *scanPacer) hit(blocks int64) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.consecutiveHit++
	if blocks > 1 || p.consecutiveHit >= 3 {
		// Behind the tip.
		p.current = p.current * 6 / 10
	} else {
		p.current = p.current * 95 / 100
	}
	p.clamp()
}

// miss is called after a cycle without a new block.
func (p *scanPacer) miss() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.current = p.current * 11 / 10
	p.consecutiveHit = 0
	p.clamp()
}

func (p *scanPacer) clamp() {
	if p.current < p.min {
		p.current = p.min
	}
	if p.current > p.max {
		p.current = p.max
	}
}

func (p *scanPacer) period() time.Duration {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.current
}
