package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sisu-network/hbridge/metrics"
	"github.com/sisu-network/lib/log"
	"go.uber.org/atomic"
)

const (
	RpcCheckInterval = 10 * time.Second
	// Upper bound of one task cycle.
	CycleTimeout = 2 * time.Minute
)

// task runs one periodic job of a chain. A cycle never starts while the previous one is running.
type task struct {
	chain  *Chain
	name   string
	period time.Duration
	// next overrides period for tasks that pace themselves.
	next    func() time.Duration
	run     func(ctx context.Context) error
	running *atomic.Bool
}

func (t *task) interval() time.Duration {
	if t.next != nil {
		return t.next()
	}

	return t.period
}

func (t *task) tick() {
	if !t.running.CAS(false, true) {
		return
	}
	defer t.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: task %s panicked: %v", t.chain.Name(), t.name, r)
			t.chain.metrics.Inc(metrics.TaskError, t.chain.Name(), t.name)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), CycleTimeout)
	defer cancel()

	if err := t.run(ctx); err != nil {
		log.Errorf("%s: task %s failed, err = %v", t.chain.Name(), t.name, err)
		t.chain.metrics.Inc(metrics.TaskError, t.chain.Name(), t.name)
	}
}

// Processor runs the tasks of every chain, each task on its own goroutine.
type Processor struct {
	chains map[string]*Chain
	tasks  []*task

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewProcessor() *Processor {
	return &Processor{
		chains: make(map[string]*Chain),
		stopCh: make(chan struct{}),
	}
}

func (p *Processor) AddChain(c *Chain) {
	p.chains[c.Name()] = c

	period := c.cfg.ScanPeriod()
	scanner := p.newTask(c, "scanner", period, c.scanner.Run)
	scanner.next = c.pacer.period

	p.tasks = append(p.tasks,
		scanner,
		p.newTask(c, "rpc_monitor", RpcCheckInterval, c.rpcMonitor.Run),
		p.newTask(c, "confirmer", period, c.confirmer.Run),
		p.newTask(c, "waiting", period, c.coordinator.Run),
	)
}

func (p *Processor) newTask(c *Chain, name string, period time.Duration, run func(ctx context.Context) error) *task {
	return &task{
		chain:   c,
		name:    name,
		period:  period,
		run:     run,
		running: atomic.NewBool(false),
	}
}

func (p *Processor) GetChain(chain string) (*Chain, error) {
	c, ok := p.chains[chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %s", chain)
	}

	return c, nil
}

func (p *Processor) Chains() []*Chain {
	ret := make([]*Chain, 0, len(p.chains))
	for _, c := range p.chains {
		ret = append(ret, c)
	}

	return ret
}

func (p *Processor) Start() {
	log.Info("Starting tx processor...")

	for _, c := range p.chains {
		log.Info("Supported chain and config: ", c.Name(), " ", c.cfg.Family)
		go func(c *Chain) {
			if err := c.Init(); err != nil {
				log.Errorf("%s: cannot load queues, err = %v", c.Name(), err)
			}
		}(c)
	}

	for _, t := range p.tasks {
		p.wg.Add(1)
		go p.loop(t)
	}
}

func (p *Processor) loop(t *task) {
	defer p.wg.Done()

	// Queue consumers wait until the queues are rebuilt from disk.
	select {
	case <-t.chain.unconfirmed.Ready():
	case <-p.stopCh:
		return
	}
	select {
	case <-t.chain.waiting.Ready():
	case <-p.stopCh:
		return
	}

	timer := time.NewTimer(t.interval())
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
			t.tick()
			timer.Reset(t.interval())
		}
	}
}

func (p *Processor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	log.Info("Tx processor stopped")
}
