package hvm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/reusee/heapvm/syncs"
)

// Collector runs collection passes on its own goroutine, triggered by the
// mutator every Config.GCEvery instructions and, if interval > 0, by a ticker.
// A pass waits for the instruction in flight and is never interrupted.
type Collector struct {
	vm       *VM
	interval time.Duration
	trigger  chan struct{}
	passes   syncs.Semaphore

	mu      sync.Mutex // protects start/stop lifecycle and err
	stop    chan struct{}
	stopped chan struct{}
	err     error

	passCount atomic.Uint64
	lastStats atomic.Pointer[CollectStats]
}

func NewCollector(vm *VM, interval time.Duration) *Collector {
	return &Collector{
		vm:       vm,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		passes:   syncs.NewSemaphore(1),
	}
}

// Start begins the collection loop. Calling Start on a running collector does nothing.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.loop(c.stop, c.stopped)
}

// Stop ends the loop and waits for a pass in progress to finish.
func (c *Collector) Stop() {
	c.mu.Lock()
	stop := c.stop
	stopped := c.stopped
	c.stop = nil
	c.stopped = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
}

// Trigger requests a pass without blocking.
func (c *Collector) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Collector) loop(stop, stopped chan struct{}) {
	defer close(stopped)

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-c.trigger:
		case <-tick:
		}
		if !c.passes.TryAcquire() {
			// a manual pass is running
			continue
		}
		_, err := c.pass()
		c.passes.Release()
		if err != nil {
			// fatal, the mutator sees it through Err
			return
		}
	}
}

// Pass runs one collection pass. Passes never overlap.
func (c *Collector) Pass() (CollectStats, error) {
	c.passes.Acquire()
	defer c.passes.Release()
	return c.pass()
}

func (c *Collector) pass() (CollectStats, error) {
	stats, err := c.vm.Collect()
	c.passCount.Add(1)
	if err != nil {
		c.mu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.mu.Unlock()
		return stats, err
	}
	c.lastStats.Store(&stats)
	return stats, nil
}

func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Collector) PassCount() uint64 {
	return c.passCount.Load()
}

// LastStats returns the stats of the last successful pass, or nil.
func (c *Collector) LastStats() *CollectStats {
	return c.lastStats.Load()
}
