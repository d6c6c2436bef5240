// Package window implements the single-writer/many-reader concurrency controller: the
// write window and read window alternation, suspension-point checks, and the epoch-
// counter based cancellation that tolerates a racy timer fire.
package window

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	log "github.com/erigontech/erigon-lib/log/v3"
)

// Mode is which window the controller currently occupies.
type Mode int32

const (
	ModeWrite Mode = iota
	ModeRead
)

// Controller alternates between write and read windows. Every window bumps an epoch
// counter, so stale timer callbacks can recognize themselves as stale and no-op instead
// of acting on an epoch that has already moved on; a monotonically increasing
// received-block counter lets a running window notice that a new block has arrived.
type Controller struct {
	mode           atomic.Int32
	epoch          atomic.Uint64
	receivedBlock  atomic.Uint64
	readOnlyQueue  *ReadOnlyQueue
	readOnlyThreads int
	log            log.Logger
}

func NewController(readOnlyThreads int, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.Root()
	}
	if readOnlyThreads <= 0 {
		readOnlyThreads = 1
	}
	c := &Controller{readOnlyQueue: NewReadOnlyQueue(), readOnlyThreads: readOnlyThreads, log: logger}
	c.mode.Store(int32(ModeWrite))
	return c
}

func (c *Controller) Mode() Mode { return Mode(c.mode.Load()) }

// NotifyIncomingBlock bumps the received-block counter, the signal a read window
// watches to decide whether to preempt early.
func (c *Controller) NotifyIncomingBlock() uint64 {
	return c.receivedBlock.Add(1)
}

// RunWriteWindow runs drain (the app thread's start_block/push/drain loop) until either
// drain returns, the window duration elapses, or ctx is canceled. It returns true if the
// controller should switch to a read window afterward.
func (c *Controller) RunWriteWindow(ctx context.Context, duration time.Duration, drain func(ctx context.Context, shouldInterrupt func() bool) error) (switchToRead bool, err error) {
	c.mode.Store(int32(ModeWrite))
	myEpoch := c.epoch.Add(1)

	wctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	startReceived := c.receivedBlock.Load()
	shouldInterrupt := func() bool {
		if c.epoch.Load() != myEpoch {
			return true // a newer window already started; this callback is stale
		}
		if wctx.Err() != nil {
			return true
		}
		return c.receivedBlock.Load() != startReceived
	}

	err = drain(wctx, shouldInterrupt)
	return c.readOnlyQueue.Len() > 0, err
}

// RunReadWindow drains the read-only queue across c.readOnlyThreads workers, each
// executing against a committed-state snapshot, until deadline (duration minus the
// caller-supplied safety margin) or preemption by a newly arrived block.
// A preempted trx is reinserted at the queue's front.
func (c *Controller) RunReadWindow(ctx context.Context, duration, safetyMargin time.Duration) error {
	c.mode.Store(int32(ModeRead))
	myEpoch := c.epoch.Add(1)

	deadline := time.Now().Add(duration - safetyMargin)
	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	startReceived := c.receivedBlock.Load()
	preempted := func() bool {
		return c.epoch.Load() != myEpoch || wctx.Err() != nil || c.receivedBlock.Load() != startReceived
	}

	sem := semaphore.NewWeighted(int64(c.readOnlyThreads))
	g, gctx := errgroup.WithContext(wctx)

	for {
		if preempted() {
			break
		}
		trx, ok := c.readOnlyQueue.Pop()
		if !ok {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			c.readOnlyQueue.PushFront(trx)
			break
		}
		trx := trx
		g.Go(func() error {
			defer sem.Release(1)
			if preempted() {
				c.readOnlyQueue.PushFront(trx)
				return nil
			}
			if err := trx.Work(); err != nil {
				c.log.Warn("window: read-only trx failed", "id", trx.ID, "err", err)
			}
			return nil
		})
	}

	return g.Wait()
}
