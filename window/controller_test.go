package window

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadWindowDrainsAllQueued(t *testing.T) {
	c := NewController(4, nil)

	var executed atomic.Int64
	for i := 0; i < 20; i++ {
		c.readOnlyQueue.Push(ReadOnlyTrx{ID: uint64(i), Work: func() error {
			executed.Add(1)
			return nil
		}})
	}

	err := c.RunReadWindow(context.Background(), 500*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	require.EqualValues(t, 20, executed.Load())
	require.Zero(t, c.readOnlyQueue.Len())
	require.Equal(t, ModeRead, c.Mode())
}

func TestReadWindowPreemptedByIncomingBlock(t *testing.T) {
	c := NewController(1, nil)

	var executed atomic.Int64
	c.readOnlyQueue.Push(ReadOnlyTrx{ID: 1, Work: func() error {
		executed.Add(1)
		c.NotifyIncomingBlock() // a block arrives while the first trx runs
		return nil
	}})
	for i := 2; i <= 5; i++ {
		c.readOnlyQueue.Push(ReadOnlyTrx{ID: uint64(i), Work: func() error {
			executed.Add(1)
			return nil
		}})
	}

	err := c.RunReadWindow(context.Background(), 500*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	require.Less(t, executed.Load(), int64(5), "preemption must stop the drain early")
	require.NotZero(t, c.readOnlyQueue.Len(), "preempted trxs stay queued for the next window")
}

func TestWriteWindowSignalsInterruptOnIncomingBlock(t *testing.T) {
	c := NewController(1, nil)

	var sawInterrupt bool
	_, err := c.RunWriteWindow(context.Background(), time.Second, func(ctx context.Context, shouldInterrupt func() bool) error {
		require.False(t, shouldInterrupt())
		c.NotifyIncomingBlock()
		sawInterrupt = shouldInterrupt()
		return nil
	})
	require.NoError(t, err)
	require.True(t, sawInterrupt)
	require.Equal(t, ModeWrite, c.Mode())
}

func TestWriteWindowReportsQueuedReadOnlyWork(t *testing.T) {
	c := NewController(1, nil)

	drain := func(ctx context.Context, shouldInterrupt func() bool) error { return nil }
	switchToRead, err := c.RunWriteWindow(context.Background(), time.Second, drain)
	require.NoError(t, err)
	require.False(t, switchToRead)

	c.readOnlyQueue.Push(ReadOnlyTrx{ID: 1, Work: func() error { return nil }})
	switchToRead, err = c.RunWriteWindow(context.Background(), time.Second, drain)
	require.NoError(t, err)
	require.True(t, switchToRead)
}

func TestStaleEpochInterrupts(t *testing.T) {
	c := NewController(1, nil)

	var interrupt func() bool
	_, err := c.RunWriteWindow(context.Background(), time.Second, func(ctx context.Context, shouldInterrupt func() bool) error {
		interrupt = shouldInterrupt
		return nil
	})
	require.NoError(t, err)

	// A later window bumps the epoch; the captured callback recognizes itself stale.
	_, err = c.RunWriteWindow(context.Background(), time.Second, func(ctx context.Context, shouldInterrupt func() bool) error { return nil })
	require.NoError(t, err)
	require.True(t, interrupt())
}

func TestQueueFrontReinsertion(t *testing.T) {
	q := NewReadOnlyQueue()
	q.Push(ReadOnlyTrx{ID: 1})
	q.Push(ReadOnlyTrx{ID: 2})
	q.PushFront(ReadOnlyTrx{ID: 3})

	got, ok := q.Pop()
	require.True(t, ok)
	require.EqualValues(t, 3, got.ID)
	got, _ = q.Pop()
	require.EqualValues(t, 1, got.ID)
}
