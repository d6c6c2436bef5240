package scheduler

import (
	"context"
	"time"

	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/pending"
	"github.com/ledgerd-io/ledgerd/pipeline"
	"github.com/ledgerd-io/ledgerd/unapplied"
)

// PushFunc is the narrow slice of pipeline.Push the drain loops need, parameterized so
// tests can fake it without standing up a full pipeline.Deps.
type PushFunc func(ctx context.Context, meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) (pipeline.Result, error)

// shouldStop composes the suspension points every drain loop shares: the block
// deadline has passed, the block budget is exhausted, or a higher-priority block has
// arrived mid-production.
type shouldStop func() bool

func deadlineStop(deadline time.Time) shouldStop {
	return func() bool { return !deadline.IsZero() && time.Now().After(deadline) }
}

func budgetStop(b *pipeline.Budget) shouldStop {
	return func() bool { return b.Exhausted() }
}

func interruptStop(interrupted *bool) shouldStop {
	return func() bool { return interrupted != nil && *interrupted }
}

func anyStop(stops ...shouldStop) shouldStop {
	return func() bool {
		for _, s := range stops {
			if s() {
				return true
			}
		}
		return false
	}
}

// drainResult tallies one drain pass for logging/metrics.
type drainResult struct {
	Applied int
	Expired int
}

// drainUnapplied retries transactions already queued from a prior abort or fork switch,
// in expiration order, until a suspension point is hit.
func drainUnapplied(ctx context.Context, q *unapplied.Queue, b *pending.Builder, push PushFunc, stop shouldStop, now chaintypes.BlockTimestamp) drainResult {
	var res drainResult
	res.Expired = q.EvictExpired(now)

	q.Drain(func(e *unapplied.Entry) bool {
		if stop() {
			return false
		}
		result, err := push(ctx, e.Meta, nil)
		if err != nil {
			if ce, ok := chainerr.As(err); ok && ce.Kind == chainerr.KindExpired {
				q.Remove(e.Meta.ID)
				res.Expired++
			}
			return true // keep scanning; a single failure never halts the drain
		}
		if err := b.AddReceipt(result.Receipt, result.ActionDigests, result.Meta); err != nil {
			return false
		}
		q.Remove(e.Meta.ID)
		res.Applied++
		return true
	})
	return res
}

// drainScheduled executes deferred transactions whose delay has elapsed, bounded by its
// own sub-deadline independent of the block's overall deadline.
func drainScheduled(ctx context.Context, scheduled []*chaintypes.TransactionMeta, b *pending.Builder,
	push PushFunc, limits chainapi.Limits, blockStart time.Time) drainResult {

	var res drainResult
	subDeadline := scheduledDeadline(limits, blockStart)
	stop := deadlineStop(subDeadline)

	for _, meta := range scheduled {
		if stop() {
			break
		}
		result, err := push(ctx, meta, nil)
		if err != nil {
			continue
		}
		if err := b.AddReceipt(result.Receipt, result.ActionDigests, result.Meta); err != nil {
			break
		}
		res.Applied++
	}
	return res
}

// drainIncoming applies newly-submitted transactions in order until stop reports a
// suspension point. It applies no incoming/deferred split ratio, and it does not queue
// the transactions it leaves unapplied anywhere.
func drainIncoming(ctx context.Context, incoming []*chaintypes.TransactionMeta, b *pending.Builder,
	push PushFunc, stop shouldStop) drainResult {

	var res drainResult
	for _, meta := range incoming {
		if stop() {
			break
		}
		result, err := push(ctx, meta, nil)
		if err != nil {
			continue
		}
		if err := b.AddReceipt(result.Receipt, result.ActionDigests, result.Meta); err != nil {
			break
		}
		res.Applied++
	}
	return res
}
