package resourcelimits

import (
	"sync"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// FailureLimiter is a producer-only mechanism: after MaxFailures failures inside the
// current window, further transactions from that first-authorizer are refused locally
// until the window rolls.
type FailureLimiter struct {
	mu          sync.Mutex
	maxFailures uint32
	windowSize  chaintypes.BlockNum
	windowStart chaintypes.BlockNum
	counts      map[chaintypes.AccountName]uint32
}

func NewFailureLimiter(maxFailures uint32, windowSizeBlocks chaintypes.BlockNum) *FailureLimiter {
	return &FailureLimiter{
		maxFailures: maxFailures,
		windowSize:  windowSizeBlocks,
		counts:      make(map[chaintypes.AccountName]uint32),
	}
}

// RollWindow must be called once per block with the block's number; it resets all
// counters when the configured window has elapsed.
func (f *FailureLimiter) RollWindow(blockNum chaintypes.BlockNum) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windowSize == 0 {
		return
	}
	if blockNum-f.windowStart >= f.windowSize {
		f.windowStart = blockNum
		f.counts = make(map[chaintypes.AccountName]uint32)
	}
}

// RecordFailure increments account's failure count for the current window.
func (f *FailureLimiter) RecordFailure(account chaintypes.AccountName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[account]++
}

// Exceeded reports whether account has hit the configured failure ceiling this window
// and should be refused locally before a transaction is even attempted.
func (f *FailureLimiter) Exceeded(account chaintypes.AccountName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxFailures == 0 {
		return false
	}
	return f.counts[account] >= f.maxFailures
}
