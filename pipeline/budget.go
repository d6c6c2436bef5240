package pipeline

import "github.com/ledgerd-io/ledgerd/safemath"

// Budget is the remaining block-level CPU/NET ceiling a single transaction push may
// consume from, shrinking monotonically across a block.
type Budget struct {
	CPUUsageUS uint64
	NetUsageBytes uint64
}

// Reserve deducts cpuUS/netBytes from the budget, saturating at zero rather than
// wrapping.
func (b *Budget) Reserve(cpuUS, netBytes uint64) {
	b.CPUUsageUS = safemath.SaturatingSub(b.CPUUsageUS, cpuUS)
	b.NetUsageBytes = safemath.SaturatingSub(b.NetUsageBytes, netBytes)
}

// Exhausted reports whether either dimension has hit zero.
func (b Budget) Exhausted() bool {
	return b.CPUUsageUS == 0 || b.NetUsageBytes == 0
}

// Fits reports whether cpuUS/netBytes can be charged without driving the budget negative.
func (b Budget) Fits(cpuUS, netBytes uint64) bool {
	return cpuUS <= b.CPUUsageUS && netBytes <= b.NetUsageBytes
}
