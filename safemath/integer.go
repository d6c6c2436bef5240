// Copyright 2024 The ledgerd Authors
//
// Package safemath collects the overflow-checked integer helpers the block controller
// needs for CPU/NET budget accounting.
package safemath

import "math/bits"

// Integer limit values used when clamping CPU-time and byte budgets.
const (
	MaxUint32 = 1<<32 - 1
	MaxUint64 = 1<<64 - 1
)

// SafeAdd returns x+y and reports whether the addition overflowed a uint64.
func SafeAdd(x, y uint64) (sum uint64, overflow bool) {
	sum, carry := bits.Add64(x, y, 0)
	return sum, carry != 0
}

// SafeMul returns x*y and reports whether the multiplication overflowed a uint64.
func SafeMul(x, y uint64) (prod uint64, overflow bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// SaturatingSub returns x-y, clamped to zero instead of wrapping (used when a budget's
// consumed-so-far figure might exceed its nominal cap after a reconfiguration).
func SaturatingSub(x, y uint64) uint64 {
	if y > x {
		return 0
	}
	return x - y
}

// CeilDiv rounds x/y up to the nearest integer, returning 0 when y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// AbsoluteDifference returns |x-y| for two uint64 values without underflowing.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// MinUint64 returns the smallest of vals, or 0 when vals is empty.
func MinUint64(vals ...uint64) uint64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
