// Package chainerr is the block controller's exhaustive, fixed error taxonomy. Every
// failure the controller can produce is tagged with a Kind so callers can switch on
// propagation policy instead of string-matching error text.
package chainerr

// Kind enumerates the complete error taxonomy, block-level and pipeline-local alike.
// It never grows at runtime.
type Kind uint8

const (
	KindNone Kind = iota

	// Transaction-pipeline kinds.
	KindExpired
	KindDuplicate
	KindCPUUsageExceededSubjective
	KindCPUUsageExceededObjective
	KindDeadline
	KindBlockCPUExhausted
	KindBlockNetExhausted
	KindAuthorization
	KindOther

	// Block/fork-db rejecting kinds.
	KindUnlinkableBlock
	KindDuplicateBlock
	KindProtocolFeatureBadBlock
	KindInvalidQC
	KindInvalidQCClaim
	KindInvalidMerkleRoot
	KindForkDatabase
	KindDatabaseGuard
	KindBadAlloc
)

var names = map[Kind]string{
	KindNone:                       "none",
	KindExpired:                    "expired_tx",
	KindDuplicate:                  "tx_duplicate",
	KindCPUUsageExceededSubjective: "tx_cpu_usage_exceeded_subjective",
	KindCPUUsageExceededObjective:  "tx_cpu_usage_exceeded_objective",
	KindDeadline:                   "deadline_exception",
	KindBlockCPUExhausted:          "block_cpu_exhausted",
	KindBlockNetExhausted:          "block_net_exhausted",
	KindAuthorization:              "authorization",
	KindOther:                      "other",
	KindUnlinkableBlock:            "unlinkable_block",
	KindDuplicateBlock:             "duplicate_block",
	KindProtocolFeatureBadBlock:    "protocol_feature_bad_block",
	KindInvalidQC:                  "invalid_qc",
	KindInvalidQCClaim:             "invalid_qc_claim",
	KindInvalidMerkleRoot:          "invalid_merkle_root",
	KindForkDatabase:               "fork_database_exception",
	KindDatabaseGuard:              "database_guard_exception",
	KindBadAlloc:                   "bad_alloc",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown"
}

// BlockRejecting reports whether an error of this kind removes the offending block (and
// its descendants) from the fork database.
func (k Kind) BlockRejecting() bool {
	switch k {
	case KindProtocolFeatureBadBlock, KindInvalidQC, KindInvalidQCClaim, KindInvalidMerkleRoot:
		return true
	default:
		return false
	}
}

// RecoveredLocally reports whether this kind is handled without surfacing a fatal
// condition to the caller.
func (k Kind) RecoveredLocally() bool {
	switch k {
	case KindForkDatabase, KindDatabaseGuard, KindBadAlloc, KindProtocolFeatureBadBlock,
		KindInvalidQC, KindInvalidQCClaim, KindInvalidMerkleRoot:
		return false
	default:
		return true
	}
}

// Fatal reports whether this kind requires the node to shut down rather than continue.
func (k Kind) Fatal() bool {
	return k == KindDatabaseGuard || k == KindBadAlloc
}
