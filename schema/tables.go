// Copyright 2024 The ledgerd Authors
//
// Package schema names and versions the on-disk layouts the block controller owns
// directly: the block-log index buckets and the snapshot section names.
package schema

// FormatVersion versions list
//
//	1 - initial block-log index + snapshot section layout
//	2 - added the instant_finality quorum-certificate snapshot section
var FormatVersion = struct{ Major, Minor uint32 }{Major: 2, Minor: 0}

// Block-log companion index (bbolt) bucket names. See blocklog.Index.
const (
	// BlockNumToOffset: block_num_u32_bigendian -> file_offset_u64_bigendian
	BlockNumToOffset = "BlockNumToOffset"

	// BlockIDToNum: block_id (32 bytes) -> block_num_u32_bigendian, used to validate
	// that a requested id matches the record found at its expected offset.
	BlockIDToNum = "BlockIDToNum"

	// LogMeta: fixed singleton keys below -> raw values, tracks head/first block number
	// so a restart can resume appends without rescanning the log file.
	LogMeta = "LogMeta"
)

// LogMeta keys.
const (
	MetaKeyFirstBlockNum = "first_block_num"
	MetaKeyHeadBlockNum  = "head_block_num"
)

// Snapshot section names, in the order they must appear on the stream. The first
// section in any snapshot stream must be ChainSnapshotHeader.
const (
	ChainSnapshotHeader   = "chain_snapshot_header"
	BlockStateSection     = "block_state"
	AccountIndexSection   = "account_index"
	AccountMetaSection    = "account_metadata_index"
	PermissionSection     = "permission_index"
	ContractTablesSection = "contract_tables"
	AuthorizationSection  = "authorization_state"
	ResourceLimitsSection = "resource_limits_state"

	// FinalizerPolicySection carries the active/pending finalizer policy and the
	// per-finalizer safety records — added for the instant-finality protocol upgrade,
	// absent from snapshots taken before FormatVersion 2.
	FinalizerPolicySection = "finalizer_policy"
)

// SectionOrder is the canonical section order written by Write; Read tolerates any
// order but Write always emits this one so two nodes produce byte-identical streams
// given identical state.
var SectionOrder = []string{
	ChainSnapshotHeader,
	BlockStateSection,
	AccountIndexSection,
	AccountMetaSection,
	PermissionSection,
	ContractTablesSection,
	AuthorizationSection,
	ResourceLimitsSection,
	FinalizerPolicySection,
}
