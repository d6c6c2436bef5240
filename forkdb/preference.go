package forkdb

import "github.com/ledgerd-io/ledgerd/chaintypes"

// preferenceKey is the lexicographic head-selection comparison key: higher
// irreversibility progress first, then validated over not, then higher block number,
// then earlier timestamp, then smaller block-id. Ranking validated above block number
// keeps a freshly-received, not-yet-applied tip from stealing head before MarkValid.
type preferenceKey struct {
	irreversibilityProgress chaintypes.BlockNum
	validated               bool
	blockNum                chaintypes.BlockNum
	timestamp               chaintypes.BlockTimestamp
	id                      chaintypes.BlockID
}

func keyOf(bs chaintypes.BlockStateVariant) preferenceKey {
	progress := chaintypes.Match(bs,
		func(b *chaintypes.LegacyBlockState) chaintypes.BlockNum { return b.DposIrreversibleBlockNum },
		func(b *chaintypes.FinalityBlockState) chaintypes.BlockNum { return b.Core.FinalOnStrongQCBlockNum },
	)
	return preferenceKey{
		irreversibilityProgress: progress,
		blockNum:                bs.ID().Num(),
		validated:               bs.Validated(),
		timestamp:               bs.Header().Timestamp,
		id:                      bs.ID(),
	}
}

// morePreferred reports whether a should be chosen over b as head. The final rule —
// byte-lexicographic id comparison when irreversibility progress and timestamp are
// both tied — is deterministic-local only: it discriminates between byzantine or
// duplicate producer output, never between two honestly-produced blocks.
func morePreferred(a, b preferenceKey) bool {
	if a.irreversibilityProgress != b.irreversibilityProgress {
		return a.irreversibilityProgress > b.irreversibilityProgress
	}
	if a.validated != b.validated {
		return a.validated // validated beats not-yet-validated
	}
	if a.blockNum != b.blockNum {
		return a.blockNum > b.blockNum // longer branch wins
	}
	if a.timestamp != b.timestamp {
		return a.timestamp < b.timestamp // earlier timestamp wins
	}
	return a.id.Less(b.id) // smaller id wins
}
