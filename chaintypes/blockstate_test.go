package chaintypes

import "testing"

func TestMatchDispatchesByVariant(t *testing.T) {
	legacy := NewLegacyBlockState(BlockID{}, BlockHeader{}, 5)
	finality := NewFinalityBlockState(BlockID{}, BlockHeader{}, FinalityCore{FinalOnStrongQCBlockNum: 7})

	got := Match[BlockNum](legacy,
		func(b *LegacyBlockState) BlockNum { return b.DposIrreversibleBlockNum },
		func(b *FinalityBlockState) BlockNum { return b.Core.FinalOnStrongQCBlockNum },
	)
	if got != 5 {
		t.Fatalf("legacy dispatch = %d, want 5", got)
	}

	got = Match[BlockNum](finality,
		func(b *LegacyBlockState) BlockNum { return b.DposIrreversibleBlockNum },
		func(b *FinalityBlockState) BlockNum { return b.Core.FinalOnStrongQCBlockNum },
	)
	if got != 7 {
		t.Fatalf("finality dispatch = %d, want 7", got)
	}
}

func TestCachedTrxMetasRoundTrip(t *testing.T) {
	bs := NewLegacyBlockState(BlockID{}, BlockHeader{}, 0)
	metas := []*TransactionMeta{{ID: [32]byte{1}}}
	SetCachedTrxMetas(bs, metas)
	if got := CachedTrxMetas(bs); len(got) != 1 || got[0].ID != metas[0].ID {
		t.Fatalf("CachedTrxMetas = %v, want %v", got, metas)
	}
}

func TestBlockIDNumAndLess(t *testing.T) {
	id1 := MakeBlockID(10, [28]byte{1})
	id2 := MakeBlockID(10, [28]byte{2})
	if id1.Num() != 10 {
		t.Fatalf("Num() = %d, want 10", id1.Num())
	}
	if !id1.Less(id2) {
		t.Fatal("expected id1 < id2 lexicographically")
	}
	if id1.IsZero() {
		t.Fatal("id1 should not be zero")
	}
}

func TestFeatureSetContains(t *testing.T) {
	var fs FeatureSet
	d := FeatureDigest{1, 2, 3}
	if fs.Contains(d) {
		t.Fatal("empty set should not contain anything")
	}
	fs = append(fs, d)
	if !fs.Contains(d) {
		t.Fatal("expected set to contain appended digest")
	}
}
