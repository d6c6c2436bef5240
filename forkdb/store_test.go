package forkdb

import (
	"testing"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

func mkID(num chaintypes.BlockNum, tag byte) chaintypes.BlockID {
	var digest [28]byte
	digest[0] = tag
	return chaintypes.MakeBlockID(num, digest)
}

func TestAddAndGet(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, err := New(root, 16)
	if err != nil {
		t.Fatal(err)
	}

	child := chaintypes.NewLegacyBlockState(mkID(2, 0), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	if err := s.Add(child, true); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get(child.ID())
	if !ok || got.ID() != child.ID() {
		t.Fatal("expected to retrieve the added child")
	}
}

func TestAddDuplicateErrors(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)
	child := chaintypes.NewLegacyBlockState(mkID(2, 0), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	if err := s.Add(child, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(child, true); err == nil {
		t.Fatal("expected ErrDuplicate on re-adding the same id")
	}
}

func TestAddUnlinkableErrors(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)
	orphan := chaintypes.NewLegacyBlockState(mkID(5, 0), chaintypes.BlockHeader{Previous: mkID(4, 9)}, 0)
	if err := s.Add(orphan, true); err == nil {
		t.Fatal("expected ErrUnlinkable for a block whose previous is unknown")
	}
}

func TestHeadPrefersHigherIrreversibilityProgress(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)

	low := chaintypes.NewLegacyBlockState(mkID(2, 1), chaintypes.BlockHeader{Previous: root.ID(), Timestamp: 10}, 1)
	high := chaintypes.NewLegacyBlockState(mkID(2, 2), chaintypes.BlockHeader{Previous: root.ID(), Timestamp: 10}, 2)

	if err := s.Add(low, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(high, true); err != nil {
		t.Fatal(err)
	}

	head := s.Head()
	if head.ID() != high.ID() {
		t.Fatalf("expected head to prefer higher irreversibility progress, got %s", head.ID())
	}
}

func TestMarkValidCanChangeHead(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)

	unvalidated := chaintypes.NewLegacyBlockState(mkID(2, 1), chaintypes.BlockHeader{Previous: root.ID(), Timestamp: 5}, 0)
	validated := chaintypes.NewLegacyBlockState(mkID(2, 2), chaintypes.BlockHeader{Previous: root.ID(), Timestamp: 5}, 0)

	_ = s.Add(validated, true)
	_ = s.Add(unvalidated, false)

	if s.Head().ID() != validated.ID() {
		t.Fatalf("expected validated block to be head first")
	}

	if err := s.MarkValid(unvalidated.ID()); err != nil {
		t.Fatal(err)
	}
	// Both now validated at the same height; tie-break falls to timestamp then id. Since
	// timestamps are equal, the smaller id (unvalidated's) wins.
	head := s.Head()
	if head.ID() != unvalidated.ID() {
		t.Fatalf("expected the smaller id %s to win the tie-break, got %s", unvalidated.ID(), head.ID())
	}
}

func TestAdvanceRootPrunes(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)

	b2 := chaintypes.NewLegacyBlockState(mkID(2, 0), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	b2Fork := chaintypes.NewLegacyBlockState(mkID(2, 1), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	_ = s.Add(b2, true)
	_ = s.Add(b2Fork, true)

	if err := s.AdvanceRoot(b2.ID()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(b2Fork.ID()); ok {
		t.Fatal("expected the losing fork to be pruned after AdvanceRoot")
	}
	if _, ok := s.Get(root.ID()); ok {
		t.Fatal("expected the old root to be pruned after AdvanceRoot")
	}
	if s.Root().ID() != b2.ID() {
		t.Fatalf("Root() = %s, want %s", s.Root().ID(), b2.ID())
	}
}

func TestRemoveSubtreeRemovesDescendants(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)

	b2 := chaintypes.NewLegacyBlockState(mkID(2, 0), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	b3 := chaintypes.NewLegacyBlockState(mkID(3, 0), chaintypes.BlockHeader{Previous: b2.ID()}, 0)
	_ = s.Add(b2, true)
	_ = s.Add(b3, true)

	s.RemoveSubtree(b2.ID())
	if _, ok := s.Get(b2.ID()); ok {
		t.Fatal("expected b2 removed")
	}
	if _, ok := s.Get(b3.ID()); ok {
		t.Fatal("expected b3 (descendant of b2) removed")
	}
}

func TestSearchOnBranch(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)
	b2 := chaintypes.NewLegacyBlockState(mkID(2, 0), chaintypes.BlockHeader{Previous: root.ID()}, 0)
	b3 := chaintypes.NewLegacyBlockState(mkID(3, 0), chaintypes.BlockHeader{Previous: b2.ID()}, 0)
	_ = s.Add(b2, true)
	_ = s.Add(b3, true)

	found, ok := s.SearchOnBranch(b3.ID(), 2)
	if !ok || found.ID() != b2.ID() {
		t.Fatal("expected to find b2 by walking back from b3")
	}
}

func TestCachedTrxMetas(t *testing.T) {
	root := chaintypes.NewLegacyBlockState(mkID(1, 0), chaintypes.BlockHeader{}, 0)
	s, _ := New(root, 16)
	metas := []*chaintypes.TransactionMeta{{ID: [32]byte{7}}}
	s.CacheTrxMetas(root.ID(), metas)
	got, ok := s.CachedTrxMetas(root.ID())
	if !ok || len(got) != 1 {
		t.Fatal("expected cached trx metas to round-trip")
	}
}
