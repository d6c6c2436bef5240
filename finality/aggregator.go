// Package finality implements the BLS quorum-certificate vote aggregator that becomes
// active once the instant_finality protocol feature has activated: per-block vote
// accumulation, quorum threshold detection, and the per-finalizer safety rules that
// gate a local vote before it is broadcast.
package finality

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/holiman/uint256"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// Finalizer is one member of the active finalizer policy: its voting weight and BLS
// public key.
type Finalizer struct {
	Index     FinalizerIndex
	Weight    uint64
	PublicKey []byte
}

// Policy is the active finalizer set and the weight thresholds a QC must cross to be
// weak or strong.
type Policy struct {
	Finalizers  []Finalizer
	TotalWeight uint64
}

func (p Policy) strongThreshold() *uint256.Int {
	total := uint256.NewInt(p.TotalWeight)
	num := new(uint256.Int).Mul(total, uint256.NewInt(2))
	num.Div(num, uint256.NewInt(3))
	return num.Add(num, uint256.NewInt(1))
}

func (p Policy) weakThreshold() *uint256.Int {
	total := uint256.NewInt(p.TotalWeight)
	num := new(uint256.Int).Div(total, uint256.NewInt(2))
	return num.Add(num, uint256.NewInt(1))
}

// pendingQC accumulates votes for one block's finality digest.
type pendingQC struct {
	signers    *roaring.Bitmap
	signatures map[FinalizerIndex][]byte
	weight     *uint256.Int
}

func newPendingQC() *pendingQC {
	return &pendingQC{
		signers:    roaring.New(),
		signatures: make(map[FinalizerIndex][]byte),
		weight:     uint256.NewInt(0),
	}
}

// Aggregator accumulates votes across all blocks currently in the fork database,
// caching the resulting quorum certificate onto a block once quorum is crossed.
type Aggregator struct {
	mu      sync.Mutex
	policy  Policy
	bls     BLSBackend
	pending map[chaintypes.BlockID]*pendingQC
}

func NewAggregator(policy Policy, bls BLSBackend) *Aggregator {
	return &Aggregator{
		policy:  policy,
		bls:     bls,
		pending: make(map[chaintypes.BlockID]*pendingQC),
	}
}

// VoteResult reports what a single aggregated vote produced.
type VoteResult struct {
	QC      *chaintypes.QuorumCertificate
	Crossed bool // true the first time this vote pushes weight past a threshold
}

// AggregateVote folds one finalizer's signature of digest (the finalizer_digest of
// blockID) into that block's pending QC. It returns the resulting QuorumCertificate
// once weak or strong quorum is first crossed;
// further votes keep strengthening silently (weak -> strong) without re-triggering
// Crossed unless the strictness itself changes.
func (a *Aggregator) AggregateVote(blockID chaintypes.BlockID, finalizerIdx FinalizerIndex, signature []byte, digest []byte) (VoteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	finalizer, ok := a.findFinalizer(finalizerIdx)
	if !ok {
		return VoteResult{}, ErrUnknownFinalizer
	}
	if !a.bls.Verify(finalizer.PublicKey, digest, signature) {
		return VoteResult{}, fmt.Errorf("finality: signature verification failed for finalizer %d", finalizerIdx)
	}

	pq, ok := a.pending[blockID]
	if !ok {
		pq = newPendingQC()
		a.pending[blockID] = pq
	}
	if pq.signers.Contains(uint32(finalizerIdx)) {
		return VoteResult{}, nil // duplicate vote, not an error
	}

	wasWeak := pq.weight.Cmp(a.policy.weakThreshold()) >= 0
	wasStrong := pq.weight.Cmp(a.policy.strongThreshold()) >= 0

	pq.signers.Add(uint32(finalizerIdx))
	pq.signatures[finalizerIdx] = signature
	pq.weight.Add(pq.weight, uint256.NewInt(finalizer.Weight))

	isStrong := pq.weight.Cmp(a.policy.strongThreshold()) >= 0
	isWeak := pq.weight.Cmp(a.policy.weakThreshold()) >= 0

	if !isWeak {
		return VoteResult{}, nil
	}
	crossed := (isWeak && !wasWeak) || (isStrong && !wasStrong)

	sigs := make([][]byte, 0, len(pq.signatures))
	for _, s := range pq.signatures {
		sigs = append(sigs, s)
	}
	aggSig, err := a.bls.Aggregate(sigs)
	if err != nil {
		return VoteResult{}, fmt.Errorf("finality: aggregating signatures for %s: %w", blockID, err)
	}
	signerBytes, err := pq.signers.ToBytes()
	if err != nil {
		return VoteResult{}, fmt.Errorf("finality: serializing signer bitset for %s: %w", blockID, err)
	}

	qc := &chaintypes.QuorumCertificate{
		BlockNum:  blockID.Num(),
		IsStrong:  isStrong,
		AggSig:    aggSig,
		SignerSet: signerBytes,
	}

	return VoteResult{QC: qc, Crossed: crossed}, nil
}

func (a *Aggregator) findFinalizer(idx FinalizerIndex) (Finalizer, bool) {
	for _, f := range a.policy.Finalizers {
		if f.Index == idx {
			return f, true
		}
	}
	return Finalizer{}, false
}

// Forget drops a block's pending vote accumulation, called once it is pruned from the
// fork database.
func (a *Aggregator) Forget(blockID chaintypes.BlockID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, blockID)
}
