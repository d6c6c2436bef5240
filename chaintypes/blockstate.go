package chaintypes

// FinalityCore is the set of block numbers a finality-protocol block state tracks in
// order to reason about quorum-certificate-driven finality.
type FinalityCore struct {
	LastQCBlockNum       BlockNum
	LastQCIsStrong       bool
	FinalOnStrongQCBlockNum BlockNum
}

// QCClaim is the header-extension payload asserting that a quorum certificate exists
// for some earlier block.
type QCClaim struct {
	LastQCBlockNum BlockNum
	IsStrong       bool
}

// QuorumCertificate is the aggregated BLS signature plus signer bitset carried as a
// block extension when a claim changes from its parent's.
type QuorumCertificate struct {
	BlockNum  BlockNum
	IsStrong  bool
	AggSig    []byte // serialized aggregated BLS signature
	SignerSet []byte // serialized roaring bitmap of signer indices
}

// BlockStateVariant is implemented by LegacyBlockState and FinalityBlockState. Dispatch
// is by Match, never by embedding/inheritance.
type BlockStateVariant interface {
	ID() BlockID
	Header() BlockHeader
	PreviousID() BlockID
	Validated() bool
	SetValidated(bool)
	isBlockStateVariant()
}

// blockStateCommon is the field set every variant shares; it is embedded, never exposed
// as a base type callers program against.
type blockStateCommon struct {
	id                         BlockID
	header                     BlockHeader
	activeSchedule             []AccountName
	pendingSchedule            *ProducerScheduleChange
	activatedProtocolFeatures  FeatureSet
	cachedTrxMetas             []*TransactionMeta
	validated                  bool
}

func (c *blockStateCommon) ID() BlockID             { return c.id }
func (c *blockStateCommon) Header() BlockHeader     { return c.header }
func (c *blockStateCommon) PreviousID() BlockID     { return c.header.Previous }
func (c *blockStateCommon) Validated() bool         { return c.validated }
func (c *blockStateCommon) SetValidated(v bool)     { c.validated = v }

// LegacyBlockState is the DPOS-irreversible block-state flavor.
type LegacyBlockState struct {
	blockStateCommon
	DposIrreversibleBlockNum BlockNum
}

func (b *LegacyBlockState) isBlockStateVariant() {}

// FinalityBlockState is the BLS-quorum-certificate block-state flavor.
type FinalityBlockState struct {
	blockStateCommon
	Core   FinalityCore
	ValidQC *QuorumCertificate
}

func (b *FinalityBlockState) isBlockStateVariant() {}

// NewLegacyBlockState constructs a block state in the legacy (pre-finality) flavor.
func NewLegacyBlockState(id BlockID, h BlockHeader, dposIrr BlockNum) *LegacyBlockState {
	return &LegacyBlockState{
		blockStateCommon:         blockStateCommon{id: id, header: h},
		DposIrreversibleBlockNum: dposIrr,
	}
}

// NewFinalityBlockState constructs a block state in the instant-finality flavor.
func NewFinalityBlockState(id BlockID, h BlockHeader, core FinalityCore) *FinalityBlockState {
	return &FinalityBlockState{
		blockStateCommon: blockStateCommon{id: id, header: h},
		Core:             core,
	}
}

// Match is the single combinator every consumer uses to branch on block-state flavor,
// so call sites stay compact.
func Match[T any](bs BlockStateVariant, onLegacy func(*LegacyBlockState) T, onFinality func(*FinalityBlockState) T) T {
	switch v := bs.(type) {
	case *LegacyBlockState:
		return onLegacy(v)
	case *FinalityBlockState:
		return onFinality(v)
	default:
		panic("chaintypes: unknown BlockStateVariant implementation")
	}
}

// CachedTrxMetas returns the transaction metadata cached onto this block state after
// apply, so a fork switch need not re-recover keys.
func CachedTrxMetas(bs BlockStateVariant) []*TransactionMeta {
	return Match(bs,
		func(b *LegacyBlockState) []*TransactionMeta { return b.cachedTrxMetas },
		func(b *FinalityBlockState) []*TransactionMeta { return b.cachedTrxMetas },
	)
}

// SetCachedTrxMetas stores the recovered transaction metadata for later fork-switch reuse.
func SetCachedTrxMetas(bs BlockStateVariant, metas []*TransactionMeta) {
	switch v := bs.(type) {
	case *LegacyBlockState:
		v.cachedTrxMetas = metas
	case *FinalityBlockState:
		v.cachedTrxMetas = metas
	}
}
