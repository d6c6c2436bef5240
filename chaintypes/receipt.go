package chaintypes

// ReceiptStatus is the authoritative outcome a block records for one transaction.
type ReceiptStatus uint8

const (
	ReceiptExecuted ReceiptStatus = iota
	ReceiptSoftFail
	ReceiptHardFail
	ReceiptDelayed
	ReceiptExpired
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptExecuted:
		return "executed"
	case ReceiptSoftFail:
		return "soft_fail"
	case ReceiptHardFail:
		return "hard_fail"
	case ReceiptDelayed:
		return "delayed"
	case ReceiptExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// TrxVariant is either an inline packed transaction or an id reference to a
// previously-scheduled deferred transaction.
type TrxVariant struct {
	packed []byte
	ref    *[32]byte
}

func PackedTrx(b []byte) TrxVariant { return TrxVariant{packed: b} }
func RefTrx(id [32]byte) TrxVariant { return TrxVariant{ref: &id} }

// Match dispatches on the variant.
func (v TrxVariant) Match(onPacked func([]byte), onRef func([32]byte)) {
	if v.ref != nil {
		onRef(*v.ref)
		return
	}
	onPacked(v.packed)
}

func (v TrxVariant) IsRef() bool { return v.ref != nil }

// TransactionReceipt is the ordered record a block carries for each transaction it
// executed.
type TransactionReceipt struct {
	Status        ReceiptStatus
	CPUUsageUS    uint32
	NetUsageWords uint32
	Trx           TrxVariant
}

// TrxType distinguishes how a transaction entered the pipeline.
type TrxType uint8

const (
	TrxInput TrxType = iota
	TrxImplicit
	TrxScheduled
	TrxReadOnly
	TrxDryRun
)

// IsTransient reports whether a transaction of this type may never appear in a receipt
// or emit applied_transaction.
func (t TrxType) IsTransient() bool {
	return t == TrxReadOnly || t == TrxDryRun
}

// TransactionMeta is the shared, mutable-until-applied metadata record for one
// transaction.
type TransactionMeta struct {
	PackedTrx      []byte
	ID             [32]byte
	RecoveredKeys  [][]byte
	BilledCPUTimeUS uint32
	Type           TrxType
	Accepted       bool
	Expiration     BlockTimestamp
	FirstAuthorizer AccountName
}

func (m *TransactionMeta) IsTransient() bool { return m.Type.IsTransient() }
