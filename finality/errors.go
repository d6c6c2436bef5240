package finality

import "errors"

var (
	ErrInvalidSignatureEncoding = errors.New("finality: invalid compressed signature encoding")
	ErrAggregationFailed        = errors.New("finality: BLS signature aggregation failed")
	ErrClaimRegressed           = errors.New("finality: qc_claim block number regressed from parent")
	ErrClaimWeakened            = errors.New("finality: qc_claim strictness weakened with unchanged block number")
	ErrMissingQCExtension       = errors.New("finality: claim changed from parent but no quorum_certificate extension present")
	ErrUnexpectedQCExtension    = errors.New("finality: claim unchanged from parent but a quorum_certificate extension is present")
	ErrQCExtensionMismatch      = errors.New("finality: quorum_certificate extension does not match the claim")
	ErrUnknownFinalizer         = errors.New("finality: vote signed by an unrecognized finalizer index")
	ErrSafetyViolationTimestamp = errors.New("finality: vote would violate safety rule 1 (timestamp must not regress)")
	ErrSafetyViolationLocked    = errors.New("finality: vote would violate safety rule 2 (last-qc-block older than last-locked block)")
)
