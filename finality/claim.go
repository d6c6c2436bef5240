package finality

import "github.com/ledgerd-io/ledgerd/chaintypes"

// ValidateClaim checks a block's qc_claim header extension against its parent's:
//   - the claimed block number may not regress from the parent's claim
//   - if the claimed block number is unchanged, the strictness may only strengthen
//     (weak -> strong), and a quorum-certificate block extension is forbidden
//   - if the claimed block number changed, a quorum-certificate extension is required,
//     and its block_num and strictness must match the claim exactly
func ValidateClaim(parentClaim, claim chaintypes.QCClaim, qc *chaintypes.QuorumCertificate) error {
	if claim.LastQCBlockNum < parentClaim.LastQCBlockNum {
		return ErrClaimRegressed
	}

	unchanged := claim.LastQCBlockNum == parentClaim.LastQCBlockNum
	if unchanged {
		if parentClaim.IsStrong && !claim.IsStrong {
			return ErrClaimWeakened
		}
		if qc != nil {
			return ErrUnexpectedQCExtension
		}
		return nil
	}

	if qc == nil {
		return ErrMissingQCExtension
	}
	if qc.BlockNum != claim.LastQCBlockNum || qc.IsStrong != claim.IsStrong {
		return ErrQCExtensionMismatch
	}
	return nil
}
