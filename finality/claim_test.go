package finality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

func TestClaimMayNotRegress(t *testing.T) {
	parent := chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: true}
	err := ValidateClaim(parent, chaintypes.QCClaim{LastQCBlockNum: 9, IsStrong: true}, nil)
	require.ErrorIs(t, err, ErrClaimRegressed)
}

func TestUnchangedClaimMayOnlyStrengthen(t *testing.T) {
	parent := chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: false}

	// weak -> strong with no QC extension is the legal strengthening shape
	require.NoError(t, ValidateClaim(parent, chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: true}, nil))

	// strong -> weak is forbidden
	strongParent := chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: true}
	err := ValidateClaim(strongParent, chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: false}, nil)
	require.ErrorIs(t, err, ErrClaimWeakened)
}

func TestUnchangedClaimForbidsQCExtension(t *testing.T) {
	parent := chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: false}
	qc := &chaintypes.QuorumCertificate{BlockNum: 10, IsStrong: false}
	err := ValidateClaim(parent, parent, qc)
	require.ErrorIs(t, err, ErrUnexpectedQCExtension)
}

func TestChangedClaimRequiresMatchingQCExtension(t *testing.T) {
	parent := chaintypes.QCClaim{LastQCBlockNum: 10, IsStrong: true}
	claim := chaintypes.QCClaim{LastQCBlockNum: 12, IsStrong: true}

	err := ValidateClaim(parent, claim, nil)
	require.ErrorIs(t, err, ErrMissingQCExtension)

	err = ValidateClaim(parent, claim, &chaintypes.QuorumCertificate{BlockNum: 11, IsStrong: true})
	require.ErrorIs(t, err, ErrQCExtensionMismatch)

	err = ValidateClaim(parent, claim, &chaintypes.QuorumCertificate{BlockNum: 12, IsStrong: false})
	require.ErrorIs(t, err, ErrQCExtensionMismatch)

	require.NoError(t, ValidateClaim(parent, claim, &chaintypes.QuorumCertificate{BlockNum: 12, IsStrong: true}))
}

// The transition block claims itself with a weak claim and carries no QC extension:
// its claimed block number changed from the parent's (zero value), so a QC would
// normally be required, but the activation genesis starts from a parent claim equal
// to the transition block itself.
func TestTransitionShapeAccepted(t *testing.T) {
	transition := chaintypes.QCClaim{LastQCBlockNum: 100, IsStrong: false}
	require.NoError(t, ValidateClaim(transition, transition, nil))
}
