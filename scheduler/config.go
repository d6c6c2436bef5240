package scheduler

import (
	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chaintypes"
	"github.com/ledgerd-io/ledgerd/merkle"
)

// Config bundles the enumerated limits of chainapi.Limits with the scheduler-local
// knobs that are not part of that boundary type: the feature digests this build
// recognizes, and the merkle algorithm selector.
type Config struct {
	Limits         chainapi.Limits
	KnownFeatures  map[chaintypes.FeatureDigest]string // digest -> codename, e.g. "instant_finality"
	MerkleAlgoByFeature func(active chaintypes.FeatureSet) merkle.Algorithm
}
