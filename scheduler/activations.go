package scheduler

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// ProtocolState is the accumulated effect of every protocol feature activated on the
// block currently being built: codenames recognized so far, plus the handful of fields
// a handler can toggle.
type ProtocolState struct {
	Active                    chaintypes.FeatureSet
	GetSenderEnabled          bool
	ReplaceDeferredEnabled    bool
	WebAuthnKeyEnabled        bool
	WTMsigBlockSignatures     bool
	ActionReturnValueEnabled  bool
	ConfigurableWASMLimits    bool
	BlockchainParametersV2    bool
	GetCodeHashEnabled        bool
	GetBlockNumEnabled        bool
	CryptoPrimitivesEnabled   bool
	BLSPrimitivesEnabled      bool
	DisableDeferredTrxsStage2 bool
	InstantFinality           bool
}

// ActivationHandler applies one protocol feature's effect to ps. Handlers are
// idempotent: activating an already-active feature must be a no-op.
type ActivationHandler func(ps *ProtocolState) error

var handlers = map[string]ActivationHandler{
	"preactivate_feature": func(ps *ProtocolState) error { return nil }, // marker feature; no state of its own
	"get_sender": func(ps *ProtocolState) error {
		ps.GetSenderEnabled = true
		return nil
	},
	"replace_deferred": func(ps *ProtocolState) error {
		ps.ReplaceDeferredEnabled = true
		return nil
	},
	"webauthn_key": func(ps *ProtocolState) error {
		ps.WebAuthnKeyEnabled = true
		return nil
	},
	"wtmsig_block_signatures": func(ps *ProtocolState) error {
		ps.WTMsigBlockSignatures = true
		return nil
	},
	"action_return_value": func(ps *ProtocolState) error {
		ps.ActionReturnValueEnabled = true
		return nil
	},
	"configurable_wasm_limits": func(ps *ProtocolState) error {
		ps.ConfigurableWASMLimits = true
		return nil
	},
	"blockchain_parameters": func(ps *ProtocolState) error {
		ps.BlockchainParametersV2 = true
		return nil
	},
	"get_code_hash": func(ps *ProtocolState) error {
		ps.GetCodeHashEnabled = true
		return nil
	},
	"get_block_num": func(ps *ProtocolState) error {
		ps.GetBlockNumEnabled = true
		return nil
	},
	"crypto_primitives": func(ps *ProtocolState) error {
		ps.CryptoPrimitivesEnabled = true
		return nil
	},
	"bls_primitives": func(ps *ProtocolState) error {
		ps.BLSPrimitivesEnabled = true
		return nil
	},
	"disable_deferred_trxs_stage_2": func(ps *ProtocolState) error {
		ps.DisableDeferredTrxsStage2 = true
		return nil
	},
	"instant_finality": func(ps *ProtocolState) error {
		ps.InstantFinality = true
		return nil
	},
}

// featureDeps maps a codename to the codenames that must already be active, or appear
// earlier in the same activation list, before it may activate.
var featureDeps = map[string]mapset.Set[string]{
	"disable_deferred_trxs_stage_2": mapset.NewThreadUnsafeSet("replace_deferred"),
	"instant_finality":              mapset.NewThreadUnsafeSet("wtmsig_block_signatures"),
}

// Activate applies every feature in newFeatures to ps, resolving each digest to a
// codename via cfg.KnownFeatures. An unknown digest, a codename without a handler, or
// an unmet dependency is rejected with an error, never silently ignored; StartBlock
// reports that error as KindProtocolFeatureBadBlock.
func Activate(cfg Config, ps *ProtocolState, newFeatures []chaintypes.FeatureDigest) error {
	activated := mapset.NewThreadUnsafeSet[string]()
	for _, digest := range ps.Active {
		if codename, known := cfg.KnownFeatures[digest]; known {
			activated.Add(codename)
		}
	}

	for _, digest := range newFeatures {
		codename, known := cfg.KnownFeatures[digest]
		if !known {
			return fmt.Errorf("scheduler: unknown protocol feature digest %x", digest)
		}
		handler, ok := handlers[codename]
		if !ok {
			return fmt.Errorf("scheduler: no activation handler registered for %q", codename)
		}
		if deps, ok := featureDeps[codename]; ok {
			if missing := deps.Difference(activated); !missing.IsEmpty() {
				return fmt.Errorf("scheduler: activating %q: dependencies not yet active: %v", codename, missing.ToSlice())
			}
		}
		if err := handler(ps); err != nil {
			return fmt.Errorf("scheduler: activating %q: %w", codename, err)
		}
		activated.Add(codename)
		if !ps.Active.Contains(digest) {
			ps.Active = append(ps.Active, digest)
		}
	}
	return nil
}
