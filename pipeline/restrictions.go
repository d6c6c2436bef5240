package pipeline

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd-io/ledgerd/chainapi"
	"github.com/ledgerd-io/ledgerd/chainerr"
	"github.com/ledgerd-io/ledgerd/chaintypes"
)

// Restrictions is the node-local actor/contract/action/key screen applied before any
// execution is attempted. It never influences consensus: a block received from a peer
// is replayed without it, and a transaction it refuses is simply dropped locally.
type Restrictions struct {
	actorWhitelist    mapset.Set[chaintypes.AccountName]
	actorBlacklist    mapset.Set[chaintypes.AccountName]
	contractWhitelist mapset.Set[chaintypes.AccountName]
	contractBlacklist mapset.Set[chaintypes.AccountName]
	actionBlacklist   mapset.Set[[2]chaintypes.AccountName]
	keyBlacklist      mapset.Set[string]
}

// NewRestrictions builds the screen from the configured whitelist/blacklist options.
// Empty whitelists admit everyone; empty blacklists refuse no one.
func NewRestrictions(limits chainapi.Limits) *Restrictions {
	r := &Restrictions{
		actorWhitelist:    mapset.NewSet(limits.ActorWhitelist...),
		actorBlacklist:    mapset.NewSet(limits.ActorBlacklist...),
		contractWhitelist: mapset.NewSet(limits.ContractWhitelist...),
		contractBlacklist: mapset.NewSet(limits.ContractBlacklist...),
		actionBlacklist:   mapset.NewSet(limits.ActionBlacklist...),
		keyBlacklist:      mapset.NewSet[string](),
	}
	for _, k := range limits.KeyBlacklist {
		r.keyBlacklist.Add(string(k))
	}
	return r
}

// Check screens one transaction's authorizers, receivers, and recovered keys. A
// refusal is tagged KindAuthorization: dropped, surfaced to the submitter, never
// block-rejecting.
func (r *Restrictions) Check(meta *chaintypes.TransactionMeta, actions []chainapi.ActionContext) error {
	if !r.actorWhitelist.IsEmpty() && !r.actorWhitelist.Contains(meta.FirstAuthorizer) {
		return chainerr.New(chainerr.KindAuthorization, "restrictions: first authorizer not on actor whitelist")
	}
	if r.actorBlacklist.Contains(meta.FirstAuthorizer) {
		return chainerr.New(chainerr.KindAuthorization, "restrictions: first authorizer is blacklisted")
	}
	for _, key := range meta.RecoveredKeys {
		if r.keyBlacklist.Contains(string(key)) {
			return chainerr.New(chainerr.KindAuthorization, "restrictions: transaction signed by a blacklisted key")
		}
	}
	for _, act := range actions {
		if !r.contractWhitelist.IsEmpty() && !r.contractWhitelist.Contains(act.Receiver) {
			return chainerr.New(chainerr.KindAuthorization, "restrictions: receiver not on contract whitelist")
		}
		if r.contractBlacklist.Contains(act.Receiver) {
			return chainerr.New(chainerr.KindAuthorization, "restrictions: receiver contract is blacklisted")
		}
		for _, auth := range act.Authorizations {
			if r.actionBlacklist.Contains([2]chaintypes.AccountName{act.Receiver, auth}) {
				return chainerr.New(chainerr.KindAuthorization, "restrictions: (receiver, actor) pair is blacklisted")
			}
		}
	}
	return nil
}
