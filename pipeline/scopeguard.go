package pipeline

import "github.com/ledgerd-io/ledgerd/chainapi"

// restorePoint snapshots the block budget as it stood before a push, so a failed push
// can hand it back unchanged. The nested undo session is rolled back by scopeGuard
// itself; subjective billing charges made by a failed push are not restored.
type restorePoint struct {
	budget Budget
}

// scopeGuard wraps a push's nested undo session and arms a rollback; callers call
// commit() on the success path, and rely on the deferred rollback otherwise.
type scopeGuard struct {
	session   chainapi.UndoSession
	before    restorePoint
	committed bool
}

func newScopeGuard(session chainapi.UndoSession, budget Budget) *scopeGuard {
	return &scopeGuard{session: session, before: restorePoint{budget: budget}}
}

// commit squashes the nested session into its parent and disarms the rollback.
func (g *scopeGuard) commit() error {
	if err := g.session.Squash(); err != nil {
		return err
	}
	g.committed = true
	return nil
}

// rollback undoes the nested session unless commit already ran; safe to call from a
// defer unconditionally.
func (g *scopeGuard) rollback() error {
	if g.committed {
		return nil
	}
	return g.session.Undo()
}

// restoreBudget hands back the budget value as it was before this push began, for the
// caller to reinstate on failure.
func (g *scopeGuard) restoreBudget() Budget { return g.before.budget }
