package merkle

import "golang.org/x/sync/errgroup"

// ParallelRoots computes the transaction-receipt and action-receipt roots concurrently,
// the way pending.Builder.Assemble does. An empty action-digest set yields the zero
// action root, since a block's receipts need not carry any action digests; an empty
// transaction-digest set is an error (ErrEmptyLeaves), as it is for Root.
func ParallelRoots(algo Algorithm, trxDigests, actionDigests [][32]byte) (trxRoot, actionRoot [32]byte, err error) {
	var g errgroup.Group
	g.Go(func() error {
		r, e := Root(algo, trxDigests)
		trxRoot = r
		return e
	})
	g.Go(func() error {
		if len(actionDigests) == 0 {
			return nil
		}
		r, e := Root(algo, actionDigests)
		actionRoot = r
		return e
	})
	if err = g.Wait(); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return trxRoot, actionRoot, nil
}
