// Package pool hands out session handles over a single storage engine.
//
// A Pool initializes the engine at most once, no matter how many callers race
// to Initialize. Callers check a Handle out, run record operations on it, and
// check it back in on every exit path; With does this for a function:
//
//	err := p.With(ctx, func(h *pool.Handle) error {
//	    if _, err := h.DeleteAll(ctx, "model.Person"); err != nil {
//	        return err
//	    }
//	    _, err := h.InsertBatch(ctx, "model.Person", records)
//	    return err
//	})
//
// In TxModeOperation every handle operation commits on its own. In
// TxModeHandle a handle owns one transaction from checkout to checkin, so the
// delete and insert above either both happen or neither does.
package pool
