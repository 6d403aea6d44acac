// Package state holds per-device state records and the write-through cache
// that keeps them consistent with durable storage.
//
// # Records
//
// A Record is owned by exactly one agent and identified by a stable integer
// id. It carries four scalar metrics, a correlation vector of signal samples
// and a nested Parameters block (owning customer, service priority, service
// history, failure predictions and raw sensor readings). The nested block is
// persisted as an opaque JSON document.
//
// # Store
//
// Store is the cache in front of a Backend:
//
//	st := state.NewStore(backend, state.Options{LockTimeout: 250 * time.Millisecond})
//	h, err := st.Get(ctx, 1)          // cache hit or durable read
//	err = st.Put(ctx, rec)            // durable write, then cache update
//	err = st.UpdatePredictions(ctx, 1, preds)
//	recs, err := st.QueryByCorrelationThreshold(ctx, 0.5)
//
// The cache is only updated after the durable write succeeds. A failed Put
// leaves the previous cached value visible.
//
// # Locking
//
// The entry map is guarded by a store-wide RWMutex; each Handle has its own
// timed lock. Neither lock is ever held across a Backend call. When the
// entry lock cannot be acquired within Options.LockTimeout the operation
// fails with ErrLockContention.
//
// Writes to the same id that overlap in time do not update the cache. The
// last of them to finish evicts the entry and the next Get reloads the row
// storage kept. A Get miss that overlaps a write returns an uncached handle.
//
// # Errors
//
// Every error returned by Store is a *Error whose Kind is one of the
// sentinels in errors.go, so callers can branch with errors.Is.
package state
