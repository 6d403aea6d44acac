// Package agent implements the device agents of the mesh.
//
// # Overview
//
// Each Agent owns exactly one state record and consumes a bounded FIFO
// Inbox. Envelopes are handled one at a time, so an agent's record is never
// mutated by two handlers at once. Concurrency exists only across agents.
//
// # Messages
//
// The message set is closed:
//
//   - StateUpdated{Record}: replace, persist and re-broadcast the owned
//     record; a snapshot of another record is kept as a peer observation
//   - StateRequested{TargetID}: broadcast the current snapshot
//   - FailurePredictionRequested{TargetID, Components}: predict, merge and
//     persist via UpdatePredictions
//   - ParameterOptimizationRequested{TargetID, Params}: overwrite named
//     scalar fields, persist and re-broadcast
//   - EntangledStatesRequested{MinDegree}: query stored records above the
//     threshold and log the result
//
// Targeted messages whose TargetID is not the owned id are logged and
// dropped with state.ErrRoutingMismatch. Wire converts messages to a
// serializable form for JSON and CBOR transports.
//
// # Locking
//
// Handlers take snapshots from the state store (the entry lock is held only
// while copying), mutate the copy, then persist and broadcast with no lock
// held.
//
// # Manager
//
// The Manager starts agents, publishes their inboxes to a Registrar and
// stops them:
//
//	mgr := agent.NewManager(registry, logger)
//	a, err := mgr.Start(ctx, agent.Config{ID: "ahu-1", StateID: 1, Store: st, Peers: b})
//	err = mgr.Stop(ctx, "ahu-1")
//
// Stop closes the inbox; buffered envelopes are still handled before the
// agent loop exits.
//
// # Router
//
// Router picks the agent that should receive an externally submitted
// message: the owner for targeted messages, round-robin otherwise.
package agent
