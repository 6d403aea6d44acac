// Package broadcast fans agent messages out to every registered peer inbox.
//
// Registry is the authoritative mapping from agent id to inbox. Broadcaster
// copies the current targets under a read lock and sends outside it, so a
// slow peer never blocks registration. Each target receives its own deep
// copy of the message.
//
// Delivery is at-most-once. In ModeBlock a send waits up to the configured
// timeout for inbox space; in ModeDrop it never waits. Failed deliveries
// are logged and counted but never abort the remaining sends.
//
// Forwarders receive every locally originated broadcast once, after local
// delivery; the cluster relay uses this to publish snapshots to other nodes.
package broadcast
