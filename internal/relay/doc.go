// Package relay bridges broadcasts between hvac-mesh nodes over NATS.
//
// A Relay is registered as a broadcast.Forwarder: every locally originated
// broadcast is encoded as a CBOR Packet and published on
// "<prefix>.<kind>". Each node subscribes to "<prefix>.>" and hands packets
// from other nodes to its broadcaster's Deliver, which reaches local peers
// only, so a relayed message is never published again.
//
// Packets are fingerprinted with BLAKE3 and remembered in a TTL-bounded seen
// cache; a packet redelivered by the transport is dropped instead of being
// applied twice.
package relay
