// Package gateway orchestrates the hvac-gateway server components.
//
// # Overview
//
// The Gateway owns the storage layer, the state store, the agent manager,
// the broadcaster, the correlation engine and the integrator workflows.
// It exposes them over an HTTP JSON API and the hvac.v1.Control gRPC
// service, and optionally bridges broadcasts to other gateways over NATS.
//
// # HTTP API
//
//   - GET /health, GET /health/ready - liveness and readiness
//   - GET /api/states, GET|PUT /api/states/{id} - state records
//   - POST /api/states/{id}/predictions - replace failure predictions
//   - GET /api/states/{id}/report - HTML or Markdown (?format=md) report
//   - GET /api/agents, POST /api/agents/{id}/messages - agent inboxes
//   - POST /api/messages - route by message target
//   - POST /api/broadcast - fan out to every agent and relay peers
//   - /api/customers, /api/buildings, /api/devices, /api/communications
//   - POST /api/correlations, GET /api/devices/{id}/correlations
//   - POST /api/tickets - open a service ticket against a device
//   - POST /api/offers, GET /api/offers/{id}, POST /api/offers/{id}/reactions
//   - GET /api/map, GET /api/dashboard, GET /api/audit, POST /api/sweep
//
// Reads need any valid token; writes need the admin role. Without
// auth.jwt_secret every caller is treated as an anonymous admin.
//
// # gRPC
//
// hvac.v1.Control is registered from a hand-written service descriptor and
// carries JSON payloads (content subtype "json"). ControlClient wraps the
// calls. The standard health service reports SERVING once agents are up.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run stops everything through Shutdown before returning.
package gateway
