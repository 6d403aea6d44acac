// Package integrator runs the composite business workflows of hvac-mesh.
//
// The Integrator owns the authoritative peer registry used by the
// broadcaster, installs itself as the correlation engine's notifier, and
// exposes workflows that combine business-store writes, state lookups and
// correlation measurements:
//
//   - RegisterCustomer, RegisterBuilding: single business-store write
//   - RegisterDevice: create the device, link it to its state record, then
//     cross-check it against known devices
//   - LinkDeviceState: verify the state record exists, then update the device
//   - CrossCheck: measure the device against each candidate and stop at the
//     first pair above the notify threshold
//   - RecordCommunication, AnalyzeTranscript, UpdateWealthScore: customer
//     communication and transcript-derived wealth scoring
//   - RegisterServiceTicket: verify device and customer, take a missing
//     priority from the linked state record, then open the ticket
//   - CreateOffer, RecordOfferReaction: sales offers; a signed reaction
//     marks its offer signed
//
// # Failure semantics
//
// Workflows are not transactional. When step N fails the workflow returns a
// *StepError naming the step, and the effects of steps 1..N-1 stay applied.
// Every workflow run is written to the audit log; audit failures are logged
// and never fail the workflow.
//
// # Notifications
//
// When a measurement exceeds the threshold, NotifyHighCorrelation broadcasts
// an EntangledStatesRequested message carrying the degree to every
// registered agent and hands an alert to the configured sink. Both are
// fire-and-forget.
package integrator
