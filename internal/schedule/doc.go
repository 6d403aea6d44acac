// Package schedule runs the periodic correlation sweep.
//
// The sweep lists every registered device and cross-checks each one against
// its candidates through the integrator, so high correlations are noticed
// even when no device was registered recently. Runs are singleton: a sweep
// still in progress when the next tick arrives causes that tick to be
// skipped.
package schedule
