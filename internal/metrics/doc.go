// Package metrics defines the observability hooks used across hvac-mesh.
//
// Recorder satisfies the Observer interfaces of the state cache, agents,
// broadcaster, correlation engine and relay, so one value can be injected
// everywhere. NoopRecorder is the default; PrometheusRecorder exports
// counters and histograms under the "hvac" namespace and HTTPHandler serves
// them for scraping.
package metrics
