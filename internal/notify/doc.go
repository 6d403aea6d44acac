// Package notify delivers high-correlation alerts to operators.
//
// A Sink receives an Alert after the integrator has told every registered
// agent about a strongly correlated device pair. LogSink writes the alert to
// a slog.Logger; MatrixSink posts it to a Matrix room through mautrix. Multi
// fans one alert out to several sinks.
package notify
