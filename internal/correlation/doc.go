// Package correlation scores how strongly two devices' signal vectors move
// together and records every measurement.
//
// The degree of two vectors a and b is the mean of |a[i]*b[i]| over the
// first min(len(a), len(b)) indices, and 0 when either vector is empty. It
// is symmetric. Results are not clamped: callers are expected to supply
// vectors normalized to [-1, 1], which keeps the degree within [0, 1].
//
// Engine.ComputeAndStore resolves both devices to their state records,
// computes the degree, appends a Record to the RecordStore and, when the
// degree is strictly above NotifyThreshold, calls the Notifier.
package correlation
