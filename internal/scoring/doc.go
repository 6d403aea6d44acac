// Package scoring rates communication transcripts.
//
// KeywordScorer counts how many of a fixed set of keywords appear in a
// transcript and reports the fraction found as a score in [0, 1]. The
// integrator uses it to derive a customer's wealth score from phone call
// transcripts.
package scoring
