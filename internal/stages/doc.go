// Package stages provides the production handlers for the content pipeline.
//
// Each handler reads the artifacts earlier stages attached to the state
// record, does its own deterministic work, and attaches its result as a new
// artifact. Heavy external services (narration synthesis) sit behind small
// interfaces so tests inject fakes and the circuit breaker has a single
// boundary to guard. DefaultRegistry wires every handler for the daemon and
// the one-shot CLI runner.
package stages
