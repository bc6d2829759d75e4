// Package state defines the versioned job record carried through a pipeline
// run and the error ledger attached to it.
//
// A Record is exclusively owned by the orchestrator for the duration of a run:
// stages mutate it through the record passed to them, never through shared
// instance fields, and every field round-trips losslessly through JSON so a
// checkpointed record can be reloaded after a process restart. Artifacts are
// opaque to this package; the core only guarantees they survive
// serialization.
//
// Mutation helpers (AppendError, MarkStepComplete, SetProgress) enforce the
// record invariants: job IDs never change, the error ledger is append-only,
// and overall progress and completed steps are monotonically non-decreasing
// within a run.
package state
