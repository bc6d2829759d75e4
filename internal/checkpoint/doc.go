// Package checkpoint persists workflow state records so interrupted jobs can
// resume from their last completed step.
//
// The Store interface is implemented twice: a SQLite-backed store used by the
// daemon (WAL mode, schema migrations, busy retries) and an in-memory store
// for tests and one-shot CLI runs. The queue columns (status, current stage,
// cancel flag, heartbeat) are mirrored out of the serialized record so workers
// can claim and reclaim jobs with plain SQL instead of JSON inspection.
package checkpoint
