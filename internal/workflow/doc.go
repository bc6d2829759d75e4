// Package workflow advances content jobs through the configured pipeline
// stages.
//
// The Graph declares stage ordering, including conditional edges resolved by
// routing predicates over the state record. The Orchestrator walks the graph
// for a single job: it runs each stage under the retry policy, checkpoints
// the record after every transition, honours the job deadline, and polls the
// cancel flag at stage boundaries so interrupted jobs resume from their last
// completed step. The Manager wraps the orchestrator in a worker pool that
// claims pending jobs from the checkpoint store, publishes heartbeats, and
// reclaims jobs whose workers died.
//
// Add new lifecycle stages by extending the state.StageType enum, registering
// a handler, and wiring the node into DefaultGraph; this package is the
// authoritative home for that coordination logic.
package workflow
