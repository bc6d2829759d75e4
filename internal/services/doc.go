// Package services defines shared utilities consumed by the workflow stage
// handlers and the orchestration engine.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the severity taxonomy the retry policy and orchestrator act on
//     (validation vs transient vs critical).
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
