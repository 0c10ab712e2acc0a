// Package services defines shared utilities consumed by the session pipeline,
// the stage workers, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, room IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures as
//     validation, configuration, or transient problems.
//
// Use these helpers when wiring new collaborators so error handling and
// observability stay uniform across the pipeline.
package services
