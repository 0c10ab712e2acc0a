// Package daemon coordinates the long-running archivist process.
//
// It wires the session registry, the stage workers, the pipeline scheduler,
// and the recorder supervisor into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon owns the HTTP server
// recorders post events to and the read-only status endpoints the CLI uses.
//
// Keep orchestration logic here: domain behavior lives in the registry,
// pipeline, and workflow packages while the daemon focuses on startup,
// shutdown, reload, and event intake.
package daemon
