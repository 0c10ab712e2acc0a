// Package pipeline runs the end-of-session pipeline.
//
// A Scheduler submits one Runner.Run per ended session to a bounded goroutine
// pool. Each run waits out a grace period and the room's continuation window
// on a cancellable context held by the session; a continuation arriving in
// that time cancels the run before anything irreversible happens. After the
// commit point the run prepares the session, produces the early artifact,
// claims a title, waits for the annotation tooling to settle, transcodes the
// final artifact, and hands both variants to the publish queue.
package pipeline
