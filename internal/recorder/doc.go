// Package recorder owns the live-stream recorder subprocesses and the event
// records they post back.
//
// One recorder runs per configured room. Each is told to report lifecycle
// events to the daemon's /process_video endpoint. Reconcile converges the
// running set on the configured room list after a reload.
package recorder
