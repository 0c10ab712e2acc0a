// Package session models one continuous recording period: its segments,
// metadata, derived artifact paths, and the media stages that turn the
// segments into publishable artifacts.
//
// A Session is shared between the event loop, which adds segments and end
// times, and the end-of-session pipeline, which reads them; all state is
// guarded by the session's own mutex. The session also holds the cancel
// function of its pending pipeline so a continuation can abort it before it
// commits.
package session
