// Package registry routes recorder events to sessions.
//
// The registry owns the mapping from recorder session ids to Session values
// and decides whether a SessionStarted event opens a new session or continues
// one that ended within the room's continuation window. Events are handled
// one at a time from a single goroutine (Run); only the room table can be
// swapped concurrently, by SetRooms on a configuration reload.
package registry
