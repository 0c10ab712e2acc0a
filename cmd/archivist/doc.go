// Package main implements the archivist command-line client.
//
// The CLI inspects configuration, preflight health, and the save record, and
// talks to a running archivistd over its HTTP API for live status. Commands
// that only need local files work without a daemon.
package main
