// Package api defines the wire-format types served by the daemon's HTTP API
// and a small client the CLI uses to read them.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Converters translate the save record, live sessions, and workflow status
// into these types so the CLI never depends on internal models.
package api
