// Package logging assembles structured slog loggers and formatting helpers used
// across archivist.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with room ids, session ids, pipeline
// stages, and correlation ids. Warnings and errors that an operator may need
// to act on go through WarnWithContext/ErrorWithContext so they always carry
// event_type, error_hint, and impact.
package logging
