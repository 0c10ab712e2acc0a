package logging

import (
	"io"
	"log/slog"
)

// NewJSONHandler returns a handler writing one JSON object per record using
// the ts/level/msg keys shared by every archivist log file.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	return newJSONHandler(w, lvl, false)
}
