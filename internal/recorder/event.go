package recorder

import (
	"fmt"
	"strings"
	"time"
)

// Recognized event types.
const (
	EventSessionStarted = "SessionStarted"
	EventFileOpening    = "FileOpening"
	EventFileClosed     = "FileClosed"
	EventSessionEnded   = "SessionEnded"
	EventStreamStarted  = "StreamStarted"
	EventStreamEnded    = "StreamEnded"
)

// Event is the webhook record posted by a recorder.
type Event struct {
	EventType      string    `json:"EventType" binding:"required"`
	EventTimestamp string    `json:"EventTimestamp" binding:"required"`
	EventID        string    `json:"EventId"`
	EventData      EventData `json:"EventData"`
}

// EventData holds the room snapshot and the type-specific fields.
type EventData struct {
	SessionID      string `json:"SessionId"`
	RoomID         int64  `json:"RoomId"`
	ShortID        int64  `json:"ShortId"`
	Name           string `json:"Name"`
	Title          string `json:"Title"`
	AreaNameParent string `json:"AreaNameParent"`
	AreaNameChild  string `json:"AreaNameChild"`
	Recording      bool   `json:"Recording"`
	Streaming      bool   `json:"Streaming"`
	// FileClosed only.
	RelativePath  string  `json:"RelativePath"`
	FileSize      int64   `json:"FileSize"`
	Duration      float64 `json:"Duration"`
	FileOpenTime  string  `json:"FileOpenTime"`
	FileCloseTime string  `json:"FileCloseTime"`
}

// Timestamp parses EventTimestamp. Recorders emit RFC 3339 with up to seven
// fractional digits and a zone offset.
func (e Event) Timestamp() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(e.EventTimestamp))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event timestamp %q: %w", e.EventTimestamp, err)
	}
	return ts, nil
}
