package session

import (
	"path/filepath"
	"strings"
)

// Segment is one closed recording file belonging to a session.
type Segment struct {
	// BasePath is the absolute path of the recording without its extension.
	BasePath  string
	SessionID string
	RoomID    int64
	// ReportedDuration is the duration the recorder announced; Duration is
	// what probing the file measured.
	ReportedDuration float64
	Duration         float64
	Width            int
	Height           int
}

// NewSegment builds a segment from a recorder-relative file path.
func NewSegment(storageDir, relativePath, sessionID string, roomID int64, reported float64) Segment {
	path := relativePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(storageDir, path)
	}
	path = filepath.Clean(path)
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return Segment{
		BasePath:         base,
		SessionID:        sessionID,
		RoomID:           roomID,
		ReportedDuration: reported,
	}
}

// FLVPath is the recorded video file.
func (s Segment) FLVPath() string { return s.BasePath + ".flv" }

// XMLPath is the annotation (danmaku) file the recorder writes alongside the video.
func (s Segment) XMLPath() string { return s.BasePath + ".xml" }
