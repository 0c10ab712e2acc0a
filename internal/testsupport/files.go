package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteSegment creates a recorded segment (video plus annotation file) under
// storageDir at the recorder-relative path and returns the absolute video
// path. The video body is size bytes of filler; size <= 0 writes one byte.
func WriteSegment(t testing.TB, storageDir, relativePath string, size int) string {
	t.Helper()

	video := filepath.Join(storageDir, relativePath)
	if err := os.MkdirAll(filepath.Dir(video), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", video, err)
	}
	if size <= 0 {
		size = 1
	}
	body := make([]byte, size)
	for i := range body {
		body[i] = 0x42
	}
	if err := os.WriteFile(video, body, 0o644); err != nil {
		t.Fatalf("write %s: %v", video, err)
	}
	annotations := strings.TrimSuffix(video, filepath.Ext(video)) + ".xml"
	if err := os.WriteFile(annotations, []byte("<i></i>"), 0o644); err != nil {
		t.Fatalf("write %s: %v", annotations, err)
	}
	return video
}

// WriteText writes a small text file, creating parent directories.
func WriteText(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
