package media

import (
	"fmt"
	"os"
	"strings"
)

// WriteConcatManifest writes an ffmpeg concat demuxer manifest listing the
// segments in order.
func WriteConcatManifest(path string, segments []string) error {
	lines := make([]string, 0, len(segments))
	for _, segment := range segments {
		lines = append(lines, "file '"+strings.ReplaceAll(segment, "'", `'\''`)+"'")
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	return nil
}
