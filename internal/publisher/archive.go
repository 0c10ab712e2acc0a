package publisher

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Object names inside one archived artifact.
const (
	objectMetadata  = "metadata.json"
	objectThumbnail = "thumbnail.png"
	objectComment   = "comment.txt"
	objectCaption   = "captions.srt"
)

func videoObject(upload Upload) string {
	return upload.Variant.String() + ".mp4"
}

func annotationsObject(upload Upload) string {
	return upload.Variant.String() + ".xml.zst"
}

// artifactPrefix is the relative location of an artifact inside an archive.
func artifactPrefix(prefix string, roomID int64, artifactID string) string {
	parts := []string{strconv.FormatInt(roomID, 10), artifactID}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append([]string{p}, parts...)
	}
	return path.Join(parts...)
}

// splitArtifactID extracts the room and uuid from archive artifact ids of
// the form "<room>/<uuid>".
func splitArtifactID(artifactID string) (room, id string, err error) {
	room, id, ok := strings.Cut(artifactID, "/")
	if !ok || room == "" || id == "" {
		return "", "", fmt.Errorf("malformed archive artifact id %q", artifactID)
	}
	return room, id, nil
}

func newZstdWriter(w io.Writer) (*zstd.Encoder, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
}

// compressFile writes a zstd-compressed copy of src into w.
func compressFile(w io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	enc, err := newZstdWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
