package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/fileutil"
	"archivist/internal/services"
)

// localBackend archives artifacts under archiveDir/<room>/<uuid>/.
type localBackend struct {
	dir string
}

func newLocalBackend(account config.Account) *localBackend {
	return &localBackend{dir: account.ArchiveDir}
}

func (l *localBackend) artifactDir(artifactID string) (string, error) {
	room, id, err := splitArtifactID(artifactID)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, room, id), nil
}

func (l *localBackend) publish(_ context.Context, upload Upload) (string, error) {
	artifactID := upload.ArtifactID
	if artifactID == "" {
		artifactID = strconv.FormatInt(upload.RoomID, 10) + "/" + uuid.NewString()
	}
	dir, err := l.artifactDir(artifactID)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "publish", "archive", "", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "archive", dir, err)
	}

	if err := fileutil.CopyFileVerified(upload.Video, filepath.Join(dir, videoObject(upload))); err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "copy video", upload.Video, err)
	}
	if upload.Thumbnail != "" {
		if err := fileutil.CopyFileVerified(upload.Thumbnail, filepath.Join(dir, objectThumbnail)); err != nil {
			return "", services.Wrap(services.ErrTransient, "publish", "copy thumbnail", upload.Thumbnail, err)
		}
	}
	if upload.Annotations != "" {
		if err := writeCompressed(upload.Annotations, filepath.Join(dir, annotationsObject(upload))); err != nil {
			return "", services.Wrap(services.ErrTransient, "publish", "compress annotations", upload.Annotations, err)
		}
	}
	meta, err := json.MarshalIndent(metadataFor(upload), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := fileutil.WriteFile(filepath.Join(dir, objectMetadata), meta); err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "write metadata", dir, err)
	}
	return artifactID, nil
}

// lookupTrackID derives the track from the current metadata contents, so a
// replacement upload yields a new track.
func (l *localBackend) lookupTrackID(_ context.Context, artifactID string) (string, error) {
	dir, err := l.artifactDir(artifactID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, objectMetadata))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrTrackPending
		}
		return "", services.Wrap(services.ErrTransient, "caption", "lookup track", artifactID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

func (l *localBackend) postComment(_ context.Context, artifactID, text string) error {
	dir, err := l.artifactDir(artifactID)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFile(filepath.Join(dir, objectComment), []byte(text+"\n")); err != nil {
		return services.Wrap(services.ErrTransient, "comment", "write", dir, err)
	}
	return nil
}

func (l *localBackend) postCaption(_ context.Context, artifactID, trackID, path string) error {
	dir, err := l.artifactDir(artifactID)
	if err != nil {
		return err
	}
	if err := fileutil.CopyFileVerified(path, filepath.Join(dir, trackID+"."+objectCaption)); err != nil {
		return services.Wrap(services.ErrTransient, "caption", "copy", path, err)
	}
	return nil
}

func writeCompressed(src, dst string) error {
	return fileutil.WriteStream(dst, func(w io.Writer) error {
		return compressFile(w, src)
	})
}
