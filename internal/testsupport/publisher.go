package testsupport

import (
	"context"
	"fmt"
	"sync"

	"archivist/internal/publisher"
)

// FakePublisher records publisher calls. Fail hooks decide per call whether
// it fails; nil hooks always succeed.
type FakePublisher struct {
	mu sync.Mutex

	Uploads  []publisher.Upload
	Comments []publisher.Comment
	Captions []publisher.Caption
	Lookups  int

	PublishErr func(upload publisher.Upload, attempt int) error
	CommentErr func(comment publisher.Comment) error
	CaptionErr func(caption publisher.Caption) error
	TrackErr   func(artifactID string) error

	// Published receives every publish attempt, successful or not.
	Published chan publisher.Upload
}

// NewFakePublisher returns a fake whose Published channel is buffered.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Published: make(chan publisher.Upload, 64)}
}

func (f *FakePublisher) Publish(_ context.Context, upload publisher.Upload) (string, error) {
	f.mu.Lock()
	f.Uploads = append(f.Uploads, upload)
	attempt := len(f.Uploads)
	hook := f.PublishErr
	f.mu.Unlock()

	select {
	case f.Published <- upload:
	default:
	}
	if hook != nil {
		if err := hook(upload, attempt); err != nil {
			return "", err
		}
	}
	if upload.ArtifactID != "" {
		return upload.ArtifactID, nil
	}
	return "art-" + upload.SessionID, nil
}

func (f *FakePublisher) LookupTrackID(_ context.Context, _ string, artifactID string) (string, error) {
	f.mu.Lock()
	f.Lookups++
	hook := f.TrackErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(artifactID); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("track-%s", artifactID), nil
}

func (f *FakePublisher) PostComment(_ context.Context, comment publisher.Comment) error {
	f.mu.Lock()
	hook := f.CommentErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(comment); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.Comments = append(f.Comments, comment)
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) PostCaption(_ context.Context, caption publisher.Caption) error {
	f.mu.Lock()
	hook := f.CaptionErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(caption); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.Captions = append(f.Captions, caption)
	f.mu.Unlock()
	return nil
}

// Snapshot returns copies of the recorded calls.
func (f *FakePublisher) Snapshot() (uploads []publisher.Upload, comments []publisher.Comment, captions []publisher.Caption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publisher.Upload(nil), f.Uploads...),
		append([]publisher.Comment(nil), f.Comments...),
		append([]publisher.Caption(nil), f.Captions...)
}
