package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotReady is returned by Ledger operations that reference state which
// has not been recorded yet.
var ErrNotReady = errors.New("not ready")

// Ledger owns the save record for the running process. Every mutation builds
// the next record, persists it through the store, and only then makes it
// visible, all while holding the single ledger lock.
type Ledger struct {
	mu    sync.Mutex
	store *Store
	rec   Record
	now   func() time.Time
}

// NewLedger loads the save record from store.
func NewLedger(ctx context.Context, store *Store) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("state ledger requires a store")
	}
	rec, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load save record: %w", err)
	}
	return &Ledger{store: store, rec: rec, now: time.Now}, nil
}

// commit persists next and swaps it in. Callers must hold l.mu.
func (l *Ledger) commit(ctx context.Context, next Record) error {
	if err := l.store.Save(ctx, next); err != nil {
		return fmt.Errorf("flush save record: %w", err)
	}
	l.rec = next
	return nil
}

// Snapshot returns a deep copy of the current record.
func (l *Ledger) Snapshot() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rec.Clone()
}

// ArtifactID returns the published artifact id for a session.
func (l *Ledger) ArtifactID(sessionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.rec.Artifacts[sessionID]
	return id, ok
}

// RecordArtifact stores the artifact id for a session and reports whether
// this was the session's first recorded publish.
func (l *Ledger) RecordArtifact(ctx context.Context, sessionID, artifactID string) (bool, error) {
	if sessionID == "" || artifactID == "" {
		return false, errors.New("record artifact: session id and artifact id are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, existed := l.rec.Artifacts[sessionID]
	next := l.rec.Clone()
	next.Artifacts[sessionID] = artifactID
	if err := l.commit(ctx, next); err != nil {
		return false, err
	}
	return !existed, nil
}

// Title returns the persisted title for a session.
func (l *Ledger) Title(sessionID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	title, ok := l.rec.Titles[sessionID]
	return title, ok
}

// TitlesExcept lists every persisted title that belongs to another session,
// sorted for deterministic collision checks.
func (l *Ledger) TitlesExcept(sessionID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return titlesExcept(l.rec.Titles, sessionID)
}

func titlesExcept(titles map[string]string, sessionID string) []string {
	out := make([]string, 0, len(titles))
	for id, title := range titles {
		if id == sessionID {
			continue
		}
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}

// RecordTitle persists the title chosen for a session.
func (l *Ledger) RecordTitle(ctx context.Context, sessionID, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	next.Titles[sessionID] = title
	return l.commit(ctx, next)
}

// ClaimTitle resolves a title against every other session's title and
// persists the result in one step, so two pipelines finishing together cannot
// pick the same title.
func (l *Ledger) ClaimTitle(ctx context.Context, sessionID string, resolve func(existing []string) string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	title := resolve(titlesExcept(l.rec.Titles, sessionID))
	next := l.rec.Clone()
	next.Titles[sessionID] = title
	if err := l.commit(ctx, next); err != nil {
		return "", err
	}
	return title, nil
}

// CommentTasks returns the active comment tasks in queue order.
func (l *Ledger) CommentTasks() []CommentTask {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CommentTask(nil), l.rec.Comments...)
}

// AppendCommentTasks adds tasks to the active comment set. Tasks without an
// id are assigned one.
func (l *Ledger) AppendCommentTasks(ctx context.Context, tasks ...CommentTask) ([]CommentTask, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	added := make([]CommentTask, 0, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = l.now()
		}
		next.Comments = append(next.Comments, task)
		added = append(added, task)
	}
	if err := l.commit(ctx, next); err != nil {
		return nil, err
	}
	return added, nil
}

// CompleteCommentTasks removes the given tasks from the active set.
func (l *Ledger) CompleteCommentTasks(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	done := idSet(ids)
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	next.Comments = next.Comments[:0]
	for _, task := range l.rec.Comments {
		if _, ok := done[task.ID]; ok {
			continue
		}
		next.Comments = append(next.Comments, task)
	}
	return l.commit(ctx, next)
}

// CaptionTasks returns the active caption tasks in queue order.
func (l *Ledger) CaptionTasks() []CaptionTask {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CaptionTask(nil), l.rec.Captions...)
}

// AppendCaptionTasks adds tasks to the active caption set. Tasks without an
// id are assigned one.
func (l *Ledger) AppendCaptionTasks(ctx context.Context, tasks ...CaptionTask) ([]CaptionTask, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	added := make([]CaptionTask, 0, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		if task.CreatedAt.IsZero() {
			task.CreatedAt = l.now()
		}
		next.Captions = append(next.Captions, task)
		added = append(added, task)
	}
	if err := l.commit(ctx, next); err != nil {
		return nil, err
	}
	return added, nil
}

// SetCaptionTrack records a track id resolved after the task was queued.
func (l *Ledger) SetCaptionTrack(ctx context.Context, taskID, trackID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	for i := range next.Captions {
		if next.Captions[i].ID == taskID {
			next.Captions[i].TrackID = trackID
			return l.commit(ctx, next)
		}
	}
	return fmt.Errorf("caption task %s: %w", taskID, ErrNotReady)
}

// CompleteCaptionTasks removes the succeeded tasks and every task they
// supersede.
func (l *Ledger) CompleteCaptionTasks(ctx context.Context, succeeded ...string) error {
	if len(succeeded) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.rec.Clone()
	next.Captions = Supersede(l.rec.Captions, succeeded)
	return l.commit(ctx, next)
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
