package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"archivist/internal/config"
	"archivist/internal/media"
	"archivist/internal/services"
	"archivist/internal/testsupport"
)

func minutes(n int) *int { return &n }

func newSession(t *testing.T) *Session {
	t.Helper()
	room := config.Room{ID: 7, ContinueSessionMinutes: minutes(5)}
	start := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	return New("s1", room, Metadata{Name: "alice", Title: "live"}, start)
}

func TestAddVideoRejectsZeroResolution(t *testing.T) {
	s := newSession(t)
	proc := testsupport.NewFakeProcessor()
	seg := NewSegment("/storage", "7/a.flv", "s1", 7, 60)
	proc.Probes[seg.FLVPath()] = media.Probe{Duration: 10, Width: 0, Height: 0}

	err := s.AddVideo(context.Background(), proc, seg)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(s.Segments()) != 0 {
		t.Fatalf("rejected segment was appended")
	}
}

func TestAddVideoRejectsMismatchedResolution(t *testing.T) {
	s := newSession(t)
	proc := testsupport.NewFakeProcessor()
	first := NewSegment("/storage", "7/a.flv", "s1", 7, 60)
	second := NewSegment("/storage", "7/b.flv", "s1", 7, 60)
	proc.Probes[first.FLVPath()] = media.Probe{Duration: 10, Width: 1920, Height: 1080}
	proc.Probes[second.FLVPath()] = media.Probe{Duration: 10, Width: 1280, Height: 720}

	if err := s.AddVideo(context.Background(), proc, first); err != nil {
		t.Fatalf("first segment: %v", err)
	}
	if err := s.AddVideo(context.Background(), proc, second); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := s.Duration(); got != 10 {
		t.Fatalf("duration = %v, want 10", got)
	}
	if w, h := s.Resolution(); w != 1920 || h != 1080 {
		t.Fatalf("resolution = %dx%d", w, h)
	}
}

func TestAddVideoAccumulatesDuration(t *testing.T) {
	s := newSession(t)
	proc := testsupport.NewFakeProcessor()
	for _, name := range []string{"7/a.flv", "7/b.flv", "7/c.flv"} {
		if err := s.AddVideo(context.Background(), proc, NewSegment("/storage", name, "s1", 7, 0)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	if got := s.Duration(); got != 180 {
		t.Fatalf("duration = %v, want 180", got)
	}
	paths, err := s.Paths()
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	if paths.EarlyVideo != "/storage/7/a.all.mp4" {
		t.Fatalf("early video = %q", paths.EarlyVideo)
	}
}

func TestPathsWithoutSegments(t *testing.T) {
	if _, err := newSession(t).Paths(); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestNewSegmentKeepsAbsolutePath(t *testing.T) {
	seg := NewSegment("/storage", "/elsewhere/x.flv", "s", 1, 0)
	if seg.BasePath != "/elsewhere/x" {
		t.Fatalf("base = %q", seg.BasePath)
	}
	if seg.XMLPath() != "/elsewhere/x.xml" {
		t.Fatalf("xml = %q", seg.XMLPath())
	}
}

func TestContinuesAt(t *testing.T) {
	s := newSession(t)
	end := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	if s.ContinuesAt(end) {
		t.Fatalf("live session must not accept continuations")
	}
	s.MarkEnded(end)
	if !s.ContinuesAt(end.Add(4 * time.Minute)) {
		t.Fatalf("start within window should continue")
	}
	if s.ContinuesAt(end.Add(5 * time.Minute)) {
		t.Fatalf("start at the window boundary should not continue")
	}

	s.SetRoom(config.Room{ID: 7, ContinueSessionMinutes: minutes(0)})
	if s.ContinuesAt(end.Add(time.Second)) {
		t.Fatalf("zero window disables merging")
	}
}

func TestPipelineCommitAndCancel(t *testing.T) {
	s := newSession(t)

	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	token1 := s.AttachPipeline(cancel1)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	token2 := s.AttachPipeline(cancel2)

	if ctx1.Err() == nil {
		t.Fatalf("attaching a second pipeline should cancel the first")
	}
	if s.CommitPipeline(ctx1, token1) {
		t.Fatalf("superseded pipeline committed")
	}
	if !s.CommitPipeline(ctx2, token2) {
		t.Fatalf("current pipeline failed to commit")
	}
	if s.CancelPipeline() {
		t.Fatalf("committed pipeline must not be cancellable")
	}
	if ctx2.Err() != nil {
		t.Fatalf("commit should not cancel the pipeline context")
	}
}

func TestCancelPipelineBeforeCommit(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	token := s.AttachPipeline(cancel)
	if !s.PipelinePending() {
		t.Fatalf("expected pending pipeline")
	}
	if !s.CancelPipeline() {
		t.Fatalf("expected cancellation")
	}
	if s.CommitPipeline(ctx, token) {
		t.Fatalf("cancelled pipeline committed")
	}
}

func TestPrepareAndGenerate(t *testing.T) {
	storage := t.TempDir()
	s := newSession(t)
	proc := testsupport.NewFakeProcessor()
	proc.Peak = 90

	for _, rel := range []string{"7/a.flv", "7/b.flv"} {
		testsupport.WriteSegment(t, storage, rel, 16)
		if err := s.AddVideo(context.Background(), proc, NewSegment(storage, rel, "s1", 7, 0)); err != nil {
			t.Fatalf("add %s: %v", rel, err)
		}
	}

	if _, err := s.GenerateEarly(context.Background(), proc); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("early before prepare should fail validation, got %v", err)
	}
	if err := s.Prepare(context.Background(), proc); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !s.Prepared() || s.HighlightOffset() != 90 {
		t.Fatalf("prepared=%v peak=%v", s.Prepared(), s.HighlightOffset())
	}
	if len(proc.Thumbnails) != 1 {
		t.Fatalf("thumbnail calls = %d", len(proc.Thumbnails))
	}
	thumb := proc.Thumbnails[0]
	if thumb.Video != filepath.Join(storage, "7/b.flv") || thumb.Offset != 30 {
		t.Fatalf("thumbnail = %+v", thumb)
	}

	early, err := s.GenerateEarly(context.Background(), proc)
	if err != nil {
		t.Fatalf("early: %v", err)
	}
	if early != filepath.Join(storage, "7/a.all.mp4") {
		t.Fatalf("early path = %q", early)
	}
	final, err := s.GenerateFinal(context.Background(), proc)
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if final != filepath.Join(storage, "7/a.all.bar.mp4") {
		t.Fatalf("final path = %q", final)
	}
}

func TestPrepareFailureLeavesSessionUnprepared(t *testing.T) {
	storage := t.TempDir()
	s := newSession(t)
	proc := testsupport.NewFakeProcessor()
	proc.Fail["overlay"] = errors.New("boom")
	testsupport.WriteSegment(t, storage, "7/a.flv", 16)
	if err := s.AddVideo(context.Background(), proc, NewSegment(storage, "7/a.flv", "s1", 7, 0)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Prepare(context.Background(), proc); err == nil {
		t.Fatalf("expected prepare failure")
	}
	if s.Prepared() {
		t.Fatalf("session marked prepared after failure")
	}
}

func TestPrepareWithoutSegments(t *testing.T) {
	err := newSession(t).Prepare(context.Background(), testsupport.NewFakeProcessor())
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestThumbnailPosition(t *testing.T) {
	segs := []Segment{{Duration: 60}, {Duration: 120}, {Duration: 30}}
	tests := []struct {
		offset     float64
		wantIndex  int
		wantOffset float64
	}{
		{0, 0, 0},
		{59, 0, 59},
		{60, 1, 0},
		{100, 1, 40},
		{200, 2, 20},
		{210, 2, 15},
		{1000, 2, 15},
	}
	for _, tc := range tests {
		idx, off := ThumbnailPosition(segs, tc.offset)
		if idx != tc.wantIndex || off != tc.wantOffset {
			t.Fatalf("offset %v: got (%d, %v), want (%d, %v)", tc.offset, idx, off, tc.wantIndex, tc.wantOffset)
		}
	}
	if idx, _ := ThumbnailPosition(nil, 5); idx != -1 {
		t.Fatalf("empty segments index = %d", idx)
	}
}
