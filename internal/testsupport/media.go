package testsupport

import (
	"context"
	"os"
	"sync"

	"archivist/internal/media"
)

// FakeProcessor is an in-memory media.Processor. Probes default to a
// 1920x1080 clip of 60 seconds; every generation step writes a small file at
// its output so downstream existence checks pass.
type FakeProcessor struct {
	mu     sync.Mutex
	Probes map[string]media.Probe
	Peak   float64
	// Fail makes the named step ("probe", "merge", "clean", "engagement",
	// "overlay", "thumbnail", "concat", "transcode") return the error.
	Fail  map[string]error
	Calls []string
	// Thumbnails records the (video, offset) pairs passed to ExtractThumbnail.
	Thumbnails []ThumbnailCall
}

// ThumbnailCall is one recorded ExtractThumbnail invocation.
type ThumbnailCall struct {
	Video  string
	Offset float64
}

// NewFakeProcessor returns a fake with no failures configured.
func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{Probes: map[string]media.Probe{}, Fail: map[string]error{}}
}

// CallNames returns a copy of the recorded step names.
func (f *FakeProcessor) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeProcessor) record(step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, step)
	return f.Fail[step]
}

func touch(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func (f *FakeProcessor) Probe(_ context.Context, path string) (media.Probe, error) {
	if err := f.record("probe"); err != nil {
		return media.Probe{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if probe, ok := f.Probes[path]; ok {
		return probe, nil
	}
	return media.Probe{Duration: 60, Width: 1920, Height: 1080}, nil
}

func (f *FakeProcessor) MergeAnnotations(_ context.Context, _ []string, output, _ string) error {
	if err := f.record("merge"); err != nil {
		return err
	}
	return touch(output)
}

func (f *FakeProcessor) CleanAnnotations(_ context.Context, _, output, _ string) error {
	if err := f.record("clean"); err != nil {
		return err
	}
	return touch(output)
}

func (f *FakeProcessor) AnalyzeEngagement(_ context.Context, job media.EngagementJob) (float64, error) {
	if err := f.record("engagement"); err != nil {
		return 0, err
	}
	for _, path := range []string{job.Graph, job.Highlights, job.SuperChats} {
		if err := touch(path); err != nil {
			return 0, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Peak, nil
}

func (f *FakeProcessor) RenderOverlay(_ context.Context, job media.OverlayJob) error {
	if err := f.record("overlay"); err != nil {
		return err
	}
	return touch(job.Output)
}

func (f *FakeProcessor) ExtractThumbnail(_ context.Context, video string, offset float64, output, _ string) error {
	if err := f.record("thumbnail"); err != nil {
		return err
	}
	f.mu.Lock()
	f.Thumbnails = append(f.Thumbnails, ThumbnailCall{Video: video, Offset: offset})
	f.mu.Unlock()
	return touch(output)
}

func (f *FakeProcessor) Concat(_ context.Context, _, output, _ string) error {
	if err := f.record("concat"); err != nil {
		return err
	}
	return touch(output)
}

func (f *FakeProcessor) Transcode(_ context.Context, job media.TranscodeJob) error {
	if err := f.record("transcode"); err != nil {
		return err
	}
	return touch(job.Output)
}
