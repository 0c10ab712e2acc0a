package media

import "context"

// Probe is the metadata read from one recorded segment.
type Probe struct {
	Duration float64
	Width    int
	Height   int
}

// EngagementJob names the inputs and outputs of the engagement analysis.
type EngagementJob struct {
	Annotations  string
	Graph        string
	Highlights   string
	SuperChats   string
	SuperChatSRT string
	Ranges       string
	Peak         string
	UserDict     string
	RegexRules   string
	LogPath      string
}

// OverlayJob renders cleaned annotations into an ASS subtitle track sized for
// the session resolution.
type OverlayJob struct {
	Annotations string
	Output      string
	Width       int
	Height      int
	LogPath     string
}

// TranscodeJob describes the final re-encode with the engagement bar and the
// subtitle overlay burned in.
type TranscodeJob struct {
	Graph     string
	Manifest  string
	Subtitles string
	Output    string
	Duration  float64
	Width     int
	Height    int
	LogPath   string
}

// Processor is the media contract used by sessions. Every operation is a
// long-running external process; failures are returned to the caller.
type Processor interface {
	Probe(ctx context.Context, path string) (Probe, error)
	MergeAnnotations(ctx context.Context, inputs []string, output, logPath string) error
	CleanAnnotations(ctx context.Context, input, output, logPath string) error
	// AnalyzeEngagement writes the engagement outputs and returns the peak
	// offset in seconds from the start of the session.
	AnalyzeEngagement(ctx context.Context, job EngagementJob) (float64, error)
	RenderOverlay(ctx context.Context, job OverlayJob) error
	ExtractThumbnail(ctx context.Context, video string, offset float64, output, logPath string) error
	Concat(ctx context.Context, manifest, output, logPath string) error
	Transcode(ctx context.Context, job TranscodeJob) error
}
