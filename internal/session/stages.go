package session

import (
	"context"

	"archivist/internal/media"
	"archivist/internal/services"
)

// Prepare merges and cleans the segment annotations, runs the engagement
// analysis, renders the subtitle overlay, extracts the thumbnail at the
// engagement peak, and writes the concat manifest.
func (s *Session) Prepare(ctx context.Context, proc media.Processor) error {
	segments := s.Segments()
	if len(segments) == 0 {
		return services.Wrap(services.ErrValidation, "prepare", "segments", "nothing recorded", ErrNoSegments)
	}
	paths := PathsFor(segments[0].BasePath)
	room := s.Room()
	width, height := s.Resolution()

	annotations := make([]string, 0, len(segments))
	videos := make([]string, 0, len(segments))
	for _, seg := range segments {
		annotations = append(annotations, seg.XMLPath())
		videos = append(videos, seg.FLVPath())
	}

	ctx = services.WithStage(ctx, "prepare")
	if err := proc.MergeAnnotations(ctx, annotations, paths.Annotations, paths.ExtrasLog); err != nil {
		return err
	}
	if err := proc.CleanAnnotations(ctx, paths.Annotations, paths.CleanAnnotations, paths.ExtrasLog); err != nil {
		return err
	}
	peak, err := proc.AnalyzeEngagement(ctx, media.EngagementJob{
		Annotations:  paths.CleanAnnotations,
		Graph:        paths.Graph,
		Highlights:   paths.Highlights,
		SuperChats:   paths.SuperChats,
		SuperChatSRT: paths.SuperChatSRT,
		Ranges:       paths.Ranges,
		Peak:         paths.Peak,
		UserDict:     room.HEUserDict,
		RegexRules:   room.HERegexRules,
		LogPath:      paths.ExtrasLog,
	})
	if err != nil {
		return err
	}
	if err := proc.RenderOverlay(ctx, media.OverlayJob{
		Annotations: paths.CleanAnnotations,
		Output:      paths.Subtitles,
		Width:       width,
		Height:      height,
		LogPath:     paths.ExtrasLog,
	}); err != nil {
		return err
	}

	index, offset := ThumbnailPosition(segments, peak)
	if err := proc.ExtractThumbnail(ctx, segments[index].FLVPath(), offset, paths.Thumbnail, paths.VideoLog); err != nil {
		return err
	}
	if err := media.WriteConcatManifest(paths.Manifest, videos); err != nil {
		return services.Wrap(services.ErrExternalTool, "prepare", "manifest", "", err)
	}

	s.mu.Lock()
	s.prepared = true
	s.peak = peak
	s.mu.Unlock()
	return nil
}

// GenerateEarly concatenates the segments into the early artifact.
func (s *Session) GenerateEarly(ctx context.Context, proc media.Processor) (string, error) {
	if !s.Prepared() {
		return "", services.Wrap(services.ErrValidation, "early", "generate", "session is not prepared", nil)
	}
	paths, err := s.Paths()
	if err != nil {
		return "", err
	}
	ctx = services.WithStage(ctx, "early")
	if err := proc.Concat(ctx, paths.Manifest, paths.EarlyVideo, paths.VideoLog); err != nil {
		return "", err
	}
	return paths.EarlyVideo, nil
}

// GenerateFinal re-encodes the session with the engagement bar and subtitle
// overlay into the final artifact.
func (s *Session) GenerateFinal(ctx context.Context, proc media.Processor) (string, error) {
	if !s.Prepared() {
		return "", services.Wrap(services.ErrValidation, "final", "generate", "session is not prepared", nil)
	}
	paths, err := s.Paths()
	if err != nil {
		return "", err
	}
	width, height := s.Resolution()
	ctx = services.WithStage(ctx, "final")
	if err := proc.Transcode(ctx, media.TranscodeJob{
		Graph:     paths.Graph,
		Manifest:  paths.Manifest,
		Subtitles: paths.Subtitles,
		Output:    paths.FinalVideo,
		Duration:  s.Duration(),
		Width:     width,
		Height:    height,
		LogPath:   paths.VideoLog,
	}); err != nil {
		return "", err
	}
	return paths.FinalVideo, nil
}

// ThumbnailPosition locates the segment containing offset seconds from the
// session start and the offset within it. An offset past the end selects the
// middle of the last segment. It returns -1 for no segments.
func ThumbnailPosition(segments []Segment, offset float64) (int, float64) {
	if len(segments) == 0 {
		return -1, 0
	}
	local := offset
	for i, seg := range segments {
		if local < seg.Duration {
			return i, local
		}
		local -= seg.Duration
	}
	last := len(segments) - 1
	return last, segments[last].Duration / 2
}
