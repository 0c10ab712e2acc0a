package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"archivist/internal/config"
	"archivist/internal/media"
	"archivist/internal/services"
)

// ErrNoSegments is returned when an operation needs at least one accepted segment.
var ErrNoSegments = errors.New("session has no segments")

// Metadata is the room information refreshed from every recorder event.
type Metadata struct {
	Name       string
	Title      string
	AreaParent string
	AreaChild  string
}

// Prober reads segment metadata. media.Processor satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Probe, error)
}

// Session is one continuous recording period, possibly spanning several
// recorder sessions merged by continuation.
type Session struct {
	mu sync.Mutex

	id      string
	aliases []string
	roomID  int64
	room    config.Room
	meta    Metadata
	start   time.Time
	end     time.Time
	ended   bool

	segments []Segment
	duration float64
	width    int
	height   int

	prepared bool
	peak     float64

	cancel context.CancelFunc
	token  uint64
	done   bool
}

// New creates a live session.
func New(id string, room config.Room, meta Metadata, start time.Time) *Session {
	return &Session{id: id, roomID: room.ID, room: room, meta: meta, start: start}
}

// ID is the recorder session id that created this session.
func (s *Session) ID() string { return s.id }

// RoomID is the live room the session was recorded from.
func (s *Session) RoomID() int64 { return s.roomID }

// Start is the time the first recorder session started.
func (s *Session) Start() time.Time { return s.start }

// Room returns the room policy currently applied to the session.
func (s *Session) Room() config.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// SetRoom replaces the room policy after a configuration reload.
func (s *Session) SetRoom(room config.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
}

// Metadata returns the latest room metadata.
func (s *Session) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Observe refreshes room metadata from a recorder event.
func (s *Session) Observe(meta Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
}

// AddAlias records another recorder session id that was merged into this one.
func (s *Session) AddAlias(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = append(s.aliases, id)
}

// Aliases lists merged recorder session ids.
func (s *Session) Aliases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aliases...)
}

// MarkEnded records when the recorder reported the session ended.
func (s *Session) MarkEnded(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = at
	s.ended = true
}

// ClearEnd makes the session live again after a continuation merge.
func (s *Session) ClearEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = time.Time{}
	s.ended = false
}

// End returns the end time, if the session has ended.
func (s *Session) End() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end, s.ended
}

// ContinuesAt reports whether a new recorder session starting at ts in the
// same room should be merged into this one.
func (s *Session) ContinuesAt(ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.room.ContinuationWindow()
	if !s.ended || window <= 0 {
		return false
	}
	return ts.Sub(s.end) < window
}

// Segments returns the accepted segments in recording order.
func (s *Session) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Segment(nil), s.segments...)
}

// Duration is the summed probed duration of accepted segments, in seconds.
func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Resolution is the uniform resolution of accepted segments, or zeros.
func (s *Session) Resolution() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Prepared reports whether Prepare completed.
func (s *Session) Prepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// HighlightOffset is the engagement peak found by Prepare, in seconds.
func (s *Session) HighlightOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Paths returns the artifact layout. It fails when no segment was accepted.
func (s *Session) Paths() (Paths, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		return Paths{}, ErrNoSegments
	}
	return PathsFor(s.segments[0].BasePath), nil
}

// AddVideo probes a segment and appends it when its resolution is non-zero
// and matches the session's. Rejected segments return an error wrapping
// services.ErrValidation and leave the session unchanged.
func (s *Session) AddVideo(ctx context.Context, prober Prober, seg Segment) error {
	probe, err := prober.Probe(ctx, seg.FLVPath())
	if err != nil {
		return err
	}
	if probe.Width == 0 || probe.Height == 0 {
		return services.Wrap(services.ErrValidation, "segment", "add video",
			fmt.Sprintf("invalid resolution %dx%d for %s", probe.Width, probe.Height, seg.FLVPath()), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width != 0 && s.height != 0 && (s.width != probe.Width || s.height != probe.Height) {
		return services.Wrap(services.ErrValidation, "segment", "add video",
			fmt.Sprintf("resolution %dx%d does not match session %dx%d for %s",
				probe.Width, probe.Height, s.width, s.height, seg.FLVPath()), nil)
	}
	seg.Duration = probe.Duration
	seg.Width, seg.Height = probe.Width, probe.Height
	s.segments = append(s.segments, seg)
	s.duration += probe.Duration
	s.width, s.height = probe.Width, probe.Height
	return nil
}

// AttachPipeline registers the cancel function of a newly scheduled
// end-of-session pipeline, cancelling any pipeline still pending. The
// returned token identifies the pipeline in CommitPipeline.
func (s *Session) AttachPipeline(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	s.cancel = cancel
	s.done = false
	return s.token
}

// CancelPipeline aborts the pending pipeline, if one has not committed yet.
func (s *Session) CancelPipeline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// CommitPipeline marks the pipeline identified by token as past its last
// cancellation point. It returns false when the pipeline was cancelled or
// superseded; the caller must then stop without side effects.
func (s *Session) CommitPipeline(ctx context.Context, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || token != s.token || s.cancel == nil {
		return false
	}
	s.cancel = nil
	return true
}

// PipelinePending reports whether a pipeline is scheduled and still cancellable.
func (s *Session) PipelinePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// MarkDone records that a pipeline ran to its end for this session.
func (s *Session) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
}

// Done reports whether a pipeline finished and no newer one is pending.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && s.cancel == nil && s.ended
}
