package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/recorder"
	"archivist/internal/services"
	"archivist/internal/session"
)

// Scheduler starts the end-of-session pipeline for an ended session.
type Scheduler interface {
	Schedule(s *session.Session) error
}

// Registry maps recorder session ids to sessions.
type Registry struct {
	storageDir string
	prober     session.Prober
	scheduler  Scheduler
	notifier   notifications.Service
	logger     *slog.Logger

	roomsMu sync.RWMutex
	rooms   map[int64]config.Room

	// sessions is written only by the event goroutine; mu lets readers
	// take snapshots.
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New builds a registry over the configured rooms.
func New(cfg *config.Config, prober session.Prober, scheduler Scheduler, notifier notifications.Service, logger *slog.Logger) *Registry {
	r := &Registry{
		storageDir: cfg.Paths.StorageDir,
		prober:     prober,
		scheduler:  scheduler,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "registry"),
		sessions:   make(map[string]*session.Session),
	}
	r.SetRooms(cfg.Rooms)
	return r
}

// SetRooms replaces the room table. Live sessions pick up their room's new
// policy; sessions whose room was removed keep the policy they had.
func (r *Registry) SetRooms(rooms []config.Room) {
	table := make(map[int64]config.Room, len(rooms))
	for _, room := range rooms {
		table[room.ID] = room
	}
	r.roomsMu.Lock()
	r.rooms = table
	r.roomsMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if room, ok := table[s.RoomID()]; ok {
			s.SetRoom(room)
		}
	}
}

func (r *Registry) room(id int64) (config.Room, bool) {
	r.roomsMu.RLock()
	defer r.roomsMu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Lookup returns the session an id (original or alias) maps to.
func (r *Registry) Lookup(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Sessions returns the distinct tracked sessions ordered by start time.
func (r *Registry) Sessions() []*session.Session {
	r.mu.RLock()
	seen := make(map[*session.Session]struct{}, len(r.sessions))
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start().Equal(out[j].Start()) {
			return out[i].ID() < out[j].ID()
		}
		return out[i].Start().Before(out[j].Start())
	})
	return out
}

// Run handles events until ctx is done or events is closed.
func (r *Registry) Run(ctx context.Context, events <-chan recorder.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.safeHandle(ctx, event)
		}
	}
}

func (r *Registry) safeHandle(ctx context.Context, event recorder.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.ErrorWithContext(r.logger, "event handler panicked", "event_panic",
				logging.Any("panic", rec),
				logging.String("event", event.EventType),
				logging.String(logging.FieldImpact, "event dropped; later events are still handled"),
			)
		}
	}()
	if err := r.Handle(ctx, event); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "event dropped", "event_dropped",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String("event", event.EventType),
			logging.String(logging.FieldImpact, "the event had no effect"),
		)
	}
}

// Handle applies one event. Returned errors mean the event was dropped; they
// are never surfaced to the recorder.
func (r *Registry) Handle(ctx context.Context, event recorder.Event) error {
	data := event.EventData
	correlation := event.EventID
	if correlation == "" {
		correlation = uuid.NewString()
	}
	ctx = services.WithRequestID(ctx, correlation)
	ctx = services.WithRoomID(ctx, data.RoomID)
	ctx = services.WithSessionID(ctx, data.SessionID)

	ts, err := event.Timestamp()
	if err != nil {
		return services.Wrap(services.ErrValidation, "event", "timestamp", "", err)
	}
	meta := session.Metadata{
		Name:       data.Name,
		Title:      data.Title,
		AreaParent: data.AreaNameParent,
		AreaChild:  data.AreaNameChild,
	}

	// Only new sessions need a configured room; a tracked session keeps
	// its room after a reload removes it.
	if event.EventType == recorder.EventSessionStarted {
		room, ok := r.room(data.RoomID)
		if !ok {
			return services.Wrap(services.ErrConfiguration, "event", "route", fmt.Sprintf("room %d is not configured", data.RoomID), nil)
		}
		r.sessionStarted(ctx, room, data.SessionID, meta, ts)
		return nil
	}

	s, ok := r.Lookup(data.SessionID)
	if !ok {
		return services.Wrap(services.ErrNotFound, "event", "route", fmt.Sprintf("session %s is not tracked", data.SessionID), nil)
	}
	s.Observe(meta)
	logger := logging.WithContext(ctx, r.logger)

	switch event.EventType {
	case recorder.EventFileClosed:
		seg := session.NewSegment(r.storageDir, data.RelativePath, data.SessionID, data.RoomID, data.Duration)
		if err := s.AddVideo(ctx, r.prober, seg); err != nil {
			if errors.Is(err, services.ErrValidation) {
				logging.WarnWithContext(logger, "segment rejected", "segment_rejected",
					logging.Error(err),
					logging.String("path", seg.FLVPath()),
					logging.String(logging.FieldImpact, "segment excluded from the session"),
				)
				return nil
			}
			return err
		}
		logger.Info("segment added",
			logging.String("path", seg.FLVPath()),
			logging.Int("segments", len(s.Segments())),
			logging.Float64("duration", s.Duration()),
			logging.String(logging.FieldEventType, "segment_added"),
		)
	case recorder.EventSessionEnded:
		s.MarkEnded(ts)
		if err := r.scheduler.Schedule(s); err != nil {
			logging.ErrorWithContext(logger, "schedule pipeline failed", "pipeline_schedule_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise workflow.max_pipelines"),
				logging.String(logging.FieldImpact, "the session will not be processed"),
			)
			return nil
		}
		logger.Info("session ended; pipeline scheduled",
			logging.Int("segments", len(s.Segments())),
			logging.String(logging.FieldEventType, "session_ended"),
		)
	default:
		logger.Debug("event noted", logging.String("event", event.EventType))
	}
	return nil
}

func (r *Registry) sessionStarted(ctx context.Context, room config.Room, id string, meta session.Metadata, ts time.Time) {
	logger := logging.WithContext(ctx, r.logger)
	if existing, ok := r.Lookup(id); ok {
		existing.Observe(meta)
		logger.Debug("repeated session start", logging.String("session", existing.ID()))
		return
	}

	r.prune(ts)
	for _, s := range r.Sessions() {
		if s.RoomID() != room.ID || !s.ContinuesAt(ts) {
			continue
		}
		cancelled := s.CancelPipeline()
		s.ClearEnd()
		s.AddAlias(id)
		s.Observe(meta)
		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		logger.Info("session continued",
			logging.String("continues", s.ID()),
			logging.Bool("pipeline_cancelled", cancelled),
			logging.String(logging.FieldEventType, "session_continued"),
		)
		return
	}

	s := session.New(id, room, meta, ts)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	logger.Info("session started",
		logging.String("name", meta.Name),
		logging.String("title", meta.Title),
		logging.String(logging.FieldEventType, "session_started"),
	)
	_ = r.notifier.Publish(ctx, room, notifications.EventRecordStart,
		notifications.SessionPayload(id, meta.Title, meta.Name, meta.AreaParent, meta.AreaChild, ts))
}

// prune forgets sessions whose pipeline finished and that can no longer be
// continued at ts.
func (r *Registry) prune(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.Done() && !s.ContinuesAt(ts) {
			delete(r.sessions, id)
		}
	}
}
