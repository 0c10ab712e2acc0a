package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/media"
	"archivist/internal/notifications"
	"archivist/internal/publisher"
	"archivist/internal/services"
	"archivist/internal/session"
	"archivist/internal/state"
	"archivist/internal/workflow"
)

// Queues receives the publish and comment work a pipeline produces.
// workflow.Manager satisfies it.
type Queues interface {
	EnqueuePublish(task workflow.PublishTask)
	EnqueueComment(task state.CommentTask)
}

// Waiter blocks for d or until ctx is done. It reports whether the full
// duration elapsed.
type Waiter func(ctx context.Context, d time.Duration) bool

// Runner executes pipelines.
type Runner struct {
	cfg      *config.Config
	proc     media.Processor
	ledger   *state.Ledger
	queues   Queues
	notifier notifications.Service
	logger   *slog.Logger

	accountsMu sync.RWMutex
	accounts   map[string]config.Account

	earlyWait time.Duration
	finalWait time.Duration
	wait      Waiter
}

// RunnerOption configures optional Runner behavior.
type RunnerOption func(*Runner)

// WithDelays overrides the grace and final waits.
func WithDelays(early, final time.Duration) RunnerOption {
	return func(r *Runner) {
		r.earlyWait = early
		r.finalWait = final
	}
}

// WithWaiter replaces the timer-based wait.
func WithWaiter(w Waiter) RunnerOption {
	return func(r *Runner) { r.wait = w }
}

// NewRunner builds a runner.
func NewRunner(cfg *config.Config, proc media.Processor, ledger *state.Ledger, queues Queues, notifier notifications.Service, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg,
		proc:      proc,
		ledger:    ledger,
		queues:    queues,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		accounts:  maps.Clone(cfg.Accounts),
		earlyWait: time.Duration(cfg.Workflow.EarlyWaitSeconds) * time.Second,
		finalWait: time.Duration(cfg.Workflow.FinalWaitSeconds) * time.Second,
		wait:      sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Run executes the pipeline for s. pending is cancelled by the registry when
// a continuation arrives and is only honored until the commit point; root
// bounds the whole run and is cancelled on shutdown.
func (r *Runner) Run(root, pending context.Context, s *session.Session, token uint64) {
	ctx := services.WithSessionID(root, s.ID())
	ctx = services.WithRoomID(ctx, s.RoomID())
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, r.logger)
	room := s.Room()

	if !r.wait(pending, r.earlyWait) {
		logger.Info("pipeline cancelled during grace wait", logging.String(logging.FieldEventType, "pipeline_cancelled"))
		return
	}
	if len(s.Segments()) == 0 {
		if s.CommitPipeline(pending, token) {
			s.MarkDone()
		}
		logger.Info("session has no segments; nothing to publish", logging.String(logging.FieldEventType, "pipeline_empty"))
		return
	}
	if !r.wait(pending, room.ContinuationWindow()) || !s.CommitPipeline(pending, token) {
		logger.Info("pipeline cancelled by continuation", logging.String(logging.FieldEventType, "pipeline_cancelled"))
		return
	}
	defer s.MarkDone()
	started := time.Now()
	logger.Info("session committed; processing",
		logging.Int("segments", len(s.Segments())),
		logging.Float64("duration", s.Duration()),
		logging.String(logging.FieldEventType, "pipeline_committed"),
	)

	meta := s.Metadata()
	end, _ := s.End()
	r.notify(ctx, room, notifications.EventRecordEnd,
		notifications.SessionPayload(s.ID(), meta.Title, meta.Name, meta.AreaParent, meta.AreaChild, end))

	if err := s.Prepare(ctx, r.proc); err != nil {
		r.fail(logger, "prepare", err)
		return
	}
	paths, err := s.Paths()
	if err != nil {
		r.fail(logger, "prepare", err)
		return
	}
	width, height := s.Resolution()
	r.notify(ctx, room, notifications.EventPrepared,
		notifications.PreparedPayload(s.ID(), width, height, s.Duration(), paths.Thumbnail, paths.Annotations))

	earlyVideo, err := s.GenerateEarly(ctx, r.proc)
	if err != nil {
		logging.WarnWithContext(logger, "early artifact failed", "early_artifact_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "see "+paths.VideoLog),
			logging.String(logging.FieldImpact, "only the final artifact will be published"),
		)
	} else {
		r.notify(ctx, room, notifications.EventVideoGenerated,
			notifications.VideoPayload(s.ID(), notifications.RelativeVideoPath(r.cfg.Paths.StorageDir, s.RoomID(), earlyVideo)))
	}

	upload, publishing := r.buildUpload(ctx, logger, s, paths)
	earlyQueued := false
	if publishing && earlyVideo != "" {
		task := r.publishTask(upload, paths, state.VariantEarly, earlyVideo)
		r.queues.EnqueuePublish(task)
		earlyQueued = true
		logger.Info("early publish queued",
			logging.String("title", upload.Title),
			logging.String(logging.FieldEventType, "publish_queued"),
		)
	}

	if !r.wait(root, r.finalWait) {
		logger.Info("shutdown before final artifact", logging.String(logging.FieldEventType, "pipeline_interrupted"))
		return
	}
	finalVideo, err := s.GenerateFinal(ctx, r.proc)
	if err != nil {
		r.fail(logger, "final", err)
		return
	}
	r.notify(ctx, room, notifications.EventVideoTranscoded,
		notifications.VideoPayload(s.ID(), notifications.RelativeVideoPath(r.cfg.Paths.StorageDir, s.RoomID(), finalVideo)))

	if publishing {
		task := r.publishTask(upload, paths, state.VariantFinal, finalVideo)
		if !earlyQueued {
			task.CommentQueued = true
		}
		r.queues.EnqueuePublish(task)
		if !earlyQueued {
			r.queues.EnqueueComment(state.CommentTask{
				SessionID:     s.ID(),
				RoomID:        s.RoomID(),
				Account:       upload.Account,
				HighlightPath: paths.Highlights,
				SuperChatPath: paths.SuperChats,
			})
		}
		logger.Info("final publish queued",
			logging.String("title", upload.Title),
			logging.Bool("comment_queued", !earlyQueued),
			logging.String(logging.FieldEventType, "publish_queued"),
		)
	}
	logger.Info("pipeline finished",
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "pipeline_finished"),
	)
}

// SetAccounts replaces the publishing accounts pipelines render uploads
// against. Pipelines already past buildUpload keep the account they used.
func (r *Runner) SetAccounts(accounts map[string]config.Account) {
	r.accountsMu.Lock()
	r.accounts = maps.Clone(accounts)
	r.accountsMu.Unlock()
}

func (r *Runner) account(name string) (config.Account, bool) {
	r.accountsMu.RLock()
	defer r.accountsMu.RUnlock()
	account, ok := r.accounts[name]
	return account, ok
}

// buildUpload renders the title and description and claims the title. It
// reports false when the room does not publish or its publishing settings
// are unusable.
func (r *Runner) buildUpload(ctx context.Context, logger *slog.Logger, s *session.Session, paths session.Paths) (publisher.Upload, bool) {
	room := s.Room()
	if !room.HasUploader() {
		return publisher.Upload{}, false
	}
	account, ok := r.account(room.Uploader)
	if !ok {
		r.skipPublish(logger, services.Wrap(services.ErrConfiguration, "publish", "account",
			fmt.Sprintf("account %q is not configured", room.Uploader), nil))
		return publisher.Upload{}, false
	}

	segments := s.Segments()
	fields := session.TemplateFields(s.Metadata(), account.DisplayName, s.Start(), segments[0].FLVPath())
	base, err := session.RenderTemplate(room.Title, fields)
	if err != nil {
		r.skipPublish(logger, services.Wrap(services.ErrConfiguration, "publish", "title template", "", err))
		return publisher.Upload{}, false
	}
	description, err := session.RenderTemplate(room.Description, fields)
	if err != nil {
		r.skipPublish(logger, services.Wrap(services.ErrConfiguration, "publish", "description template", "", err))
		return publisher.Upload{}, false
	}
	title, err := r.ledger.ClaimTitle(ctx, s.ID(), func(existing []string) string {
		return session.ResolveTitle(base, existing)
	})
	if err != nil {
		r.skipPublish(logger, services.Wrap(services.ErrTransient, "publish", "claim title", "", err))
		return publisher.Upload{}, false
	}

	return publisher.Upload{
		SessionID:   s.ID(),
		RoomID:      s.RoomID(),
		Account:     room.Uploader,
		Thumbnail:   paths.Thumbnail,
		Annotations: paths.Annotations,
		Title:       title,
		Description: description,
		Tags:        room.Tags,
		ChannelID:   room.ChannelID,
		Source:      room.Source,
	}, true
}

func (r *Runner) publishTask(upload publisher.Upload, paths session.Paths, variant state.Variant, video string) workflow.PublishTask {
	upload.Variant = variant
	upload.Video = video
	return workflow.PublishTask{
		Upload:        upload,
		HighlightPath: paths.Highlights,
		SuperChatPath: paths.SuperChats,
		CaptionPath:   paths.SuperChatSRT,
	}
}

func (r *Runner) notify(ctx context.Context, room config.Room, event notifications.Event, payload notifications.Payload) {
	_ = r.notifier.Publish(ctx, room, event, payload)
}

func (r *Runner) skipPublish(logger *slog.Logger, err error) {
	logging.ErrorWithContext(logger, "publishing skipped", "publish_skipped",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, "check the room's uploader, title, and description settings"),
		logging.String(logging.FieldImpact, "artifacts are produced but not published"),
	)
}

func (r *Runner) fail(logger *slog.Logger, stage string, err error) {
	logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed",
		logging.Error(err),
		logging.String(logging.FieldStage, stage),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldImpact, "the session is not published"),
	)
}
