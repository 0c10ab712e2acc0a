package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/publisher"
	"archivist/internal/state"
)

// Manager runs the publish, comment, and caption workers.
type Manager struct {
	ledger *state.Ledger
	client publisher.Client
	logger *slog.Logger

	pollInterval time.Duration
	retryDelay   time.Duration

	publish  *Queue[PublishTask]
	comments *Queue[state.CommentTask]
	captions *Queue[state.CaptionTask]

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timers  map[*time.Timer]struct{}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPollInterval overrides the comment/caption poll interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// WithRetryDelay delays the tail requeue of a failed publish.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager constructs a manager over the shared ledger.
func NewManager(cfg *config.Config, ledger *state.Ledger, client publisher.Client, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		ledger:       ledger,
		client:       client,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: time.Duration(cfg.Workflow.PollIntervalSeconds) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.PublishRetryDelaySeconds) * time.Second,
		publish:      NewQueue[PublishTask](),
		comments:     NewQueue[state.CommentTask](),
		captions:     NewQueue[state.CaptionTask](),
		timers:       make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Minute
	}
	return m
}

// EnqueuePublish appends a publish task.
func (m *Manager) EnqueuePublish(task PublishTask) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	m.publish.Push(task)
}

// EnqueueComment appends a comment task for the next comment cycle.
func (m *Manager) EnqueueComment(task state.CommentTask) {
	m.comments.Push(task)
}

// EnqueueCaption appends a caption task for the next caption cycle.
func (m *Manager) EnqueueCaption(task state.CaptionTask) {
	m.captions.Push(task)
}

// Start launches the three workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(3)
	m.mu.Unlock()

	go m.runPublish(runCtx)
	go m.runPoller(runCtx, "comment", m.commentCycle)
	go m.runPoller(runCtx, "caption", m.captionCycle)
	return nil
}

// Stop terminates the workers and waits for in-flight attempts to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	for timer := range m.timers {
		timer.Stop()
	}
	clear(m.timers)
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Status reports queue depths and active set sizes.
func (m *Manager) Status() Status {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	return Status{
		Running:         running,
		PendingPublish:  m.publish.Len(),
		PendingComments: m.comments.Len(),
		PendingCaptions: m.captions.Len(),
		ActiveComments:  len(m.ledger.CommentTasks()),
		ActiveCaptions:  len(m.ledger.CaptionTasks()),
	}
}

// runPoller runs cycle immediately and then every poll interval. A panic in
// one cycle is logged and the loop continues.
func (m *Manager) runPoller(ctx context.Context, name string, cycle func(context.Context, *slog.Logger)) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String("worker", name))
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		m.safeCycle(ctx, logger, cycle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) safeCycle(ctx context.Context, logger *slog.Logger, cycle func(context.Context, *slog.Logger)) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "worker cycle panicked", "worker_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "report the stack trace; the worker keeps polling"),
				logging.String(logging.FieldImpact, "active tasks are retried next cycle"),
			)
		}
	}()
	cycle(ctx, logger)
}

// requeue appends task to the publish tail, after retryDelay when set.
func (m *Manager) requeue(task PublishTask) {
	if m.retryDelay <= 0 {
		m.publish.Push(task)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(m.retryDelay, func() {
		m.mu.Lock()
		delete(m.timers, timer)
		m.mu.Unlock()
		m.publish.Push(task)
	})
	m.timers[timer] = struct{}{}
}
