package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"archivist/internal/logging"
	"archivist/internal/services"
	"archivist/internal/session"
)

// Scheduler runs pipelines on a bounded, non-blocking goroutine pool.
type Scheduler struct {
	root   context.Context
	runner *Runner
	pool   *ants.Pool
	logger *slog.Logger
}

// NewScheduler creates a pool of size workers. Pipelines inherit root and
// stop at their next wait once it is cancelled.
func NewScheduler(root context.Context, runner *Runner, size int, logger *slog.Logger) (*Scheduler, error) {
	logger = logging.NewComponentLogger(logger, "scheduler")
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logging.ErrorWithContext(logger, "pipeline panicked", "pipeline_panic",
				logging.Any("panic", p),
				logging.String(logging.FieldImpact, "the session is not published"),
			)
		}),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "pool", "", err)
	}
	return &Scheduler{root: root, runner: runner, pool: pool, logger: logger}, nil
}

// Schedule starts a pipeline for s, replacing any pending one.
func (sch *Scheduler) Schedule(s *session.Session) error {
	pending, cancel := context.WithCancel(sch.root)
	token := s.AttachPipeline(cancel)
	err := sch.pool.Submit(func() {
		defer cancel()
		sch.runner.Run(sch.root, pending, s, token)
	})
	if err != nil {
		s.CancelPipeline()
		return services.Wrap(services.ErrTransient, "pipeline", "schedule", "pool is full", err)
	}
	return nil
}

// Running reports how many pipelines are in flight.
func (sch *Scheduler) Running() int {
	return sch.pool.Running()
}

// Stop waits up to timeout for in-flight pipelines. Callers cancel root
// first so waiting pipelines return promptly.
func (sch *Scheduler) Stop(timeout time.Duration) {
	if err := sch.pool.ReleaseTimeout(timeout); err != nil {
		logging.WarnWithContext(sch.logger, "pipelines still running at shutdown", "pipeline_shutdown_timeout",
			logging.Error(err),
			logging.Int("running", sch.pool.Running()),
			logging.String(logging.FieldImpact, "interrupted sessions are not published"),
		)
	}
}
