package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/recorder"
	"archivist/internal/registry"
	"archivist/internal/services"
	"archivist/internal/state"
	"archivist/internal/workflow"
)

// pipelineStopTimeout bounds how long shutdown waits for pipelines that are
// inside a media step.
const pipelineStopTimeout = 30 * time.Second

// AccountRouter rebuilds publishing backends for a new account table.
// publisher.Router satisfies it.
type AccountRouter interface {
	SetAccounts(ctx context.Context, accounts map[string]config.Account) error
}

// Components are the collaborators the daemon runs. Supervisor is nil when
// recorder supervision is disabled. Publisher and Runner receive reloaded
// accounts when set.
type Components struct {
	Ledger       *state.Ledger
	Registry     *registry.Registry
	Workflow     *workflow.Manager
	Scheduler    *pipeline.Scheduler
	Runner       *pipeline.Runner
	Publisher    AccountRouter
	Supervisor   *recorder.Supervisor
	Dependencies []deps.Status
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components
	events chan recorder.Event
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || comps.Ledger == nil || comps.Registry == nil || comps.Workflow == nil || comps.Scheduler == nil {
		return nil, errors.New("daemon requires config, ledger, registry, workflow manager, and scheduler")
	}
	buffer := cfg.Workflow.EventBuffer
	if buffer <= 0 {
		buffer = 1
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comps:    comps,
		events:   make(chan recorder.Event, buffer),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the workers, the event loop, the
// HTTP server, and the recorders.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another archivist daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.comps.Workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.comps.Registry.Run(d.ctx, d.events)
	}()

	if err := d.api.start(); err != nil {
		d.comps.Workflow.Stop()
		d.abortStart()
		return err
	}

	if d.comps.Supervisor != nil {
		if err := d.comps.Supervisor.Start(d.ctx, d.cfg.RoomIDs()); err != nil {
			logging.WarnWithContext(d.logger, "recorder start incomplete", "recorder_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check recorder.binary and the recorder logs"),
				logging.String(logging.FieldImpact, "some rooms are not being recorded"),
			)
		}
	}

	d.running.Store(true)
	d.logger.Info("archivist daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Int("rooms", len(d.cfg.Rooms)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.wg.Wait()
	_ = d.lock.Unlock()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops recorders, intake, pipelines, and workers, then releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.comps.Supervisor != nil {
		d.comps.Supervisor.Stop()
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.comps.Scheduler.Stop(pipelineStopTimeout)
	d.comps.Workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may need the lock file removed"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("archivist daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Submit hands an inbound event to the registry. It blocks while the event
// buffer is full and gives up when ctx ends.
func (d *Daemon) Submit(ctx context.Context, event recorder.Event) bool {
	select {
	case d.events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// Reload applies the accounts and rooms of next. Publishing backends are
// rebuilt first and nothing changes if that fails. The registry then swaps
// its room table and the recorders are reconciled to it.
func (d *Daemon) Reload(ctx context.Context, next *config.Config) (started, stopped []int64, err error) {
	if d.comps.Publisher != nil {
		if err := d.comps.Publisher.SetAccounts(ctx, next.Accounts); err != nil {
			return nil, nil, services.Wrap(services.ErrConfiguration, "reload", "accounts", "", err)
		}
	}
	if d.comps.Runner != nil {
		d.comps.Runner.SetAccounts(next.Accounts)
	}
	d.comps.Registry.SetRooms(next.Rooms)
	if d.comps.Supervisor == nil {
		return nil, nil, nil
	}
	ids := make([]int64, 0, len(next.Rooms))
	for _, room := range next.Rooms {
		ids = append(ids, room.ID)
	}
	return d.comps.Supervisor.Reconcile(ctx, ids, false)
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	status := api.DaemonStatus{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		StatePath:        d.cfg.StatePath(),
		LockFilePath:     d.lockPath,
		RunningPipelines: d.comps.Scheduler.Running(),
		Workflow:         api.FromWorkflowStatus(d.comps.Workflow.Status()),
		Sessions:         api.FromSessions(d.comps.Registry.Sessions()),
		Dependencies:     api.FromDependencies(d.comps.Dependencies),
	}
	if d.comps.Supervisor != nil {
		status.Recorders = d.comps.Supervisor.Running()
	}
	return status
}

// State returns the save record.
func (d *Daemon) State() api.StateResponse {
	return api.FromRecord(d.comps.Ledger.Snapshot())
}
