package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// Options configures a Supervisor.
type Options struct {
	Recorder   config.Recorder
	WebhookURL string
	StorageDir string
	LogDir     string
	Logger     *slog.Logger
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	log  *os.File
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Supervisor runs one recorder subprocess per room.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	procs map[int64]*process
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "recorder"),
		procs:  make(map[int64]*process),
	}
}

// Start launches recorders for the given rooms.
func (s *Supervisor) Start(ctx context.Context, rooms []int64) error {
	_, _, err := s.Reconcile(ctx, rooms, false)
	return err
}

// Reconcile starts recorders for rooms in desired that are not running and
// stops recorders for rooms no longer desired. Recorders that exited on their
// own count as not running. With dryRun only the diff is computed.
func (s *Supervisor) Reconcile(ctx context.Context, desired []int64, dryRun bool) (started, stopped []int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(desired))
	for _, room := range desired {
		want[room] = struct{}{}
	}
	for room, proc := range s.procs {
		if _, ok := want[room]; !ok {
			stopped = append(stopped, room)
		} else if proc.exited() && !dryRun {
			delete(s.procs, room)
		}
	}
	for room := range want {
		proc, ok := s.procs[room]
		if !ok || proc.exited() {
			started = append(started, room)
		}
	}
	sortIDs(started)
	sortIDs(stopped)
	if dryRun {
		return started, stopped, nil
	}

	var errs []error
	for _, room := range stopped {
		s.stop(room, s.procs[room])
		delete(s.procs, room)
	}
	for _, room := range started {
		proc, err := s.spawn(ctx, room)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.procs[room] = proc
	}
	return started, stopped, errors.Join(errs...)
}

// Running lists rooms with a live recorder.
func (s *Supervisor) Running() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rooms []int64
	for room, proc := range s.procs {
		if !proc.exited() {
			rooms = append(rooms, room)
		}
	}
	sortIDs(rooms)
	return rooms
}

// Stop terminates every recorder.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	for room, proc := range s.procs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stop(room, proc)
		}()
	}
	wg.Wait()
	clear(s.procs)
}

// Args returns the recorder command line for room.
func (s *Supervisor) Args(room int64) []string {
	args := append([]string(nil), s.opts.Recorder.Args...)
	args = append(args,
		"--webhook-url", s.opts.WebhookURL,
		"--filename", s.opts.Recorder.FilenameTemplate,
		filepath.Clean(s.opts.StorageDir)+string(filepath.Separator),
		strconv.FormatInt(room, 10),
	)
	return args
}

func (s *Supervisor) spawn(_ context.Context, room int64) (*process, error) {
	// Recorders outlive individual requests, so they are not bound to ctx.
	cmd := exec.Command(s.opts.Recorder.Binary, s.Args(room)...)
	proc := &process{cmd: cmd, done: make(chan struct{})}
	if s.opts.LogDir != "" {
		path := filepath.Join(s.opts.LogDir, fmt.Sprintf("recorder-%d.log", room))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "recorder", "open log", path, err)
		}
		cmd.Stdout, cmd.Stderr = file, file
		proc.log = file
	}
	if err := cmd.Start(); err != nil {
		if proc.log != nil {
			proc.log.Close()
		}
		return nil, services.Wrap(services.ErrExternalTool, "recorder", "spawn", fmt.Sprintf("room %d", room), err)
	}
	s.logger.Info("recorder started",
		logging.Int64(logging.FieldRoomID, room),
		logging.Int("pid", cmd.Process.Pid),
		logging.String(logging.FieldEventType, "recorder_started"),
	)
	go func() {
		proc.err = cmd.Wait()
		if proc.log != nil {
			proc.log.Close()
		}
		close(proc.done)
	}()
	return proc, nil
}

func (s *Supervisor) stop(room int64, proc *process) {
	if proc == nil || proc.exited() {
		return
	}
	timeout := time.Duration(s.opts.Recorder.StopTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	_ = proc.cmd.Process.Signal(unix.SIGTERM)
	select {
	case <-proc.done:
	case <-time.After(timeout):
		logging.WarnWithContext(s.logger, "recorder ignored SIGTERM; killing", "recorder_kill",
			logging.Int64(logging.FieldRoomID, room),
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "check the recorder log for a stuck shutdown"),
			logging.String(logging.FieldImpact, "the segment being written may be truncated"),
		)
		_ = proc.cmd.Process.Kill()
		<-proc.done
	}
	s.logger.Info("recorder stopped",
		logging.Int64(logging.FieldRoomID, room),
		logging.String(logging.FieldEventType, "recorder_stopped"),
	)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
