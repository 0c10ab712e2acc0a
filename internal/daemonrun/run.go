package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/media"
	"archivist/internal/notifications"
	"archivist/internal/pipeline"
	"archivist/internal/preflight"
	"archivist/internal/publisher"
	"archivist/internal/recorder"
	"archivist/internal/registry"
	"archivist/internal/services"
	"archivist/internal/state"
	"archivist/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is re-read on SIGHUP.
	ConfigPath string
	LogLevel   string
}

// Run starts the archivist daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(opts.LogLevel) != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	defer signal.Stop(hangup)

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("archivistd-%s.log", runID))
	logger, err := logging.NewFromConfig(cfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update archivistd.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "archivistd-*.log", Exclude: []string{logPath}},
	)

	dependencies := preflight.CheckSystemDeps(cfg)
	logDependencySnapshot(logger, dependencies)
	logPreflight(logger, preflight.RunAll(signalCtx, cfg))

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := state.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer store.Close()
	ledger, err := state.NewLedger(signalCtx, store)
	if err != nil {
		logger.Error("load save record", logging.Error(err))
		return err
	}

	notifier, closeNotifier, err := notifications.NewService(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init notifications: %w", err)
	}
	defer func() { _ = closeNotifier() }()

	client, err := publisher.NewRouter(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	proc := media.NewToolchain(cfg.Media, logger)
	manager := workflow.NewManager(cfg, ledger, client, logger)
	runner := pipeline.NewRunner(cfg, proc, ledger, manager, notifier, logger)
	scheduler, err := pipeline.NewScheduler(signalCtx, runner, cfg.Workflow.MaxPipelines, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	reg := registry.New(cfg, proc, scheduler, notifier, logger)

	var supervisor *recorder.Supervisor
	if cfg.Recorder.Enabled {
		supervisor = recorder.NewSupervisor(recorder.Options{
			Recorder:   cfg.Recorder,
			WebhookURL: cfg.WebhookURL(),
			StorageDir: cfg.Paths.StorageDir,
			LogDir:     cfg.Paths.LogDir,
			Logger:     logger,
		})
	}

	d, err := daemon.New(cfg, logger, daemon.Components{
		Ledger:       ledger,
		Registry:     reg,
		Workflow:     manager,
		Scheduler:    scheduler,
		Runner:       runner,
		Publisher:    client,
		Supervisor:   supervisor,
		Dependencies: dependencies,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("archivist daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
			return nil
		case <-hangup:
			reload(signalCtx, logger, d, opts.ConfigPath)
		}
	}
}

func reload(ctx context.Context, logger *slog.Logger, d *daemon.Daemon, path string) {
	next, resolved, exists, err := config.Load(path)
	if err == nil && !exists {
		err = fmt.Errorf("config file %s not found", resolved)
	}
	if err != nil {
		logging.WarnWithContext(logger, "config reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "fix the file and send SIGHUP again"),
			logging.String(logging.FieldImpact, "the previous room set stays active"),
		)
		return
	}
	started, stopped, err := d.Reload(ctx, next)
	if errors.Is(err, services.ErrConfiguration) {
		logging.WarnWithContext(logger, "config reload rejected", "config_reload_failed",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "check the publishing accounts and send SIGHUP again"),
			logging.String(logging.FieldImpact, "the previous accounts and room set stay active"),
		)
		return
	}
	if err != nil {
		logging.WarnWithContext(logger, "recorder reconcile incomplete", "recorder_reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "some rooms may not be recorded"),
		)
	}
	logger.Info("config reloaded",
		logging.Int("rooms", len(next.Rooms)),
		logging.Int("accounts", len(next.Accounts)),
		logging.Any("recorders_started", started),
		logging.Any("recorders_stopped", stopped),
		logging.String(logging.FieldEventType, "config_reloaded"),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "archivistd.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs, logging.Group(strings.ToLower(strings.ReplaceAll(status.Name, " ", "_")),
			logging.Bool("available", status.Available),
			logging.String("command", status.Command),
		))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required binary missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, missing.Description),
			logging.String(logging.FieldImpact, "stages using it will fail"),
		)
	}
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "processing may fail until this is fixed"),
		)
	}
}
