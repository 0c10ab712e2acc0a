package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"archivist/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Workflow delays are zeroed and the recorder is disabled; options re-enable
// what a test needs.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StorageDir = filepath.Join(base, "storage")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Recorder.Enabled = false
	cfgVal.Workflow.EarlyWaitSeconds = 0
	cfgVal.Workflow.FinalWaitSeconds = 0
	cfgVal.Workflow.PollIntervalSeconds = 1
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithRoom appends a room to the test config.
func WithRoom(room config.Room) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rooms = append(b.cfg.Rooms, room)
	}
}

// WithAccount registers a publishing account on the test config.
func WithAccount(name string, account config.Account) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Accounts == nil {
			b.cfg.Accounts = map[string]config.Account{}
		}
		if account.DisplayName == "" {
			account.DisplayName = name
		}
		b.cfg.Accounts[name] = account
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "python3", "DanmakuFactory", "BililiveRecorder.Cli"}
		}
		scripts := make(map[string]string, len(names))
		for _, name := range names {
			scripts[name] = "#!/bin/sh\nexit 0\n"
		}
		installStubs(b.t, b.baseDir, scripts)
	}
}

// WithStubScript installs one executable with the given shell body on PATH.
func WithStubScript(name, body string) ConfigOption {
	return func(b *configBuilder) {
		installStubs(b.t, b.baseDir, map[string]string{name: "#!/bin/sh\n" + body + "\n"})
	}
}

func installStubs(t testing.TB, baseDir string, scripts map[string]string) {
	t.Helper()
	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for name, script := range scripts {
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfigFile serializes cfg as TOML under the config's base directory and
// returns the file path, for code that loads configuration from disk.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
