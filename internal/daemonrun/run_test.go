package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"archivist/internal/config"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "archivistd-1.log")
	second := filepath.Join(dir, "archivistd-2.log")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "archivistd.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "archivistd-2.log" {
		t.Fatalf("pointer resolves to %q", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archivistd.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
}

func TestLogDependencySnapshotHandlesMissing(t *testing.T) {
	logDependencySnapshot(logging.NewNop(), []deps.Status{
		{Name: "FFmpeg", Command: "ffmpeg", Available: true},
		{Name: "GPU probe", Command: "nvidia-smi", Optional: true},
		{Name: "FFprobe", Command: "ffprobe", Detail: "binary \"ffprobe\" not found"},
	})
}

func TestReloadKeepsRoomsOnBadConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoom(config.Room{ID: 1}))
	bad := filepath.Join(testsupport.BaseDir(cfg), "bad.toml")
	if err := os.WriteFile(bad, []byte("[workflow\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A nil daemon is never reached when the config fails to parse.
	reload(context.Background(), logging.NewNop(), nil, bad)
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected nil config to be rejected")
	}
}

func TestReloadIgnoresMissingConfigFile(t *testing.T) {
	// A missing file must not reset the room set to defaults.
	reload(context.Background(), logging.NewNop(), nil, filepath.Join(t.TempDir(), "gone.toml"))
}
