package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archivist/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantState := filepath.Join(tempHome, ".local", "share", "archivist")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.StatePath() != filepath.Join(wantState, "state.db") {
		t.Fatalf("unexpected state path: %q", cfg.StatePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.WebhookURL() != "http://127.0.0.1:7491/process_video" {
		t.Fatalf("unexpected webhook url: %q", cfg.WebhookURL())
	}
	if cfg.Workflow.EarlyWaitSeconds != 60 || cfg.Workflow.FinalWaitSeconds != 360 {
		t.Fatalf("unexpected workflow delays: %+v", cfg.Workflow)
	}
	if cfg.Workflow.PollIntervalSeconds != 60 {
		t.Fatalf("unexpected poll interval: %d", cfg.Workflow.PollIntervalSeconds)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadRoomsAndAccounts(t *testing.T) {
	t.Setenv("MAIN_TOKEN", "secret-token")
	path := writeConfig(t, `
[accounts.main]
kind = "HTTP"
base_url = "https://example.com/api/"
token_env = "MAIN_TOKEN"

[[rooms]]
id = 42
uploader = "main"
title = "$name $title"
webhook = "http://hooks.local/"

[[rooms]]
id = 43
continue_session_minutes = 0
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	account, ok := cfg.Account("main")
	if !ok {
		t.Fatal("expected main account")
	}
	if account.Kind != config.AccountHTTP {
		t.Fatalf("expected kind lowercased, got %q", account.Kind)
	}
	if account.Token != "secret-token" {
		t.Fatalf("expected token from env, got %q", account.Token)
	}
	if account.BaseURL != "https://example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", account.BaseURL)
	}
	if account.DisplayName != "main" {
		t.Fatalf("expected display name to default to account name, got %q", account.DisplayName)
	}

	room, ok := cfg.Room(42)
	if !ok {
		t.Fatal("expected room 42")
	}
	if room.ContinuationWindow() != 5*time.Minute {
		t.Fatalf("expected default continuation window, got %v", room.ContinuationWindow())
	}
	if room.Webhook != "http://hooks.local" {
		t.Fatalf("unexpected webhook: %q", room.Webhook)
	}
	if !room.HasUploader() {
		t.Fatal("expected room 42 to have an uploader")
	}
	other, _ := cfg.Room(43)
	if other.ContinuationWindow() != 0 {
		t.Fatalf("expected disabled continuation window, got %v", other.ContinuationWindow())
	}
	if got := cfg.RoomIDs(); len(got) != 2 || got[0] != 42 || got[1] != 43 {
		t.Fatalf("unexpected room ids: %v", got)
	}
}

func TestLoadReadsDotenvNextToConfig(t *testing.T) {
	path := writeConfig(t, `
[notifications]
redis_addr = "127.0.0.1:6379"
`)
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(dotenv, []byte("ARCHIVIST_REDIS_PASSWORD=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("ARCHIVIST_REDIS_PASSWORD", "")
	os.Unsetenv("ARCHIVIST_REDIS_PASSWORD")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.RedisPassword != "from-dotenv" {
		t.Fatalf("expected redis password from .env, got %q", cfg.Notifications.RedisPassword)
	}
}

func TestLoadDotenvDoesNotOverrideEnvironment(t *testing.T) {
	path := writeConfig(t, "")
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(dotenv, []byte("ARCHIVIST_REDIS_PASSWORD=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("ARCHIVIST_REDIS_PASSWORD", "from-env")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.RedisPassword != "from-env" {
		t.Fatalf("expected environment to win, got %q", cfg.Notifications.RedisPassword)
	}
}

func TestLoadMissingExplicitDotenvFails(t *testing.T) {
	path := writeConfig(t, `
[paths]
dotenv_file = "/nonexistent/archivist.env"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing explicit dotenv file")
	}
}

func TestValidateRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "duplicate room",
			body: "[[rooms]]\nid = 1\n[[rooms]]\nid = 1\n",
			want: "duplicate room id",
		},
		{
			name: "non-positive room",
			body: "[[rooms]]\nid = 0\n",
			want: "id must be positive",
		},
		{
			name: "unknown uploader",
			body: "[[rooms]]\nid = 1\nuploader = \"ghost\"\ntitle = \"x\"\n",
			want: "does not name a configured account",
		},
		{
			name: "uploader without title",
			body: "[accounts.disk]\nkind = \"local\"\narchive_dir = \"/tmp/a\"\n[[rooms]]\nid = 1\nuploader = \"disk\"\n",
			want: "title must be set",
		},
		{
			name: "s3 without bucket",
			body: "[accounts.s3]\nkind = \"s3\"\nregion = \"us-east-1\"\n",
			want: "bucket must be set",
		},
		{
			name: "unknown kind",
			body: "[accounts.x]\nkind = \"ftp\"\n",
			want: "kind must be one of",
		},
		{
			name: "bad encoder",
			body: "[media]\nencoder = \"quicksync\"\n",
			want: "media.encoder",
		},
		{
			name: "zero poll interval",
			body: "[workflow]\npoll_interval_seconds = 0\n",
			want: "workflow.poll_interval_seconds must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			_, _, _, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Rooms) != 1 || cfg.Rooms[0].Uploader != "main" {
		t.Fatalf("unexpected sample rooms: %+v", cfg.Rooms)
	}
}

func TestEnsureDirectoriesCreatesStateAndLogDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.StorageDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
