package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageDir string `toml:"storage_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	DotenvFile string `toml:"dotenv_file"`
}

// Recorder contains configuration for the per-room recorder subprocesses.
type Recorder struct {
	Enabled            bool     `toml:"enabled"`
	Binary             string   `toml:"binary"`
	Args               []string `toml:"args"`
	FilenameTemplate   string   `toml:"filename_template"`
	StopTimeoutSeconds int      `toml:"stop_timeout_seconds"`
}

// Media contains the external tool configuration used to build artifacts.
type Media struct {
	FFmpegBinary         string `toml:"ffmpeg_binary"`
	FFprobeBinary        string `toml:"ffprobe_binary"`
	DanmakuPython        string `toml:"danmaku_python"`
	DanmakuFactoryBinary string `toml:"danmaku_factory_binary"`
	FontName             string `toml:"font_name"`
	Encoder              string `toml:"encoder"`
	GPUProbeBinary       string `toml:"gpu_probe_binary"`
}

// Workflow contains the pipeline delays and worker intervals.
type Workflow struct {
	EarlyWaitSeconds         int `toml:"early_wait_seconds"`
	FinalWaitSeconds         int `toml:"final_wait_seconds"`
	PollIntervalSeconds      int `toml:"poll_interval_seconds"`
	PublishRetryDelaySeconds int `toml:"publish_retry_delay_seconds"`
	MaxPipelines             int `toml:"max_pipelines"`
	EventBuffer              int `toml:"event_buffer"`
}

// Notifications contains outbound notification settings shared by all rooms.
type Notifications struct {
	RequestTimeout     int    `toml:"request_timeout"`
	RedisAddr          string `toml:"redis_addr"`
	RedisPassword      string `toml:"redis_password"`
	RedisDB            int    `toml:"redis_db"`
	RedisChannelPrefix string `toml:"redis_channel_prefix"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Account kinds understood by the publisher router.
const (
	AccountHTTP  = "http"
	AccountS3    = "s3"
	AccountLocal = "local"
)

// Account describes one publishing destination a room can be bound to.
type Account struct {
	Kind            string `toml:"kind"`
	DisplayName     string `toml:"display_name"`
	BaseURL         string `toml:"base_url"`
	Token           string `toml:"token"`
	TokenEnv        string `toml:"token_env"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	ArchiveDir      string `toml:"archive_dir"`
	CommentPrefix   string `toml:"comment_prefix"`
}

// Room is the static per-room policy.
type Room struct {
	ID                     int64  `toml:"id"`
	Webhook                string `toml:"webhook"`
	ContinueSessionMinutes *int   `toml:"continue_session_minutes"`
	Uploader               string `toml:"uploader"`
	Tags                   string `toml:"tags"`
	ChannelID              int64  `toml:"channel_id"`
	Title                  string `toml:"title"`
	Description            string `toml:"description"`
	Source                 string `toml:"source"`
	HEUserDict             string `toml:"he_user_dict"`
	HERegexRules           string `toml:"he_regex_rules"`
}

// ContinuationWindow is how long after a session ends a new session start in
// the same room is still merged into it. Zero disables merging.
func (r Room) ContinuationWindow() time.Duration {
	minutes := defaultContinueSessionMinutes
	if r.ContinueSessionMinutes != nil {
		minutes = *r.ContinueSessionMinutes
	}
	if minutes <= 0 {
		return 0
	}
	return time.Duration(minutes) * time.Minute
}

// HasUploader reports whether sessions in this room are published.
func (r Room) HasUploader() bool {
	return strings.TrimSpace(r.Uploader) != ""
}

// Config encapsulates all configuration values for archivist.
//
// Configuration sections by subsystem:
//   - Paths: recorder storage root, state and log directories, API bind address
//   - Recorder: recorder subprocess binary and arguments
//   - Media: ffmpeg/ffprobe and annotation tooling
//   - Workflow: pipeline delays, worker poll interval, pool sizes
//   - Notifications: webhook timeout and optional Redis fanout
//   - Logging: log format, level, and retention
//   - Accounts: named publishing destinations
//   - Rooms: per-room policy
type Config struct {
	Paths         Paths              `toml:"paths"`
	Recorder      Recorder           `toml:"recorder"`
	Media         Media              `toml:"media"`
	Workflow      Workflow           `toml:"workflow"`
	Notifications Notifications      `toml:"notifications"`
	Logging       Logging            `toml:"logging"`
	Accounts      map[string]Account `toml:"accounts"`
	Rooms         []Room             `toml:"rooms"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/archivist/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotenv(cfg.Paths.DotenvFile, resolvedPath); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotenv reads KEY=value pairs into the process environment without
// overriding variables that are already set. An explicitly configured file
// must exist; the implicit .env next to the config file is optional.
func loadDotenv(explicit, configPath string) error {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		expanded, err := expandPath(explicit)
		if err != nil {
			return fmt.Errorf("paths.dotenv_file: %w", err)
		}
		if err := godotenv.Load(expanded); err != nil {
			return fmt.Errorf("load dotenv %s: %w", expanded, err)
		}
		return nil
	}
	if configPath == "" {
		return nil
	}
	candidate := filepath.Join(filepath.Dir(configPath), ".env")
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("load dotenv %s: %w", candidate, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("archivist.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// StorageDir is created on a best-effort basis since it is usually a mount
// owned by the recorder.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.StorageDir) != "" {
		_ = os.MkdirAll(c.Paths.StorageDir, 0o755)
	}
	return nil
}

// StatePath returns the location of the save record database.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "archivistd.lock")
}

// PIDPath returns the file the running daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "archivistd.pid")
}

// WebhookURL is the endpoint recorder subprocesses report events to.
func (c *Config) WebhookURL() string {
	return "http://" + c.Paths.APIBind + "/process_video"
}

// Room returns the configuration for the given room id.
func (c *Config) Room(id int64) (Room, bool) {
	for _, room := range c.Rooms {
		if room.ID == id {
			return room, true
		}
	}
	return Room{}, false
}

// RoomIDs lists the configured room identifiers in declaration order.
func (c *Config) RoomIDs() []int64 {
	ids := make([]int64, 0, len(c.Rooms))
	for _, room := range c.Rooms {
		ids = append(ids, room.ID)
	}
	return ids
}

// Account returns the named publishing account.
func (c *Config) Account(name string) (Account, bool) {
	account, ok := c.Accounts[name]
	return account, ok
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
