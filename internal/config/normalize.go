package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecorder()
	c.normalizeMedia()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	if err := c.normalizeAccounts(); err != nil {
		return err
	}
	c.normalizeRooms()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeRecorder() {
	c.Recorder.Binary = strings.TrimSpace(c.Recorder.Binary)
	if c.Recorder.Binary == "" {
		c.Recorder.Binary = defaultRecorderBinary
	}
	if strings.TrimSpace(c.Recorder.FilenameTemplate) == "" {
		c.Recorder.FilenameTemplate = defaultRecorderFilename
	}
	if c.Recorder.StopTimeoutSeconds <= 0 {
		c.Recorder.StopTimeoutSeconds = defaultRecorderStopTimeout
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = fallback(c.Media.FFmpegBinary, defaultFFmpegBinary)
	c.Media.FFprobeBinary = fallback(c.Media.FFprobeBinary, defaultFFprobeBinary)
	c.Media.DanmakuPython = fallback(c.Media.DanmakuPython, defaultDanmakuPython)
	c.Media.DanmakuFactoryBinary = fallback(c.Media.DanmakuFactoryBinary, defaultDanmakuFactory)
	c.Media.FontName = fallback(c.Media.FontName, defaultFontName)
	c.Media.GPUProbeBinary = fallback(c.Media.GPUProbeBinary, defaultGPUProbeBinary)
	c.Media.Encoder = strings.ToLower(fallback(c.Media.Encoder, defaultEncoder))
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.EarlyWaitSeconds < 0 {
		c.Workflow.EarlyWaitSeconds = 0
	}
	if c.Workflow.FinalWaitSeconds < 0 {
		c.Workflow.FinalWaitSeconds = 0
	}
	if c.Workflow.PublishRetryDelaySeconds < 0 {
		c.Workflow.PublishRetryDelaySeconds = 0
	}
	if c.Workflow.MaxPipelines <= 0 {
		c.Workflow.MaxPipelines = defaultMaxPipelines
	}
	if c.Workflow.EventBuffer <= 0 {
		c.Workflow.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	c.Notifications.RedisPassword = strings.TrimSpace(c.Notifications.RedisPassword)
	if c.Notifications.RedisPassword == "" {
		if value, ok := os.LookupEnv("ARCHIVIST_REDIS_PASSWORD"); ok {
			c.Notifications.RedisPassword = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Notifications.RedisChannelPrefix) == "" {
		c.Notifications.RedisChannelPrefix = defaultRedisChannelPrefix
	}
}

func (c *Config) normalizeAccounts() error {
	if c.Accounts == nil {
		c.Accounts = map[string]Account{}
	}
	for name, account := range c.Accounts {
		account.Kind = strings.ToLower(strings.TrimSpace(account.Kind))
		if account.Kind == "" {
			account.Kind = AccountHTTP
		}
		account.DisplayName = strings.TrimSpace(account.DisplayName)
		if account.DisplayName == "" {
			account.DisplayName = name
		}
		account.BaseURL = strings.TrimRight(strings.TrimSpace(account.BaseURL), "/")
		account.Token = strings.TrimSpace(account.Token)
		if account.Token == "" && strings.TrimSpace(account.TokenEnv) != "" {
			account.Token = strings.TrimSpace(os.Getenv(strings.TrimSpace(account.TokenEnv)))
		}
		if account.Kind == AccountS3 {
			if account.AccessKeyID == "" {
				account.AccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
			}
			if account.SecretAccessKey == "" {
				account.SecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
			}
			account.Prefix = strings.Trim(strings.TrimSpace(account.Prefix), "/")
		}
		if strings.TrimSpace(account.ArchiveDir) != "" {
			dir, err := expandPath(account.ArchiveDir)
			if err != nil {
				return fmt.Errorf("accounts.%s.archive_dir: %w", name, err)
			}
			account.ArchiveDir = dir
		}
		c.Accounts[name] = account
	}
	return nil
}

func (c *Config) normalizeRooms() {
	for i := range c.Rooms {
		room := &c.Rooms[i]
		room.Webhook = strings.TrimRight(strings.TrimSpace(room.Webhook), "/")
		room.Uploader = strings.TrimSpace(room.Uploader)
		room.HEUserDict = strings.TrimSpace(room.HEUserDict)
		room.HERegexRules = strings.TrimSpace(room.HERegexRules)
		if room.ContinueSessionMinutes == nil {
			minutes := defaultContinueSessionMinutes
			room.ContinueSessionMinutes = &minutes
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}
