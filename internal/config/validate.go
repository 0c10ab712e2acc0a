package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateAccounts(); err != nil {
		return err
	}
	if err := c.validateRooms(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_seconds": c.Workflow.PollIntervalSeconds,
		"workflow.max_pipelines":         c.Workflow.MaxPipelines,
		"workflow.event_buffer":          c.Workflow.EventBuffer,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"recorder.stop_timeout_seconds":  c.Recorder.StopTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Notifications.RedisDB < 0 {
		return errors.New("notifications.redis_db must be >= 0")
	}
	return nil
}

func (c *Config) validateMedia() error {
	switch c.Media.Encoder {
	case "auto", "nvenc", "software":
		return nil
	default:
		return fmt.Errorf("media.encoder must be one of auto, nvenc, software (got %q)", c.Media.Encoder)
	}
}

func (c *Config) validateAccounts() error {
	for name, account := range c.Accounts {
		switch account.Kind {
		case AccountHTTP:
			if account.BaseURL == "" {
				return fmt.Errorf("accounts.%s.base_url must be set for http accounts", name)
			}
		case AccountS3:
			if strings.TrimSpace(account.Bucket) == "" {
				return fmt.Errorf("accounts.%s.bucket must be set for s3 accounts", name)
			}
			if strings.TrimSpace(account.Region) == "" {
				return fmt.Errorf("accounts.%s.region must be set for s3 accounts", name)
			}
		case AccountLocal:
			if account.ArchiveDir == "" {
				return fmt.Errorf("accounts.%s.archive_dir must be set for local accounts", name)
			}
		default:
			return fmt.Errorf("accounts.%s.kind must be one of http, s3, local (got %q)", name, account.Kind)
		}
	}
	return nil
}

func (c *Config) validateRooms() error {
	seen := make(map[int64]struct{}, len(c.Rooms))
	for _, room := range c.Rooms {
		if room.ID <= 0 {
			return fmt.Errorf("rooms: id must be positive (got %d)", room.ID)
		}
		if _, dup := seen[room.ID]; dup {
			return fmt.Errorf("rooms: duplicate room id %d", room.ID)
		}
		seen[room.ID] = struct{}{}
		if room.ContinueSessionMinutes != nil && *room.ContinueSessionMinutes < 0 {
			return fmt.Errorf("rooms[%d].continue_session_minutes must be >= 0", room.ID)
		}
		if !room.HasUploader() {
			continue
		}
		if _, ok := c.Accounts[room.Uploader]; !ok {
			return fmt.Errorf("rooms[%d].uploader %q does not name a configured account", room.ID, room.Uploader)
		}
		if strings.TrimSpace(room.Title) == "" {
			return fmt.Errorf("rooms[%d].title must be set when an uploader is bound", room.ID)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
