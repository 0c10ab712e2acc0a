package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"archivist/internal/config"
	"archivist/internal/logging"
)

const userAgent = "archivist/0.1"

// Event names a pipeline milestone. The value is also the webhook path
// suffix and the Redis channel suffix.
type Event string

const (
	EventRecordStart     Event = "record_start"
	EventRecordEnd       Event = "record_end"
	EventPrepared        Event = "prepared"
	EventVideoGenerated  Event = "video_generated"
	EventVideoTranscoded Event = "video_transcoded"
)

// Payload carries the event fields. Keys are the JSON field names.
type Payload map[string]any

// Service delivers notifications for one room.
type Service interface {
	Publish(ctx context.Context, room config.Room, event Event, payload Payload) error
}

// NewService builds the notifier fanout for cfg: per-room webhooks always,
// plus a Redis sink when notifications.redis_addr is set. The returned
// service never fails; delivery errors are logged.
func NewService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Service, func() error, error) {
	logger = logging.NewComponentLogger(logger, "notifications")
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sinks := []Service{&webhookService{client: &http.Client{Timeout: timeout}}}
	closer := func() error { return nil }

	if addr := strings.TrimSpace(cfg.Notifications.RedisAddr); addr != "" {
		sink, err := newRedisService(ctx, cfg.Notifications, timeout)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("redis notification sink connected", logging.String("addr", addr))
		sinks = append(sinks, sink)
		closer = sink.Close
	}
	return &Hub{sinks: sinks, logger: logger}, closer, nil
}

// Hub fans an event out to every sink. Failures are logged and swallowed.
type Hub struct {
	sinks  []Service
	logger *slog.Logger
}

// NewHub wraps sinks in a non-failing fanout.
func NewHub(logger *slog.Logger, sinks ...Service) *Hub {
	return &Hub{sinks: sinks, logger: logging.NewComponentLogger(logger, "notifications")}
}

// Publish delivers to every sink and always returns nil.
func (h *Hub) Publish(ctx context.Context, room config.Room, event Event, payload Payload) error {
	for _, sink := range h.sinks {
		if err := sink.Publish(ctx, room, event, payload); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, h.logger), "notification delivery failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the room webhook endpoint or redis connectivity"),
				logging.String(logging.FieldImpact, "downstream listeners missed this event; the pipeline continues"),
			)
		}
	}
	return nil
}

type webhookService struct {
	client *http.Client
}

// Publish posts the payload as JSON to <room.webhook>/<event>. Rooms without
// a webhook are skipped.
func (w *webhookService) Publish(ctx context.Context, room config.Room, event Event, payload Payload) error {
	base := strings.TrimSpace(room.Webhook)
	if base == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/"+string(event), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SessionPayload is the record_start/record_end body. at is sent in
// milliseconds since the epoch.
func SessionPayload(sessionID, title, name, areaParent, areaChild string, at time.Time) Payload {
	return Payload{
		"sessionId":      sessionID,
		"title":          title,
		"name":           name,
		"areaNameParent": areaParent,
		"areaNameChild":  areaChild,
		"time":           at.UnixMilli(),
	}
}

// PreparedPayload is the prepared body.
func PreparedPayload(sessionID string, width, height int, duration float64, thumbnail, annotations string) Payload {
	return Payload{
		"sessionId": sessionID,
		"width":     width,
		"height":    height,
		"duration":  duration,
		"thumbnail": thumbnail,
		"danmaku":   annotations,
	}
}

// VideoPayload is the video_generated/video_transcoded body.
func VideoPayload(sessionID, videoPath string) Payload {
	return Payload{"sessionId": sessionID, "videoPath": videoPath}
}

// RelativeVideoPath expresses path relative to the room's recording
// directory, falling back to path unchanged when it lies elsewhere.
func RelativeVideoPath(storageDir string, roomID int64, path string) string {
	roomDir := filepath.Join(storageDir, strconv.FormatInt(roomID, 10))
	rel, err := filepath.Rel(roomDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

type noopService struct{}

func (noopService) Publish(context.Context, config.Room, Event, Payload) error { return nil }

// Noop returns a service that drops every event.
func Noop() Service { return noopService{} }
