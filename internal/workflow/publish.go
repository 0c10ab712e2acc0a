package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"archivist/internal/logging"
	"archivist/internal/publisher"
	"archivist/internal/services"
	"archivist/internal/state"
)

func (m *Manager) runPublish(ctx context.Context) {
	defer m.wg.Done()
	for {
		task, ok := m.publish.Pop(ctx)
		if !ok {
			return
		}
		m.processPublish(ctx, task)
	}
}

func (m *Manager) publishLogger(ctx context.Context, task PublishTask) *slog.Logger {
	ctx = services.WithSessionID(ctx, task.Upload.SessionID)
	ctx = services.WithRoomID(ctx, task.Upload.RoomID)
	return logging.WithContext(ctx, m.logger).With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("variant", task.Upload.Variant.String()),
		logging.String("account", task.Upload.Account),
	)
}

func (m *Manager) processPublish(ctx context.Context, task PublishTask) {
	logger := m.publishLogger(ctx, task)
	artifactID, first, err := m.attemptPublish(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.handlePublishFailure(logger, task, err)
		return
	}
	logger.Info("artifact published",
		logging.String("artifact_id", artifactID),
		logging.Int("retries", task.Retries),
		logging.String(logging.FieldEventType, "publish_completed"),
	)
	m.queueFollowUps(ctx, logger, task, artifactID, first)
}

// attemptPublish uploads and records the artifact id. first reports whether
// the session had no artifact before. A panic counts as a failed attempt.
func (m *Manager) attemptPublish(ctx context.Context, task PublishTask) (artifactID string, first bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publish panicked: %v", r)
		}
	}()
	upload := task.Upload
	if existing, ok := m.ledger.ArtifactID(upload.SessionID); ok {
		upload.ArtifactID = existing
	}
	artifactID, err = m.client.Publish(ctx, upload)
	if err != nil {
		return "", false, err
	}
	first, err = m.ledger.RecordArtifact(ctx, upload.SessionID, artifactID)
	if err != nil {
		return "", false, services.Wrap(services.ErrTransient, "publish", "record artifact", upload.SessionID, err)
	}
	return artifactID, first, nil
}

func (m *Manager) handlePublishFailure(logger *slog.Logger, task PublishTask, err error) {
	if task.Retries < MaxPublishRetries {
		task.Retries++
		logging.WarnWithContext(logger, "publish failed; requeued", "publish_retry",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.Int("retries", task.Retries),
			logging.Int("max_retries", MaxPublishRetries),
			logging.String(logging.FieldErrorHint, "check the destination account and network"),
			logging.String(logging.FieldImpact, "publish will be attempted again after other queued work"),
		)
		m.requeue(task)
		return
	}
	logging.ErrorWithContext(logger, "publish abandoned after retry ceiling", "publish_abandoned",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.Int("retries", task.Retries),
		logging.String("video", task.Upload.Video),
		logging.String(logging.FieldErrorHint, "upload the video manually; it is still on disk"),
		logging.String(logging.FieldImpact, "this artifact will not be published automatically"),
	)
}

// queueFollowUps queues the comment for the first publish of a session and a
// caption for every publish whose caption file exists.
func (m *Manager) queueFollowUps(ctx context.Context, logger *slog.Logger, task PublishTask, artifactID string, first bool) {
	upload := task.Upload
	if first && !task.CommentQueued {
		m.EnqueueComment(state.CommentTask{
			SessionID:     upload.SessionID,
			RoomID:        upload.RoomID,
			Account:       upload.Account,
			HighlightPath: task.HighlightPath,
			SuperChatPath: task.SuperChatPath,
		})
	}

	if task.CaptionPath == "" {
		return
	}
	if _, err := os.Stat(task.CaptionPath); err != nil {
		logger.Debug("caption file missing; no caption task", logging.String("path", task.CaptionPath))
		return
	}
	trackID, err := m.client.LookupTrackID(ctx, upload.Account, artifactID)
	if err != nil && !errors.Is(err, publisher.ErrTrackPending) {
		logging.WarnWithContext(logger, "track lookup failed; caption worker will retry", "track_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "caption is attached once the track id resolves"),
		)
	}
	m.EnqueueCaption(state.CaptionTask{
		SessionID:   upload.SessionID,
		RoomID:      upload.RoomID,
		Account:     upload.Account,
		ArtifactID:  artifactID,
		TrackID:     trackID,
		Variant:     upload.Variant,
		CaptionPath: task.CaptionPath,
	})
}
