package workflow

import (
	"context"
	"errors"
	"log/slog"

	"archivist/internal/logging"
	"archivist/internal/publisher"
	"archivist/internal/services"
)

// commentCycle moves queued comments into the active set and attempts each
// active comment once.
func (m *Manager) commentCycle(ctx context.Context, logger *slog.Logger) {
	if queued := m.comments.Drain(); len(queued) > 0 {
		if _, err := m.ledger.AppendCommentTasks(ctx, queued...); err != nil {
			// Back at the head so the next cycle retries them first.
			m.comments.PushFront(queued...)
			logging.ErrorWithContext(logger, "persist comment tasks failed", "state_persist_failed",
				logging.Error(err),
				logging.Int("tasks", len(queued)),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			)
			return
		}
	}

	var done []string
	for _, task := range m.ledger.CommentTasks() {
		if ctx.Err() != nil {
			break
		}
		taskLogger := taskLogger(ctx, logger, task.SessionID, task.RoomID, task.ID)
		artifactID, ok := m.ledger.ArtifactID(task.SessionID)
		if !ok {
			taskLogger.Debug("comment waiting for first publish")
			continue
		}
		err := m.client.PostComment(ctx, publisher.Comment{
			Account:       task.Account,
			ArtifactID:    artifactID,
			HighlightPath: task.HighlightPath,
			SuperChatPath: task.SuperChatPath,
		})
		if err != nil {
			if errors.Is(err, services.ErrValidation) {
				// Nothing to post; retrying cannot change that.
				taskLogger.Info("comment has no content; dropping", logging.Error(err))
				done = append(done, task.ID)
				continue
			}
			logging.WarnWithContext(taskLogger, "comment post failed; will retry next cycle", "comment_retry",
				logging.Error(err),
				logging.String("artifact_id", artifactID),
				logging.String(logging.FieldImpact, "comment stays active"),
			)
			continue
		}
		taskLogger.Info("comment posted",
			logging.String("artifact_id", artifactID),
			logging.String(logging.FieldEventType, "comment_posted"),
		)
		done = append(done, task.ID)
	}
	if err := m.ledger.CompleteCommentTasks(ctx, done...); err != nil {
		logging.ErrorWithContext(logger, "persist comment completion failed", "state_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completed comments may be posted again"),
		)
	}
}

// captionCycle moves queued captions into the active set, resolves missing
// track ids, and attempts each active caption once. Successes retire
// superseded tasks for the same session.
func (m *Manager) captionCycle(ctx context.Context, logger *slog.Logger) {
	if queued := m.captions.Drain(); len(queued) > 0 {
		if _, err := m.ledger.AppendCaptionTasks(ctx, queued...); err != nil {
			m.captions.PushFront(queued...)
			logging.ErrorWithContext(logger, "persist caption tasks failed", "state_persist_failed",
				logging.Error(err),
				logging.Int("tasks", len(queued)),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			)
			return
		}
	}

	var done []string
	retired := make(map[string]struct{})
	for _, task := range m.ledger.CaptionTasks() {
		if ctx.Err() != nil {
			break
		}
		if _, ok := retired[task.ID]; ok {
			continue
		}
		taskLogger := taskLogger(ctx, logger, task.SessionID, task.RoomID, task.ID).With(
			logging.String("variant", task.Variant.String()),
		)
		if task.TrackID == "" {
			trackID, err := m.client.LookupTrackID(ctx, task.Account, task.ArtifactID)
			if err != nil {
				if !errors.Is(err, publisher.ErrTrackPending) {
					logging.WarnWithContext(taskLogger, "track lookup failed; will retry next cycle", "caption_retry",
						logging.Error(err),
						logging.String(logging.FieldImpact, "caption stays active"),
					)
				}
				continue
			}
			if err := m.ledger.SetCaptionTrack(ctx, task.ID, trackID); err != nil {
				taskLogger.Debug("record track id failed", logging.Error(err))
			}
			task.TrackID = trackID
		}
		err := m.client.PostCaption(ctx, publisher.Caption{
			Account:    task.Account,
			ArtifactID: task.ArtifactID,
			TrackID:    task.TrackID,
			Path:       task.CaptionPath,
		})
		if err != nil {
			logging.WarnWithContext(taskLogger, "caption post failed; will retry next cycle", "caption_retry",
				logging.Error(err),
				logging.String(logging.FieldImpact, "caption stays active"),
			)
			continue
		}
		taskLogger.Info("caption posted",
			logging.String("artifact_id", task.ArtifactID),
			logging.String(logging.FieldEventType, "caption_posted"),
		)
		done = append(done, task.ID)
		for _, other := range m.ledger.CaptionTasks() {
			if other.SessionID == task.SessionID && other.Variant < task.Variant {
				retired[other.ID] = struct{}{}
			}
		}
	}
	if err := m.ledger.CompleteCaptionTasks(ctx, done...); err != nil {
		logging.ErrorWithContext(logger, "persist caption completion failed", "state_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completed captions may be posted again"),
		)
	}
}

func taskLogger(ctx context.Context, logger *slog.Logger, sessionID string, roomID int64, taskID string) *slog.Logger {
	ctx = services.WithSessionID(ctx, sessionID)
	ctx = services.WithRoomID(ctx, roomID)
	return logging.WithContext(ctx, logger).With(logging.String(logging.FieldTaskID, taskID))
}

