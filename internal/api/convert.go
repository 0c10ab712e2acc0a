package api

import (
	"time"

	"archivist/internal/deps"
	"archivist/internal/session"
	"archivist/internal/state"
	"archivist/internal/workflow"
)

// FromRecord converts the save record.
func FromRecord(rec state.Record) StateResponse {
	out := StateResponse{
		Artifacts: make(map[string]string, len(rec.Artifacts)),
		Titles:    make(map[string]string, len(rec.Titles)),
		Comments:  make([]CommentTask, 0, len(rec.Comments)),
		Captions:  make([]CaptionTask, 0, len(rec.Captions)),
	}
	for k, v := range rec.Artifacts {
		out.Artifacts[k] = v
	}
	for k, v := range rec.Titles {
		out.Titles[k] = v
	}
	for _, task := range rec.Comments {
		out.Comments = append(out.Comments, CommentTask{
			ID:        task.ID,
			SessionID: task.SessionID,
			RoomID:    task.RoomID,
			Account:   task.Account,
			CreatedAt: formatTime(task.CreatedAt),
		})
	}
	for _, task := range rec.Captions {
		out.Captions = append(out.Captions, CaptionTask{
			ID:         task.ID,
			SessionID:  task.SessionID,
			RoomID:     task.RoomID,
			Account:    task.Account,
			ArtifactID: task.ArtifactID,
			TrackID:    task.TrackID,
			Variant:    task.Variant.String(),
			CreatedAt:  formatTime(task.CreatedAt),
		})
	}
	return out
}

// FromSession converts a live session.
func FromSession(s *session.Session) Session {
	meta := s.Metadata()
	out := Session{
		ID:              s.ID(),
		Aliases:         s.Aliases(),
		RoomID:          s.RoomID(),
		Name:            meta.Name,
		Title:           meta.Title,
		Start:           formatTime(s.Start()),
		Segments:        len(s.Segments()),
		Duration:        s.Duration(),
		Prepared:        s.Prepared(),
		PipelinePending: s.PipelinePending(),
		Done:            s.Done(),
	}
	if end, ok := s.End(); ok {
		out.End = formatTime(end)
	}
	return out
}

// FromSessions converts sessions in order.
func FromSessions(sessions []*session.Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}

// FromWorkflowStatus converts the workflow queue summary.
func FromWorkflowStatus(st workflow.Status) WorkflowStatus {
	return WorkflowStatus{
		Running:         st.Running,
		PendingPublish:  st.PendingPublish,
		PendingComments: st.PendingComments,
		PendingCaptions: st.PendingCaptions,
		ActiveComments:  st.ActiveComments,
		ActiveCaptions:  st.ActiveCaptions,
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
