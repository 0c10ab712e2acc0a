package workflow

import (
	"archivist/internal/publisher"
)

// MaxPublishRetries is how many times a failed publish is requeued before it
// is abandoned. A task is attempted at most MaxPublishRetries+1 times.
const MaxPublishRetries = 5

// PublishTask is one queued publish. Retries counts failed attempts that were
// requeued. CommentQueued is set when the comment task was already queued
// alongside this publish, so the first successful publish must not add one.
type PublishTask struct {
	ID            string
	Upload        publisher.Upload
	HighlightPath string
	SuperChatPath string
	CaptionPath   string
	CommentQueued bool
	Retries       int
}

// Status is a point-in-time view of the queues.
type Status struct {
	Running         bool `json:"running"`
	PendingPublish  int  `json:"pendingPublish"`
	PendingComments int  `json:"pendingComments"`
	PendingCaptions int  `json:"pendingCaptions"`
	ActiveComments  int  `json:"activeComments"`
	ActiveCaptions  int  `json:"activeCaptions"`
}
