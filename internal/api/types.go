package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CommentTask is an active comment task.
type CommentTask struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	RoomID    int64  `json:"roomId"`
	Account   string `json:"account"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CaptionTask is an active caption task.
type CaptionTask struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	RoomID     int64  `json:"roomId"`
	Account    string `json:"account"`
	ArtifactID string `json:"artifactId"`
	TrackID    string `json:"trackId,omitempty"`
	Variant    string `json:"variant"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// StateResponse mirrors the persistent save record.
type StateResponse struct {
	Artifacts map[string]string `json:"artifacts"`
	Titles    map[string]string `json:"titles"`
	Comments  []CommentTask     `json:"comments"`
	Captions  []CaptionTask     `json:"captions"`
}

// Session describes a session tracked by the registry.
type Session struct {
	ID              string   `json:"id"`
	Aliases         []string `json:"aliases,omitempty"`
	RoomID          int64    `json:"roomId"`
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	Start           string   `json:"start"`
	End             string   `json:"end,omitempty"`
	Segments        int      `json:"segments"`
	Duration        float64  `json:"duration"`
	Prepared        bool     `json:"prepared"`
	PipelinePending bool     `json:"pipelinePending"`
	Done            bool     `json:"done"`
}

// WorkflowStatus summarizes the stage queues.
type WorkflowStatus struct {
	Running         bool `json:"running"`
	PendingPublish  int  `json:"pendingPublish"`
	PendingComments int  `json:"pendingComments"`
	PendingCaptions int  `json:"pendingCaptions"`
	ActiveComments  int  `json:"activeComments"`
	ActiveCaptions  int  `json:"activeCaptions"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	StatePath        string             `json:"statePath"`
	LockFilePath     string             `json:"lockFilePath"`
	RunningPipelines int                `json:"runningPipelines"`
	Recorders        []int64            `json:"recorders"`
	Workflow         WorkflowStatus     `json:"workflow"`
	Sessions         []Session          `json:"sessions"`
	Dependencies     []DependencyStatus `json:"dependencies"`
}
