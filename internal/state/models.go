package state

import (
	"fmt"
	"strings"
	"time"
)

// Variant distinguishes the two artifacts published for one session. Variants
// are ordered: a later variant supersedes an earlier one.
type Variant int

const (
	// VariantEarly is the concatenated, untranscoded artifact.
	VariantEarly Variant = iota + 1
	// VariantFinal is the re-encoded artifact with the annotation overlay.
	VariantFinal
)

func (v Variant) String() string {
	switch v {
	case VariantEarly:
		return "early"
	case VariantFinal:
		return "final"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(value string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "early":
		return VariantEarly, nil
	case "final":
		return VariantFinal, nil
	default:
		return 0, fmt.Errorf("unknown variant %q", value)
	}
}

// CommentTask asks for the companion comment to be posted on a session's
// artifact. The artifact id is resolved from the record at post time.
type CommentTask struct {
	ID            string
	SessionID     string
	RoomID        int64
	Account       string
	HighlightPath string
	SuperChatPath string
	CreatedAt     time.Time
}

// CaptionTask asks for a caption track to be attached to a published artifact.
// TrackID may be empty when the platform had not assigned one yet.
type CaptionTask struct {
	ID          string
	SessionID   string
	RoomID      int64
	Account     string
	ArtifactID  string
	TrackID     string
	Variant     Variant
	CaptionPath string
	CreatedAt   time.Time
}

// Record is the persistent save record.
type Record struct {
	Artifacts map[string]string
	Titles    map[string]string
	Comments  []CommentTask
	Captions  []CaptionTask
}

// NewRecord returns an empty record with initialized maps.
func NewRecord() Record {
	return Record{Artifacts: map[string]string{}, Titles: map[string]string{}}
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (r Record) Clone() Record {
	out := NewRecord()
	for k, v := range r.Artifacts {
		out.Artifacts[k] = v
	}
	for k, v := range r.Titles {
		out.Titles[k] = v
	}
	out.Comments = append([]CommentTask(nil), r.Comments...)
	out.Captions = append([]CaptionTask(nil), r.Captions...)
	return out
}

// Supersede removes the succeeded caption tasks together with every other
// task of the same session whose variant is strictly lower than a succeeded
// one. Order of the remaining tasks is preserved.
func Supersede(tasks []CaptionTask, succeeded []string) []CaptionTask {
	if len(succeeded) == 0 {
		return append([]CaptionTask(nil), tasks...)
	}
	done := make(map[string]struct{}, len(succeeded))
	for _, id := range succeeded {
		done[id] = struct{}{}
	}
	highest := make(map[string]Variant)
	for _, task := range tasks {
		if _, ok := done[task.ID]; !ok {
			continue
		}
		if task.Variant > highest[task.SessionID] {
			highest[task.SessionID] = task.Variant
		}
	}
	out := make([]CaptionTask, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := done[task.ID]; ok {
			continue
		}
		if top, ok := highest[task.SessionID]; ok && task.Variant < top {
			continue
		}
		out = append(out, task)
	}
	return out
}
