package calls

import "time"

// Target is one person to call within an outreach group.
//
// Identity invariant: ID is a composite of the source record id and the group
// id, so the same contact appearing in two groups yields two distinct targets.
//
// Targets are immutable for the duration of a dispatch run; status lives in
// StatusRecord, never here.

type Target struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`

	GroupID    string `json:"group_id"`
	GroupName  string `json:"group_name,omitempty"`
	GroupColor string `json:"group_color,omitempty"`
}

// TargetID builds the composite identifier for a contact within a group.
func TargetID(recordID, groupID string) string {
	return recordID + "-" + groupID
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no_answer"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInitiated, StatusInProgress,
		StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected for a target
// within one dispatch run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}

// ParseStatus normalizes server-shaped status strings into the local enum.
// The remote batch endpoint uses dashes ("no-answer"); we store underscores.
func ParseStatus(raw string) Status {
	switch raw {
	case "no-answer", "no_answer":
		return StatusNoAnswer
	case "in-progress", "in_progress":
		return StatusInProgress
	case "pending", "initiated", "completed", "failed", "busy":
		return Status(raw)
	default:
		return StatusPending
	}
}

// TranscriptTurn is one turn of a recorded conversation.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// StatusRecord is the most recent known state of an attempted or monitored
// call. Records are overwritten in place as new information arrives and are
// only discarded when the owning monitor session closes.
type StatusRecord struct {
	TargetID string `json:"target_id"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`

	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`

	// ConversationID is the remote call identifier (e.g. provider call SID)
	// when one is known.
	ConversationID string `json:"conversation_id,omitempty"`

	DurationSeconds int              `json:"duration_secs,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Transcript      []TranscriptTurn `json:"transcript,omitempty"`
	AudioURL        string           `json:"audio_url,omitempty"`
}
