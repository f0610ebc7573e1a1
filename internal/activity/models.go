package activity

import "time"

// Event is an immutable, append-only activity log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; callers must not block critical flows on it.
//
// Storage recommendation (Postgres):
// - Table activity_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id,omitempty" db:"user_id"`

	Level Level `json:"level" db:"level"`

	// Target identifiers (optional, depending on what the event describes).
	GroupID  string `json:"group_id,omitempty" db:"group_id"`
	TargetID string `json:"target_id,omitempty" db:"target_id"`
	BatchID  string `json:"batch_id,omitempty" db:"batch_id"`

	// Message is a short human-readable description shown in the activity feed.
	Message string `json:"message" db:"message"`

	// DurationMS carries how long the described operation took, when known.
	DurationMS int64 `json:"duration_ms,omitempty" db:"duration_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}
