package payloads

import (
	"time"

	"github.com/angelmondragon/captures-backend/pkg/enums"
	"github.com/google/uuid"
)

// CaptureTransitionedEvent is emitted for every committed moderation decision.
type CaptureTransitionedEvent struct {
	CaptureID int64                 `json:"capture_id"`
	FromState enums.ModerationState `json:"from_state"`
	ToState   enums.ModerationState `json:"to_state"`
	Version   int64                 `json:"version"`
	AuditID   int64                 `json:"audit_id"`
}

// CaptureDeclinedEvent carries what the notification service needs to tell
// the author their capture was declined.
type CaptureDeclinedEvent struct {
	CaptureID  int64      `json:"capture_id"`
	EventName  string     `json:"event_name"`
	AuthorID   *uuid.UUID `json:"author_id,omitempty"`
	AuthorName string     `json:"author_name"`
	ImagePath  string     `json:"image_path"`
	DeclinedAt time.Time  `json:"declined_at"`
}

// CaptureDeletedEvent is emitted when a capture is soft deleted.
type CaptureDeletedEvent struct {
	CaptureID int64                 `json:"capture_id"`
	State     enums.ModerationState `json:"state"`
	Reason    string                `json:"reason"`
	Version   int64                 `json:"version"`
}

// CaptureRestoredEvent is emitted when a soft-deleted capture is restored.
type CaptureRestoredEvent struct {
	CaptureID int64                 `json:"capture_id"`
	State     enums.ModerationState `json:"state"`
	Version   int64                 `json:"version"`
}

// BatchPromotedEvent reports a batch that moved to direct publication.
type BatchPromotedEvent struct {
	BatchKey   string  `json:"batch_key"`
	CaptureIDs []int64 `json:"capture_ids"`
}

// ControlUpdatedEvent reports a changed admin control.
type ControlUpdatedEvent struct {
	Key     string            `json:"key"`
	Kind    enums.ControlKind `json:"kind"`
	Value   string            `json:"value"`
	Version int64             `json:"version"`
}
