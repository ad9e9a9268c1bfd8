package moderation

import (
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/enums"
)

// TransitionInput asks for one moderation decision. When ExpectedVersion is
// nil the current version is read inside the transaction and the write is
// still guarded by it.
type TransitionInput struct {
	CaptureID       int64
	Target          enums.ModerationState
	Actor           auth.Actor
	ExpectedVersion *int64
}

// SoftDeleteInput hides a capture from listings.
type SoftDeleteInput struct {
	CaptureID       int64
	Actor           auth.Actor
	Reason          string
	ExpectedVersion *int64
}

// RestoreInput reverses a soft delete.
type RestoreInput struct {
	CaptureID       int64
	Actor           auth.Actor
	ExpectedVersion *int64
}

// BatchResult reports the per-item outcome of a promotion. Exactly one of
// Promoted and Blocked is non-empty.
type BatchResult struct {
	BatchKey string  `json:"batch_key"`
	Promoted []int64 `json:"promoted"`
	Blocked  []int64 `json:"blocked"`
}

const (
	operationTransition = "transition"
	operationPromote    = "promote_batch"
	operationSoftDelete = "soft_delete"
	operationRestore    = "restore"

	outcomeOK   = "ok"
	outcomeNoop = "noop"
)
