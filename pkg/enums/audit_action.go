package enums

import "fmt"

// AuditAction classifies audit ledger entries.
type AuditAction string

const (
	AuditActionCaptureTransitioned AuditAction = "capture_transitioned"
	AuditActionCaptureDeleted      AuditAction = "capture_deleted"
	AuditActionCaptureRestored     AuditAction = "capture_restored"
	AuditActionCapturePromoted     AuditAction = "capture_promoted"
	AuditActionControlUpdated      AuditAction = "control_updated"
	AuditActionNote                AuditAction = "note"
)

var validAuditActions = []AuditAction{
	AuditActionCaptureTransitioned,
	AuditActionCaptureDeleted,
	AuditActionCaptureRestored,
	AuditActionCapturePromoted,
	AuditActionControlUpdated,
	AuditActionNote,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known audit action.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
