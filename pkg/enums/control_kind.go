package enums

// ControlKind names the value type of a control setting.
type ControlKind string

const (
	ControlKindToggle    ControlKind = "toggle"
	ControlKindDate      ControlKind = "date"
	ControlKindTimestamp ControlKind = "timestamp"
)

func (k ControlKind) String() string {
	return string(k)
}
