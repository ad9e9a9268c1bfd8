package controls

import (
	"strings"
	"time"

	"github.com/angelmondragon/captures-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/captures-backend/pkg/errors"
)

// SchemaVersion is stamped on every stored setting. Bump it when a key
// changes kind or format.
const SchemaVersion = 1

const (
	KeyCaptureAutoRequest = "capture-auto-request"
	KeyDay1               = "Day-1"
	KeyDay2               = "Day-2"
	KeyDay3               = "Day-3"
	KeyCountDownCapture   = "CountDown-Capture"
)

const (
	dateLayout       = "2006-01-02"
	localStampLayout = "2006-01-02T15:04"

	toggleOn  = "ON"
	toggleOff = "OFF"
)

// Definition describes one known control key.
type Definition struct {
	Key         string
	Kind        enums.ControlKind
	Description string
}

var definitions = []Definition{
	{Key: KeyCaptureAutoRequest, Kind: enums.ControlKindToggle, Description: "Request captures from attendees automatically"},
	{Key: KeyDay1, Kind: enums.ControlKindDate, Description: "First event day"},
	{Key: KeyDay2, Kind: enums.ControlKindDate, Description: "Second event day"},
	{Key: KeyDay3, Kind: enums.ControlKindDate, Description: "Third event day"},
	{Key: KeyCountDownCapture, Kind: enums.ControlKindTimestamp, Description: "Moment the capture countdown ends"},
}

// Definitions returns the known keys in display order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup finds the definition for key. Keys are matched exactly.
func Lookup(key string) (Definition, bool) {
	for _, def := range definitions {
		if def.Key == key {
			return def, true
		}
	}
	return Definition{}, false
}

// Normalize validates raw against the definition's kind and returns the
// canonical stored form. Local timestamps are read in loc.
func Normalize(def Definition, raw string, loc *time.Location) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", invalidValue(def, raw, "value is required")
	}
	switch def.Kind {
	case enums.ControlKindToggle:
		switch strings.ToLower(value) {
		case "on", "true", "1", "yes":
			return toggleOn, nil
		case "off", "false", "0", "no":
			return toggleOff, nil
		}
		return "", invalidValue(def, raw, "expected ON or OFF")
	case enums.ControlKindDate:
		parsed, err := time.Parse(dateLayout, value)
		if err != nil {
			return "", invalidValue(def, raw, "expected YYYY-MM-DD")
		}
		return parsed.Format(dateLayout), nil
	case enums.ControlKindTimestamp:
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			return parsed.UTC().Format(time.RFC3339), nil
		}
		if loc == nil {
			loc = time.UTC
		}
		parsed, err := time.ParseInLocation(localStampLayout, value, loc)
		if err != nil {
			return "", invalidValue(def, raw, "expected RFC3339 or YYYY-MM-DDTHH:MM")
		}
		return parsed.UTC().Format(time.RFC3339), nil
	default:
		return "", invalidValue(def, raw, "unsupported control kind")
	}
}

func invalidValue(def Definition, raw, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid control value").
		WithDetails(map[string]any{
			"key":    def.Key,
			"kind":   def.Kind,
			"value":  raw,
			"reason": reason,
		})
}
