package captures

import "strings"

// DeriveBatchKey turns an event name into the group key shared by every
// capture uploaded for that event, e.g. "Spring Gala 2026" -> "spring-gala-2026".
func DeriveBatchKey(eventName string) string {
	return strings.Join(strings.Fields(strings.ToLower(eventName)), "-")
}
