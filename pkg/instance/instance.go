package instance

import (
	"os"
	"strings"
)

// GetID identifies the running process in logs and lock ownership. Platform
// dyno names win over WORKER_ID; the hostname is the last resort.
func GetID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
