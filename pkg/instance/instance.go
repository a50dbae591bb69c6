package instance

import (
	"os"
	"strings"
)

// GetID returns the process identifier used in logs and lock ownership.
func GetID() string {
	for _, key := range []string{"LEADENGINE_INSTANCE_ID", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
