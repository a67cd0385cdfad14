package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered identifier such as
// "ord-0190f3c2-7d1e-7b4a-9c55-2f1e8a6b3d10".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}

// RequestID returns a random identifier for correlating log lines.
func RequestID() string {
	return uuid.NewString()
}
