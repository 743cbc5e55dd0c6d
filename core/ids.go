package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewExecutionID generates a globally unique execution identifier.
func NewExecutionID() string {
	return "exec-" + uuid.New().String()
}

// NewIdempotencyKey generates a random idempotency key for callers
// that don't supply their own. Most callers should pass their own
// caller-scoped key instead, since the point of the field is to let
// the caller recognize its own retries.
func NewIdempotencyKey() string {
	return uuid.New().String()
}

// NewNodeID generates an identifier for a process-local advisory lock
// holder, combining hostname with a random suffix so two processes on
// the same host never collide.
func NewNodeID(hostname string) string {
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}
