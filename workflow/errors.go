package workflow

import (
	"errors"
	"fmt"
)

// ErrNoCheckpoint is returned when resuming a task that has no persisted
// checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint available")

// ErrNotSuspended is returned when a resume value arrives for a task whose
// latest checkpoint is not interrupted.
var ErrNotSuspended = errors.New("workflow is not suspended")

// ErrFanOutAborted is returned when content fan-out fails for at least half
// of the attempted concepts and the run is terminated instead of persisting
// partial results.
var ErrFanOutAborted = errors.New("content fan-out aborted: majority of concepts failed")

// ErrTaskCancelled is returned when a node observes the task was cancelled
// externally and refuses to advance.
var ErrTaskCancelled = errors.New("task cancelled")

// NodeError wraps a failure inside a named node so callers can tell which
// step broke and whether the cause was an agent or infrastructure.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// truncate shortens an error message for the user-visible task record.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
