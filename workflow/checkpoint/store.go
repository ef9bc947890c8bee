// Package checkpoint persists workflow state after every node execution so a
// run can suspend, crash, and resume from its last completed step.
//
// Checkpoints for one workflow instance share a thread ID (the task ID) and
// form a chain: each record carries its parent step, the node that produced
// it, and the node scheduled next. A record whose Interrupt field is set
// marks a suspended run awaiting an external resume value.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a thread has no checkpoints or a requested
// step does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Interrupt marks a checkpoint written by a suspended node. Payload is the
// data surfaced to the external reviewer; the run re-enters NodeID when a
// resume value arrives.
type Interrupt struct {
	NodeID  string          `json:"node_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Record is one checkpoint in a thread's chain.
//
// Step numbers are sequential and 1-indexed; ParentStep is 0 for the first
// record. NextNode names the node the executor will run after this one, empty
// when the run reached a terminal node.
type Record[S any] struct {
	ThreadID   string     `json:"thread_id"`
	Step       int        `json:"step"`
	ParentStep int        `json:"parent_step"`
	NodeID     string     `json:"node_id"`
	NextNode   string     `json:"next_node,omitempty"`
	State      S          `json:"state"`
	Interrupt  *Interrupt `json:"interrupt,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Suspended reports whether this checkpoint is waiting on an external resume.
func (r *Record[S]) Suspended() bool { return r.Interrupt != nil }

// Store persists checkpoint chains keyed by thread ID.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type Store[S any] interface {
	// Put persists a checkpoint. Writing the same (thread, step) twice
	// replaces the record; recovery after a crash mid-step rewrites it.
	// CreatedAt is stamped by the store when zero.
	Put(ctx context.Context, rec Record[S]) error

	// Latest returns the highest-step checkpoint of a thread, or ErrNotFound
	// for an unknown thread.
	Latest(ctx context.Context, threadID string) (Record[S], error)

	// Get returns the checkpoint at a specific step, or ErrNotFound.
	Get(ctx context.Context, threadID string, step int) (Record[S], error)

	// History returns a thread's full chain in step order.
	History(ctx context.Context, threadID string) ([]Record[S], error)

	// Suspended returns the thread IDs whose latest checkpoint carries an
	// interrupt. Startup recovery uses this to find runs awaiting resume.
	Suspended(ctx context.Context) ([]string, error)

	// DeleteThread removes every checkpoint of a thread.
	DeleteThread(ctx context.Context, threadID string) error
}
