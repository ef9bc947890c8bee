package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ReviewDecision is the resume value a human reviewer supplies for a
// suspended run.
type ReviewDecision struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// SuspendSignal is the distinguished non-error a node raises to pause the
// workflow. The executor recognizes it, marks the current checkpoint with
// an interrupt carrying Payload, and returns control to its caller; the
// brain skips its failure path. Only the human-review node may raise it.
type SuspendSignal struct {
	NodeID  string
	Payload json.RawMessage
}

func (s *SuspendSignal) Error() string {
	return fmt.Sprintf("workflow suspended at %s", s.NodeID)
}

// IsSuspend reports whether err is (or wraps) a suspend signal.
func IsSuspend(err error) bool {
	var sig *SuspendSignal
	return errors.As(err, &sig)
}

// interruptGate carries the resume value into a re-entered node. On a fresh
// entry Interrupt raises the suspend signal; on re-entry after resume it
// returns the decision exactly once, as if the original call had returned.
type interruptGate struct {
	node   string
	resume *ReviewDecision
}

// Interrupt pauses the run, surfacing payload to the reviewer. See
// interruptGate for the resume semantics.
func (g *interruptGate) Interrupt(payload any) (*ReviewDecision, error) {
	if g.resume != nil {
		v := g.resume
		g.resume = nil
		return v, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode interrupt payload: %w", err)
	}
	return nil, &SuspendSignal{NodeID: g.node, Payload: raw}
}
