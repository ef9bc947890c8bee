package llm

import (
	"context"
	"sync"
)

// Scripted is a test double that returns canned completions in order. When
// the script runs out it keeps returning the last entry, or errors if the
// script is empty.
//
// Scripted records every request it receives so tests can assert on prompts.
type Scripted struct {
	mu       sync.Mutex
	script   []ScriptEntry
	pos      int
	requests []Request
}

// ScriptEntry is one canned completion or failure.
type ScriptEntry struct {
	Content string
	Err     error
}

// NewScripted creates a scripted client from the given entries.
func NewScripted(entries ...ScriptEntry) *Scripted {
	return &Scripted{script: entries}
}

// Name implements Client.
func (s *Scripted) Name() string { return "scripted" }

// Complete implements Client by replaying the script.
func (s *Scripted) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if len(s.script) == 0 {
		return Response{}, &Error{Code: "script_exhausted", Message: "scripted client has no entries"}
	}
	entry := s.script[s.pos]
	if s.pos < len(s.script)-1 {
		s.pos++
	}
	if entry.Err != nil {
		return Response{}, entry.Err
	}
	return Response{Content: entry.Content, Provider: "scripted", TokensUsed: len(entry.Content) / 4}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many completions were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var _ Client = (*Scripted)(nil)
