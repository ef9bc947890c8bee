package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for testing and single-process development. Thread-safe. Records
// are isolated from caller mutation through a JSON round-trip, matching the
// serialization the durable backends perform.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string][]Record[S] // step-ordered per thread
}

// NewMemStore creates an empty in-memory checkpoint store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{threads: make(map[string][]Record[S])}
}

func copyRecord[S any](rec Record[S]) (Record[S], error) {
	var out Record[S]
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return out, nil
}

// Put persists a checkpoint (implements Store).
func (m *MemStore[S]) Put(_ context.Context, rec Record[S]) error {
	if rec.ThreadID == "" {
		return fmt.Errorf("checkpoint thread ID is empty")
	}
	if rec.Step < 1 {
		return fmt.Errorf("checkpoint step must be >= 1, got %d", rec.Step)
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return err
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.threads[cp.ThreadID]
	for i, existing := range chain {
		if existing.Step == cp.Step {
			chain[i] = cp
			return nil
		}
	}
	chain = append(chain, cp)
	sort.Slice(chain, func(i, j int) bool { return chain[i].Step < chain[j].Step })
	m.threads[cp.ThreadID] = chain
	return nil
}

// Latest returns the highest-step checkpoint (implements Store).
func (m *MemStore[S]) Latest(_ context.Context, threadID string) (Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.threads[threadID]
	if len(chain) == 0 {
		var zero Record[S]
		return zero, ErrNotFound
	}
	return copyRecord(chain[len(chain)-1])
}

// Get returns the checkpoint at a specific step (implements Store).
func (m *MemStore[S]) Get(_ context.Context, threadID string, step int) (Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.threads[threadID] {
		if rec.Step == step {
			return copyRecord(rec)
		}
	}
	var zero Record[S]
	return zero, ErrNotFound
}

// History returns the full chain in step order (implements Store).
func (m *MemStore[S]) History(_ context.Context, threadID string) ([]Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.threads[threadID]
	out := make([]Record[S], 0, len(chain))
	for _, rec := range chain {
		cp, err := copyRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Suspended returns threads whose latest checkpoint is interrupted
// (implements Store).
func (m *MemStore[S]) Suspended(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for threadID, chain := range m.threads {
		if len(chain) > 0 && chain[len(chain)-1].Interrupt != nil {
			out = append(out, threadID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteThread removes a thread's chain (implements Store).
func (m *MemStore[S]) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

var _ Store[struct{}] = (*MemStore[struct{}])(nil)
