package execlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roadmapper-ai/roadmapper/meta"
)

func TestBufferAndFlush(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemStore()
	l := New(store, "t1")

	l.WorkflowStart(ctx, meta.TaskTypeCreation, false)
	l.Info(ctx, "intent_analysis", "intent parsed", map[string]any{"difficulty": "beginner"})
	l.Agent(ctx, meta.LogInfo, "curriculum", "framework designed", 1500*time.Millisecond, nil)

	if got := l.Pending(); got != 3 {
		t.Fatalf("Pending = %d, want 3", got)
	}
	// Nothing persisted before the flush.
	rows, err := store.QueryLogs(ctx, "t1", meta.LogFilter{})
	if err != nil || len(rows) != 0 {
		t.Fatalf("pre-flush rows = %d, %v", len(rows), err)
	}

	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := l.Pending(); got != 0 {
		t.Errorf("Pending after flush = %d", got)
	}
	rows, err = store.QueryLogs(ctx, "t1", meta.LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("persisted rows = %d, want 3", len(rows))
	}
	for _, e := range rows {
		if e.TaskID != "t1" || e.CreatedAt.IsZero() {
			t.Errorf("entry not stamped: %+v", e)
		}
	}
}

func TestAutoFlushAtThreshold(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemStore()
	l := New(store, "t1")

	for i := 0; i < flushThreshold; i++ {
		l.Debug(ctx, "fan_out", "concept processed", nil)
	}
	if got := l.Pending(); got != 0 {
		t.Errorf("buffer should auto-flush at threshold, pending = %d", got)
	}
	rows, err := store.QueryLogs(ctx, "t1", meta.LogFilter{})
	if err != nil || len(rows) != flushThreshold {
		t.Errorf("persisted = %d, %v; want %d", len(rows), err, flushThreshold)
	}
}

// failingLogStore fails AppendLogs a fixed number of times.
type failingLogStore struct {
	meta.LogStore
	mu       sync.Mutex
	failures int
}

func (f *failingLogStore) AppendLogs(ctx context.Context, entries []meta.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	return f.LogStore.AppendLogs(ctx, entries)
}

func TestFlushErrorRestoresBuffer(t *testing.T) {
	ctx := context.Background()
	mem := meta.NewMemStore()
	store := &failingLogStore{LogStore: mem, failures: 1}
	l := New(store, "t1")

	l.Error(ctx, "validation", "agent call failed", nil)
	if err := l.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}
	if got := l.Pending(); got != 1 {
		t.Fatalf("entries must survive a failed flush, pending = %d", got)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	rows, _ := mem.QueryLogs(ctx, "t1", meta.LogFilter{})
	if len(rows) != 1 {
		t.Errorf("persisted = %d, want 1", len(rows))
	}
}

func TestQueryFlushesFirst(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemStore()
	l := New(store, "t1")

	l.Info(ctx, "", "one", nil)
	l.WorkflowComplete(ctx, meta.TaskCompleted, 2*time.Second)

	rows, err := l.Query(ctx, meta.LogFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	sum, err := l.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 2 || sum.TotalDurationMS != 2000 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	store := meta.NewMemStore()
	l := New(store, "t1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Concept(ctx, meta.LogInfo, "r1", "c1", "tutorial saved", nil)
		}()
	}
	wg.Wait()

	if err := l.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.QueryLogs(ctx, "t1", meta.LogFilter{})
	if len(rows) != 20 {
		t.Errorf("persisted = %d, want 20", len(rows))
	}
}
