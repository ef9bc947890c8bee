// Package execlog buffers structured execution-log entries per task and
// flushes them to the metadata store in batches. Workflow steps log through a
// Logger instead of writing rows one at a time; the executor flushes at node
// boundaries and at every terminal path so a crash loses at most the current
// buffer.
package execlog

import (
	"context"
	"sync"
	"time"

	"github.com/roadmapper-ai/roadmapper/meta"
)

// flushThreshold triggers an automatic flush when the buffer grows past it,
// bounding memory during long fan-outs.
const flushThreshold = 50

// Logger collects LogEntry values for one task. Safe for concurrent use by
// fan-out workers.
type Logger struct {
	store  meta.LogStore
	taskID string

	mu  sync.Mutex
	buf []meta.LogEntry
}

// New creates a Logger for the given task.
func New(store meta.LogStore, taskID string) *Logger {
	return &Logger{store: store, taskID: taskID}
}

// TaskID returns the task this logger writes for.
func (l *Logger) TaskID() string { return l.taskID }

// Append adds one entry to the buffer, stamping task ID and timestamp. The
// buffer is flushed when it exceeds the threshold; flush errors are swallowed
// so logging never fails a workflow step.
func (l *Logger) Append(ctx context.Context, e meta.LogEntry) {
	e.TaskID = l.taskID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	l.buf = append(l.buf, e)
	var batch []meta.LogEntry
	if len(l.buf) >= flushThreshold {
		batch = l.buf
		l.buf = nil
	}
	l.mu.Unlock()

	if batch != nil {
		_ = l.store.AppendLogs(ctx, batch)
	}
}

// Flush writes all buffered entries in one batch. On error the entries are
// restored so a later flush can retry.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := l.store.AppendLogs(ctx, batch); err != nil {
		l.mu.Lock()
		l.buf = append(batch, l.buf...)
		l.mu.Unlock()
		return err
	}
	return nil
}

// Pending returns the number of buffered, unflushed entries.
func (l *Logger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Debug logs a workflow-category debug entry.
func (l *Logger) Debug(ctx context.Context, step, msg string, details map[string]any) {
	l.Append(ctx, meta.LogEntry{Level: meta.LogDebug, Category: meta.CategoryWorkflow, Step: step, Message: msg, Details: details})
}

// Info logs a workflow-category info entry.
func (l *Logger) Info(ctx context.Context, step, msg string, details map[string]any) {
	l.Append(ctx, meta.LogEntry{Level: meta.LogInfo, Category: meta.CategoryWorkflow, Step: step, Message: msg, Details: details})
}

// Warning logs a workflow-category warning entry.
func (l *Logger) Warning(ctx context.Context, step, msg string, details map[string]any) {
	l.Append(ctx, meta.LogEntry{Level: meta.LogWarning, Category: meta.CategoryWorkflow, Step: step, Message: msg, Details: details})
}

// Error logs a workflow-category error entry.
func (l *Logger) Error(ctx context.Context, step, msg string, details map[string]any) {
	l.Append(ctx, meta.LogEntry{Level: meta.LogError, Category: meta.CategoryWorkflow, Step: step, Message: msg, Details: details})
}

// Agent logs an agent-category entry with call duration.
func (l *Logger) Agent(ctx context.Context, level, agentName, msg string, duration time.Duration, details map[string]any) {
	l.Append(ctx, meta.LogEntry{
		Level:      level,
		Category:   meta.CategoryAgent,
		AgentName:  agentName,
		Message:    msg,
		DurationMS: duration.Milliseconds(),
		Details:    details,
	})
}

// Concept logs a tool-category entry scoped to one concept of a roadmap.
func (l *Logger) Concept(ctx context.Context, level, roadmapID, conceptID, msg string, details map[string]any) {
	l.Append(ctx, meta.LogEntry{
		Level:     level,
		Category:  meta.CategoryTool,
		RoadmapID: roadmapID,
		ConceptID: conceptID,
		Message:   msg,
		Details:   details,
	})
}

// WorkflowStart logs the start-of-run marker.
func (l *Logger) WorkflowStart(ctx context.Context, taskType string, resumed bool) {
	l.Info(ctx, "", "workflow started", map[string]any{
		"task_type": taskType,
		"resumed":   resumed,
	})
}

// WorkflowComplete logs the end-of-run marker with the terminal status and
// total elapsed time.
func (l *Logger) WorkflowComplete(ctx context.Context, status string, elapsed time.Duration) {
	l.Append(ctx, meta.LogEntry{
		Level:      meta.LogInfo,
		Category:   meta.CategoryWorkflow,
		Message:    "workflow finished",
		DurationMS: elapsed.Milliseconds(),
		Details:    map[string]any{"status": status},
	})
}

// Query returns persisted entries for this task. Buffered entries are flushed
// first so callers always see the full log.
func (l *Logger) Query(ctx context.Context, filter meta.LogFilter) ([]meta.LogEntry, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}
	return l.store.QueryLogs(ctx, l.taskID, filter)
}

// Summary aggregates the persisted log after flushing the buffer.
func (l *Logger) Summary(ctx context.Context) (*meta.LogSummary, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, err
	}
	return l.store.SummarizeLogs(ctx, l.taskID)
}
