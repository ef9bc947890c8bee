package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
)

// Service is the surface the transport layer consumes: start and resume
// workflows, read task and roadmap views, stream events, query logs.
type Service struct {
	engine *Engine
}

// NewService wraps an engine.
func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

// Engine exposes the underlying engine for recovery wiring.
func (s *Service) Engine() *Engine { return s.engine }

// StartWorkflow creates the task record and launches the run on its own
// goroutine, returning the task ID immediately. Callers follow progress via
// SubscribeEvents and GetTask.
func (s *Service) StartWorkflow(ctx context.Context, req roadmap.UserRequest) (string, error) {
	if req.UserID == "" || req.Goal == "" {
		return "", fmt.Errorf("user_id and goal are required")
	}
	taskID := uuid.NewString()
	task := &meta.Task{
		TaskID:      taskID,
		UserID:      req.UserID,
		TaskType:    meta.TaskTypeCreation,
		Status:      meta.TaskPending,
		UserRequest: req,
	}
	if err := s.engine.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	go func() {
		_, _ = s.engine.Execute(context.WithoutCancel(ctx), taskID, req)
	}()
	return taskID, nil
}

// ResumeWorkflow feeds the reviewer's decision into a suspended run. The
// run continues on its own goroutine.
func (s *Service) ResumeWorkflow(ctx context.Context, taskID string, decision ReviewDecision) error {
	task, err := s.engine.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != meta.TaskHumanReviewPending {
		return fmt.Errorf("%w: task is %s", ErrNotSuspended, task.Status)
	}

	go func() {
		_, _ = s.engine.Resume(context.WithoutCancel(ctx), taskID, decision)
	}()
	return nil
}

// TaskView is the task state served to clients, combining the persisted
// row with the in-memory live step.
type TaskView struct {
	*meta.Task
	LiveStep string `json:"live_step,omitempty"`
}

// GetTask returns the task with its live step.
func (s *Service) GetTask(ctx context.Context, taskID string) (*TaskView, error) {
	task, err := s.engine.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskView{Task: task, LiveStep: s.engine.LiveStep(taskID)}, nil
}

// GetRoadmap returns the roadmap with its framework tree.
func (s *Service) GetRoadmap(ctx context.Context, roadmapID string) (*meta.Roadmap, error) {
	return s.engine.store.GetRoadmap(ctx, roadmapID)
}

// CancelTask marks a task cancelled. In-flight agents are not preempted;
// the run observes the cancellation at its next node boundary and stops
// without a terminal completed event.
func (s *Service) CancelTask(ctx context.Context, taskID string) error {
	task, err := s.engine.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if meta.IsTerminalStatus(task.Status) {
		return fmt.Errorf("task %s is already %s", taskID, task.Status)
	}
	return s.engine.store.UpdateTaskStatus(ctx, taskID, meta.TaskCancelled, task.CurrentStep)
}

// SubscribeEvents streams the task's progress events. The channel closes
// after a terminal event; cancel releases the subscription early.
func (s *Service) SubscribeEvents(taskID string) (<-chan bus.Event, func()) {
	return s.engine.bus.Subscribe(taskID)
}

// QueryLogs reads the task's persisted execution log, newest first.
func (s *Service) QueryLogs(ctx context.Context, taskID string, filter meta.LogFilter) ([]meta.LogEntry, error) {
	return s.engine.store.QueryLogs(ctx, taskID, filter)
}

// SummarizeLogs aggregates the task's execution log.
func (s *Service) SummarizeLogs(ctx context.Context, taskID string) (*meta.LogSummary, error) {
	return s.engine.store.SummarizeLogs(ctx, taskID)
}
