package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roadmapper-ai/roadmapper/execlog"
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
	"github.com/roadmapper-ai/roadmapper/workflow/checkpoint"
)

// RetryTask creates a retry task that re-runs content fan-out for the
// failed concepts of a partial_failure workflow. Concepts whose tutorials
// already completed are skipped by the scheduler, so only the failed subset
// is regenerated. Returns the retry task's ID.
func (s *Service) RetryTask(ctx context.Context, originalTaskID, taskType string) (string, error) {
	switch taskType {
	case meta.TaskTypeRetryTutorial, meta.TaskTypeRetryResources, meta.TaskTypeRetryQuiz, meta.TaskTypeRetryBatch:
	default:
		return "", fmt.Errorf("invalid retry task type %q", taskType)
	}

	original, err := s.engine.store.GetTask(ctx, originalTaskID)
	if err != nil {
		return "", err
	}
	if original.Status != meta.TaskPartialFailure {
		return "", fmt.Errorf("task %s is %s, only partial_failure tasks can be retried", originalTaskID, original.Status)
	}
	if original.RoadmapID == "" {
		return "", fmt.Errorf("task %s has no roadmap", originalTaskID)
	}

	taskID := uuid.NewString()
	task := &meta.Task{
		TaskID:      taskID,
		UserID:      original.UserID,
		TaskType:    taskType,
		Status:      meta.TaskPending,
		RoadmapID:   original.RoadmapID,
		UserRequest: original.UserRequest,
	}
	if err := s.engine.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to create retry task: %w", err)
	}

	go func() {
		_, _ = s.engine.RetryFanOut(context.WithoutCancel(ctx), taskID)
	}()
	return taskID, nil
}

// RetryFanOut runs only the content fan-out stage for a retry task,
// reloading the framework from the roadmap row. The scheduler's
// completed-concept skip restricts the work to the previously failed
// subset.
func (e *Engine) RetryFanOut(ctx context.Context, taskID string) (State, error) {
	logger := execlog.New(e.store, taskID)
	defer func() { _ = logger.Flush(ctx) }()

	e.metrics.runStarted()
	defer e.metrics.runFinished()
	runStart := time.Now()

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return State{}, err
	}
	r, err := e.store.GetRoadmap(ctx, task.RoadmapID)
	if err != nil {
		return State{}, fmt.Errorf("failed to load roadmap for retry: %w", err)
	}

	st := State{
		TaskID:      taskID,
		RoadmapID:   task.RoadmapID,
		UserRequest: task.UserRequest,
		Framework:   r.Framework,
	}

	e.bus.Publish(bus.Event{
		TaskID:    taskID,
		Type:      bus.EventRetryStarted,
		RoadmapID: task.RoadmapID,
		Meta:      map[string]any{"task_type": task.TaskType},
	})
	logger.WorkflowStart(ctx, task.TaskType, false)

	gate := &interruptGate{node: NodeContentFanOut}
	rc := &runContext{logger: logger, gate: gate}

	span := e.brain.BeginNode(ctx, logger, taskID, NodeContentFanOut, false)
	delta, err := e.runContentFanOut(ctx, rc, st)
	if err != nil {
		if errors.Is(err, ErrTaskCancelled) {
			logger.Warning(ctx, NodeContentFanOut, "retry cancelled", nil)
			e.brain.live.clear(taskID)
			return st, err
		}
		span.Fail(ctx, err)
		e.brain.live.clear(taskID)
		return st, &NodeError{Node: NodeContentFanOut, Err: err}
	}
	st = Apply(st, delta)

	if err := e.putCheckpoint(ctx, checkpoint.Record[State]{
		ThreadID: taskID,
		Step:     1,
		NodeID:   NodeContentFanOut,
		State:    st,
	}); err != nil {
		span.Fail(ctx, err)
		e.brain.live.clear(taskID)
		return st, &NodeError{Node: NodeContentFanOut, Err: err}
	}
	span.Complete(ctx)

	e.bus.Publish(bus.Event{
		TaskID:    taskID,
		Type:      bus.EventRetryCompleted,
		RoadmapID: task.RoadmapID,
	})
	return e.finish(ctx, logger, taskID, st, runStart)
}
