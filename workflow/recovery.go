package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
	"github.com/roadmapper-ai/roadmapper/workflow/checkpoint"
)

// RecoverInterrupted rehydrates creation workflows that were mid-flight
// when the process died: processing tasks younger than the recovery window
// are re-executed from their latest checkpoint. Tasks without a checkpoint
// are failed with a no_checkpoint_available reason. Tasks parked in
// human_review_pending are left alone; they resume only on user action.
//
// Returns the task IDs whose re-execution was started. Each recovered run
// executes on its own goroutine; errors inside them surface through task
// state and logs, as in any run.
func (e *Engine) RecoverInterrupted(ctx context.Context) ([]string, error) {
	since := time.Now().Add(-e.opts.RecoveryWindow)
	tasks, err := e.store.ListTasks(ctx, meta.TaskProcessing, meta.TaskTypeCreation, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list interrupted tasks: %w", err)
	}

	var recovered []string
	for _, task := range tasks {
		_, err := e.checkpoints.Latest(ctx, task.TaskID)
		if errors.Is(err, checkpoint.ErrNotFound) {
			if serr := e.store.SetTaskError(ctx, task.TaskID, "no_checkpoint_available"); serr != nil {
				return recovered, fmt.Errorf("failed to fail task %s: %w", task.TaskID, serr)
			}
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to load checkpoint for %s: %w", task.TaskID, err)
		}

		e.bus.Publish(bus.Event{
			TaskID:  task.TaskID,
			Type:    bus.EventTaskRecovering,
			Message: "workflow recovering after restart",
		})

		taskID := task.TaskID
		req := task.UserRequest
		go func() {
			_, _ = e.Execute(context.WithoutCancel(ctx), taskID, req)
		}()
		recovered = append(recovered, taskID)
	}
	return recovered, nil
}

// SuspendedThreads lists the task IDs whose latest checkpoint is
// interrupted, i.e. runs awaiting a human decision.
func (e *Engine) SuspendedThreads(ctx context.Context) ([]string, error) {
	return e.checkpoints.Suspended(ctx)
}
