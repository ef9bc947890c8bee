package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roadmapper-ai/roadmapper/agent"
	"github.com/roadmapper-ai/roadmapper/execlog"
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
	"github.com/roadmapper-ai/roadmapper/workflow/checkpoint"
)

// Config wires an Engine.
type Config struct {
	Store       meta.Store
	Checkpoints checkpoint.Store[State]
	Bus         *bus.Bus
	Agents      agent.Set
	Objects     agent.ObjectStore

	// Images is optional; when set, fan-out triggers cover-image
	// generation asynchronously.
	Images agent.ImageGenerator

	// Metrics is optional. Nil disables instrumentation.
	Metrics *Metrics

	Options Options
}

// Engine drives the workflow graph: it runs nodes through the brain, folds
// their deltas through the channel reducers, persists a checkpoint after
// every node and follows the router to the next node. One Engine serves
// many concurrent runs.
type Engine struct {
	store       meta.Store
	checkpoints checkpoint.Store[State]
	bus         *bus.Bus
	agents      agent.Set
	objects     agent.ObjectStore
	images      agent.ImageGenerator
	brain       *Brain
	metrics     *Metrics
	opts        Options
	graph       *graphDef
}

// NewEngine validates the config and compiles the graph.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Checkpoints == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	e := &Engine{
		store:       cfg.Store,
		checkpoints: cfg.Checkpoints,
		bus:         cfg.Bus,
		agents:      cfg.Agents,
		objects:     cfg.Objects,
		images:      cfg.Images,
		metrics:     cfg.Metrics,
		opts:        cfg.Options.withDefaults(),
	}
	e.brain = newBrain(cfg.Store, cfg.Bus, cfg.Metrics)
	e.graph = e.buildGraph()
	return e, nil
}

// LiveStep returns the node the task is currently in, or empty when the
// task is not executing. Served from memory for low-latency status polls.
func (e *Engine) LiveStep(taskID string) string {
	return e.brain.live.get(taskID)
}

// Execute runs the workflow for taskID from its beginning, or continues
// from the latest checkpoint when one exists (crash recovery). It returns
// the final state; a run paused for human review returns its current state
// with the task parked in human_review_pending.
func (e *Engine) Execute(ctx context.Context, taskID string, req roadmap.UserRequest) (State, error) {
	return e.run(ctx, taskID, req, nil)
}

// Resume re-enters a suspended run with the reviewer's decision.
func (e *Engine) Resume(ctx context.Context, taskID string, decision ReviewDecision) (State, error) {
	return e.run(ctx, taskID, roadmap.UserRequest{}, &decision)
}

func (e *Engine) run(ctx context.Context, taskID string, req roadmap.UserRequest, resume *ReviewDecision) (State, error) {
	logger := execlog.New(e.store, taskID)
	// Flush on every exit path; short paths must not lose buffered logs.
	defer func() { _ = logger.Flush(ctx) }()

	e.metrics.runStarted()
	defer e.metrics.runFinished()
	runStart := time.Now()

	var st State
	var node string
	var resumeNode string
	step := 0

	latest, err := e.checkpoints.Latest(ctx, taskID)
	switch {
	case err == nil:
		st = latest.State
		step = latest.Step
		if resume != nil {
			if !latest.Suspended() {
				return st, ErrNotSuspended
			}
			resumeNode = latest.Interrupt.NodeID
			node = resumeNode
			e.bus.Publish(bus.Event{TaskID: taskID, Type: bus.EventWorkflowResumed, Step: node})
			logger.Info(ctx, node, "workflow resumed", map[string]any{"approved": resume.Approved})
		} else if latest.Suspended() {
			// Still awaiting the reviewer; nothing to do.
			return st, nil
		} else {
			node = latest.NextNode
			if node == nodeEnd {
				return st, nil
			}
			logger.WorkflowStart(ctx, meta.TaskTypeCreation, true)
		}
	case errors.Is(err, checkpoint.ErrNotFound):
		if resume != nil {
			return State{}, ErrNoCheckpoint
		}
		st = NewState(taskID, req)
		node = e.graph.start
		e.bus.Publish(bus.Event{TaskID: taskID, Type: bus.EventWorkflowStarted})
		logger.WorkflowStart(ctx, meta.TaskTypeCreation, false)
	default:
		return State{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	gate := &interruptGate{}

	for node != nodeEnd {
		if cancelled, err := e.brain.Cancelled(ctx, taskID); err == nil && cancelled {
			logger.Warning(ctx, node, "task cancelled, stopping", nil)
			e.brain.live.clear(taskID)
			return st, ErrTaskCancelled
		}

		// The human-review runner detects resume re-entry by probing the
		// task status, not the checkpoint's interrupt flag.
		skipBefore := false
		if node == NodeHumanReview {
			if pending, err := e.brain.PendingReview(ctx, taskID); err == nil && pending {
				skipBefore = true
			}
		}

		gate.node = node
		if resume != nil && node == resumeNode {
			gate.resume = resume
			resume = nil
		}
		rc := &runContext{logger: logger, gate: gate, skipBefore: skipBefore}

		span := e.brain.BeginNode(ctx, logger, taskID, node, skipBefore)
		delta, err := e.graph.runners[node](ctx, rc, st)
		if err != nil {
			var sig *SuspendSignal
			if errors.As(err, &sig) {
				span.Pause(ctx)
				if perr := e.putCheckpoint(ctx, checkpoint.Record[State]{
					ThreadID:   taskID,
					Step:       step + 1,
					ParentStep: step,
					NodeID:     node,
					NextNode:   node,
					State:      st,
					Interrupt:  &checkpoint.Interrupt{NodeID: sig.NodeID, Payload: sig.Payload},
				}); perr != nil {
					span.Fail(ctx, perr)
					return st, fmt.Errorf("failed to persist suspension: %w", perr)
				}
				e.brain.live.clear(taskID)
				return st, nil
			}
			span.Fail(ctx, err)
			e.brain.live.clear(taskID)
			return st, &NodeError{Node: node, Err: err}
		}

		st = Apply(st, delta)
		next := e.graph.route(node, st)

		// The checkpoint must be durable before the node counts as
		// complete; a failed write fails the node.
		step++
		if err := e.putCheckpoint(ctx, checkpoint.Record[State]{
			ThreadID:   taskID,
			Step:       step,
			ParentStep: step - 1,
			NodeID:     node,
			NextNode:   next,
			State:      st,
		}); err != nil {
			span.Fail(ctx, err)
			e.brain.live.clear(taskID)
			return st, &NodeError{Node: node, Err: err}
		}

		span.Complete(ctx)
		node = next
	}

	return e.finish(ctx, logger, taskID, st, runStart)
}

// finish runs the terminal path of a completed traversal: final task
// status, terminal event, live-step cleanup. Fan-out writes its own
// terminal status (completed or partial_failure); runs without fan-out are
// completed here.
func (e *Engine) finish(ctx context.Context, logger *execlog.Logger, taskID string, st State, runStart time.Time) (State, error) {
	e.brain.live.clear(taskID)
	e.metrics.observeValidationRounds(st.ValidationRound)

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return st, fmt.Errorf("failed to read task at completion: %w", err)
	}
	if task.Status == meta.TaskCancelled {
		// A cancelled task never gets a terminal completed event.
		logger.Warning(ctx, st.CurrentStep, "task cancelled before completion", nil)
		return st, ErrTaskCancelled
	}

	status := task.Status
	if !meta.IsTerminalStatus(status) {
		status = meta.TaskCompleted
		if err := e.store.UpdateTaskStatus(ctx, taskID, status, st.CurrentStep); err != nil {
			return st, fmt.Errorf("failed to complete task: %w", err)
		}
	}

	logger.WorkflowComplete(ctx, status, time.Since(runStart))
	e.bus.Publish(bus.Event{
		TaskID:    taskID,
		Type:      bus.EventWorkflowCompleted,
		RoadmapID: st.RoadmapID,
		Meta:      map[string]any{"status": status},
	})
	return st, nil
}

func (e *Engine) putCheckpoint(ctx context.Context, rec checkpoint.Record[State]) error {
	start := time.Now()
	err := e.checkpoints.Put(ctx, rec)
	e.metrics.observeCheckpoint(time.Since(start))
	return err
}
