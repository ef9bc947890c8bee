package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadmapper-ai/roadmapper/execlog"
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
)

// liveSteps is the in-memory task -> current-node cache backing low-latency
// status queries. Writers are node entry/exit on the run's own goroutine;
// readers are API status endpoints. Stale reads after clear are tolerable.
type liveSteps struct {
	mu    sync.RWMutex
	steps map[string]string
}

func newLiveSteps() *liveSteps {
	return &liveSteps{steps: make(map[string]string)}
}

func (l *liveSteps) set(taskID, node string) {
	l.mu.Lock()
	l.steps[taskID] = node
	l.mu.Unlock()
}

func (l *liveSteps) get(taskID string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.steps[taskID]
}

func (l *liveSteps) clear(taskID string) {
	l.mu.Lock()
	delete(l.steps, taskID)
	l.mu.Unlock()
}

// Brain coordinates the shared side effects of every node execution: task
// status updates, progress events, execution logs and the live-step cache.
// It is also the single gateway for database writes; runners persist
// through its save helpers and never touch the store directly.
type Brain struct {
	store   meta.Store
	bus     *bus.Bus
	live    *liveSteps
	metrics *Metrics
}

func newBrain(store meta.Store, b *bus.Bus, metrics *Metrics) *Brain {
	return &Brain{store: store, bus: b, live: newLiveSteps(), metrics: metrics}
}

// nodeSpan tracks one node execution from entry to outcome.
type nodeSpan struct {
	brain  *Brain
	logger *execlog.Logger
	taskID string
	node   string
	start  time.Time
}

// BeginNode runs the pre-execution side effects for a node: live-step
// write, task status update, step_started event and a start log. When
// skipBefore is set (re-entry after a suspension resume) those effects were
// already emitted on the original entry and are not repeated; only the
// live-step cache is refreshed.
func (b *Brain) BeginNode(ctx context.Context, logger *execlog.Logger, taskID, node string, skipBefore bool) *nodeSpan {
	b.live.set(taskID, node)
	if !skipBefore {
		if err := b.store.UpdateTaskStatus(ctx, taskID, meta.TaskProcessing, node); err != nil {
			logger.Error(ctx, node, "failed to update task status: "+err.Error(), nil)
		}
		b.bus.Publish(bus.Event{
			TaskID: taskID,
			Type:   bus.EventStepStarted,
			Step:   node,
			Meta:   map[string]any{"status": "processing"},
		})
		logger.Info(ctx, node, "step started", nil)
	}
	return &nodeSpan{brain: b, logger: logger, taskID: taskID, node: node, start: time.Now()}
}

// Complete runs the post-execution side effects of a successful node.
func (s *nodeSpan) Complete(ctx context.Context) {
	elapsed := time.Since(s.start)
	s.logger.Append(ctx, meta.LogEntry{
		Level:      meta.LogInfo,
		Category:   meta.CategoryWorkflow,
		Step:       s.node,
		Message:    "step completed",
		DurationMS: elapsed.Milliseconds(),
	})
	s.brain.bus.Publish(bus.Event{
		TaskID: s.taskID,
		Type:   bus.EventStepCompleted,
		Step:   s.node,
		Meta:   map[string]any{"status": "completed", "duration_ms": elapsed.Milliseconds()},
	})
	s.brain.metrics.observeNode(s.node, "success", elapsed)
}

// Pause records that the node suspended the run. This is not a failure: no
// failed event is published and the task keeps its pending-review status.
func (s *nodeSpan) Pause(ctx context.Context) {
	s.logger.Info(ctx, s.node, "step paused awaiting human review", nil)
	s.brain.metrics.observeNode(s.node, "suspended", time.Since(s.start))
}

// Fail runs the error path: the task is marked failed with a truncated
// user-visible message (preserving the current step), an error log is
// written, and a terminal failed event is published. The status write has
// its own guard so a broken store cannot mask the original error.
func (s *nodeSpan) Fail(ctx context.Context, cause error) {
	msg := truncate(cause.Error(), 500)
	if err := s.brain.store.SetTaskError(ctx, s.taskID, msg); err != nil {
		s.logger.Error(ctx, s.node, "failed to record task failure: "+err.Error(), nil)
	}
	s.logger.Append(ctx, meta.LogEntry{
		Level:    meta.LogError,
		Category: meta.CategoryWorkflow,
		Step:     s.node,
		Message:  "step failed",
		Details: map[string]any{
			"error_type": fmt.Sprintf("%T", cause),
			"error":      msg,
		},
		DurationMS: time.Since(s.start).Milliseconds(),
	})
	s.brain.bus.Publish(bus.Event{
		TaskID:  s.taskID,
		Type:    bus.EventWorkflowFailed,
		Step:    s.node,
		Message: msg,
	})
	s.brain.metrics.observeNode(s.node, "error", time.Since(s.start))
}

// randSuffix returns n lowercase hex characters.
func randSuffix(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// EnsureUniqueRoadmapID reconciles an agent-proposed roadmap ID against the
// store. The candidate is kept when free; otherwise its trailing suffix is
// regenerated up to ten times, falling back to a 12-character suffix. The
// store's unique constraint backstops the loop under races.
func (b *Brain) EnsureUniqueRoadmapID(ctx context.Context, candidate string) (string, error) {
	exists, err := b.store.RoadmapIDExists(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("failed to check roadmap id: %w", err)
	}
	if !exists {
		return candidate, nil
	}

	base, _ := roadmap.SplitID(candidate)
	if base == "" {
		base = candidate
	}
	for attempt := 0; attempt < 10; attempt++ {
		id := base + "-" + randSuffix(8)
		exists, err := b.store.RoadmapIDExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check roadmap id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return base + "-" + randSuffix(12), nil
}

// SaveIntentAnalysis claims the roadmap ID by inserting the roadmap row and
// links it to the task. The framework column starts as a stub until
// curriculum design fills it.
func (b *Brain) SaveIntentAnalysis(ctx context.Context, taskID, userID string, intent *roadmap.IntentAnalysis) error {
	title := intent.Title
	if title == "" {
		title = intent.RoadmapID
	}
	r := &meta.Roadmap{
		RoadmapID: intent.RoadmapID,
		UserID:    userID,
		TaskID:    taskID,
		Title:     title,
		Framework: &roadmap.Framework{RoadmapID: intent.RoadmapID, Title: title},
	}
	if err := b.store.CreateRoadmap(ctx, r); err != nil {
		return fmt.Errorf("failed to create roadmap %s: %w", intent.RoadmapID, err)
	}
	if err := b.store.SetTaskRoadmap(ctx, taskID, intent.RoadmapID); err != nil {
		return fmt.Errorf("failed to link roadmap to task: %w", err)
	}
	return nil
}

// SaveRoadmapFramework persists the framework column whole. The framework
// is cloned first so the caller's copy is never shared with storage.
func (b *Brain) SaveRoadmapFramework(ctx context.Context, roadmapID string, fw *roadmap.Framework) error {
	if err := b.store.SaveFramework(ctx, roadmapID, fw.Clone()); err != nil {
		return fmt.Errorf("failed to save framework: %w", err)
	}
	return nil
}

// SaveValidationResult writes the audit record for one validation round.
func (b *Brain) SaveValidationResult(ctx context.Context, taskID, roadmapID string, round int, out *roadmap.ValidationOutput) error {
	rec := &meta.ValidationRecord{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		RoadmapID:     roadmapID,
		Round:         round,
		IsValid:       out.IsValid,
		OverallScore:  out.OverallScore,
		CriticalCount: out.CriticalCount(),
		WarningCount:  out.WarningCount(),
		Issues:        out.Issues,
		Dimensions:    out.DimensionScores,
		Suggestions:   out.ImprovementSuggestions,
	}
	if err := b.store.AddValidationRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save validation record: %w", err)
	}
	return nil
}

// SaveEditPlan writes the audit record for one edit-plan analysis and
// returns the record ID.
func (b *Brain) SaveEditPlan(ctx context.Context, taskID, roadmapID, source string, plan *roadmap.EditPlan) (string, error) {
	rec := &meta.EditPlanRecord{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		RoadmapID: roadmapID,
		Source:    source,
		Plan:      plan,
	}
	if err := b.store.AddEditPlanRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to save edit plan: %w", err)
	}
	return rec.ID, nil
}

// SaveEditResult persists one edit round: the audit record with both
// framework snapshots and the change set, then the updated framework
// column. Two short writes, not one long transaction.
func (b *Brain) SaveEditResult(ctx context.Context, rec *meta.EditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := b.store.AddEditRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save edit record: %w", err)
	}
	return b.SaveRoadmapFramework(ctx, rec.RoadmapID, rec.ModifiedFramework)
}

// UpdateTaskToPendingReview parks the task awaiting the human decision.
func (b *Brain) UpdateTaskToPendingReview(ctx context.Context, taskID string) error {
	if err := b.store.UpdateTaskStatus(ctx, taskID, meta.TaskHumanReviewPending, NodeHumanReview); err != nil {
		return fmt.Errorf("failed to park task for review: %w", err)
	}
	return nil
}

// UpdateTaskAfterReview records the reviewer's decision and restores the
// task to processing. The review round is computed from the feedback
// already stored for this task. Returns the feedback record ID.
func (b *Brain) UpdateTaskAfterReview(ctx context.Context, taskID, roadmapID string, decision ReviewDecision, snapshot *roadmap.Framework) (string, error) {
	prior, err := b.store.ListReviewFeedback(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("failed to read prior review feedback: %w", err)
	}
	rec := &meta.ReviewFeedback{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		RoadmapID:   roadmapID,
		ReviewRound: len(prior) + 1,
		Approved:    decision.Approved,
		Feedback:    decision.Feedback,
	}
	if snapshot != nil {
		rec.FrameworkSnapshot = snapshot.Clone()
	}
	if err := b.store.AddReviewFeedback(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to save review feedback: %w", err)
	}
	if err := b.store.UpdateTaskStatus(ctx, taskID, meta.TaskProcessing, NodeHumanReview); err != nil {
		return "", fmt.Errorf("failed to restore task to processing: %w", err)
	}
	return rec.ID, nil
}

// SaveConceptContent persists one concept's generated triple as three short
// writes. Any failure leaves earlier writes in place; the caller records
// the concept as failed and fan-out accounting reconciles the framework
// statuses at the end.
func (b *Brain) SaveConceptContent(ctx context.Context, tut *meta.Tutorial, bundle *meta.ResourceBundle, quiz *meta.Quiz) error {
	if err := b.store.SaveTutorial(ctx, tut); err != nil {
		return fmt.Errorf("failed to save tutorial: %w", err)
	}
	if err := b.store.ReplaceResources(ctx, bundle); err != nil {
		return fmt.Errorf("failed to save resources: %w", err)
	}
	if err := b.store.ReplaceQuiz(ctx, quiz); err != nil {
		return fmt.Errorf("failed to save quiz: %w", err)
	}
	return nil
}

// UserProfile returns the user's stored preference profile, or nil when
// the user has none.
func (b *Brain) UserProfile(ctx context.Context, userID string) (*meta.UserProfile, error) {
	p, err := b.store.GetProfile(ctx, userID)
	if errors.Is(err, meta.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// PendingReview reports whether the task is parked awaiting a human
// decision. The human-review runner's resume detection probes this.
func (b *Brain) PendingReview(ctx context.Context, taskID string) (bool, error) {
	task, err := b.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.Status == meta.TaskHumanReviewPending, nil
}

// CompletedConcepts returns the concept IDs whose latest tutorial already
// completed, so fan-out can skip them on resume.
func (b *Brain) CompletedConcepts(ctx context.Context, roadmapID string) (map[string]bool, error) {
	ids, err := b.store.CompletedTutorialConcepts(ctx, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed concepts: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// NextTutorialVersion returns the content version the next tutorial write
// will receive for a concept.
func (b *Brain) NextTutorialVersion(ctx context.Context, roadmapID, conceptID string) (int, error) {
	latest, err := b.store.LatestTutorial(ctx, roadmapID, conceptID)
	if errors.Is(err, meta.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read latest tutorial: %w", err)
	}
	return latest.ContentVersion + 1, nil
}

// FinishFanOut writes the terminal fan-out outcome onto the task.
func (b *Brain) FinishFanOut(ctx context.Context, taskID, status string, summary *meta.ExecutionSummary, failed map[string]meta.ConceptFailure) error {
	if err := b.store.FinishTask(ctx, taskID, status, summary, failed); err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

// Cancelled reports whether the task was cancelled externally.
func (b *Brain) Cancelled(ctx context.Context, taskID string) (bool, error) {
	task, err := b.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.Status == meta.TaskCancelled, nil
}
