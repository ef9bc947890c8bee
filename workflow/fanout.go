package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/roadmapper-ai/roadmapper/agent"
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
)

// conceptResult is one concept's fan-out outcome before persistence.
type conceptResult struct {
	concept  roadmap.Concept
	tutorial *agent.TutorialOutput
	bundle   *agent.ResourceOutput
	quiz     *agent.QuizOutput
	err      error
}

// runContentFanOut generates the tutorial/resources/quiz triple for every
// pending concept under bounded concurrency, tolerating partial failure up
// to half of the attempted concepts.
func (e *Engine) runContentFanOut(ctx context.Context, rc *runContext, st State) (Delta, error) {
	if st.Framework == nil {
		return Delta{}, errors.New("content fan-out requires a framework")
	}
	fw := st.Framework.Clone()
	all := fw.Concepts()

	done, err := e.brain.CompletedConcepts(ctx, st.RoadmapID)
	if err != nil {
		return Delta{}, err
	}
	var pending []roadmap.Concept
	pendingIDs := []string{}
	for _, c := range all {
		if done[c.ConceptID] {
			e.metrics.countConcept("skipped")
			continue
		}
		pending = append(pending, *c)
		pendingIDs = append(pendingIDs, c.ConceptID)
	}

	// Flip the attempted concepts to generating before any agent runs so
	// observers polling the roadmap see the in-flight state.
	if len(pending) > 0 {
		fw.MarkContentStatuses(pendingIDs, roadmap.StatusGenerating)
		if err := e.brain.SaveRoadmapFramework(ctx, st.RoadmapID, fw); err != nil {
			return Delta{}, err
		}
	}

	e.startCoverImage(ctx, rc, st.RoadmapID, fw.Title)

	e.bus.Publish(bus.Event{
		TaskID:    st.TaskID,
		Type:      bus.EventBatchStarted,
		Step:      NodeContentFanOut,
		RoadmapID: st.RoadmapID,
		Meta: map[string]any{
			"attempted": len(pending),
			"skipped":   len(all) - len(pending),
		},
	})

	results := e.generateConcepts(ctx, rc, st, pending)

	attempted := len(pending)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
	}
	// Majority failure aborts the run before anything is persisted.
	if attempted > 0 && (failed == attempted || float64(failed)/float64(attempted) >= 0.5) {
		rc.logger.Append(ctx, meta.LogEntry{
			Level:    meta.LogError,
			Category: meta.CategoryWorkflow,
			Step:     NodeContentFanOut,
			Message:  fmt.Sprintf("fan-out aborted: %d of %d concepts failed", failed, attempted),
		})
		return Delta{}, fmt.Errorf("%w (%d/%d)", ErrFanOutAborted, failed, attempted)
	}

	delta, summary, failures, err := e.persistFanOut(ctx, rc, st, fw, results, done)
	if err != nil {
		return Delta{}, err
	}

	status := meta.TaskCompleted
	if len(failures) > 0 {
		status = meta.TaskPartialFailure
	}
	if err := e.brain.FinishFanOut(ctx, st.TaskID, status, summary, failures); err != nil {
		return Delta{}, err
	}

	e.bus.Publish(bus.Event{
		TaskID:    st.TaskID,
		Type:      bus.EventBatchCompleted,
		Step:      NodeContentFanOut,
		RoadmapID: st.RoadmapID,
		Meta: map[string]any{
			"succeeded": summary.ConceptsSucceeded,
			"failed":    summary.ConceptsFailed,
		},
	})

	delta.CurrentStep = str(NodeContentFanOut)
	delta.ExecutionHistory = []string{NodeContentFanOut}
	return delta, nil
}

// generateConcepts runs the per-concept agent triples under the semaphore.
// Each concept holds one slot while its three agents run in parallel.
func (e *Engine) generateConcepts(ctx context.Context, rc *runContext, st State, pending []roadmap.Concept) []conceptResult {
	sem := semaphore.NewWeighted(int64(e.opts.ParallelConceptLimit))
	results := make([]conceptResult, len(pending))
	var wg sync.WaitGroup

	language := ""
	if st.Intent != nil {
		language = st.Intent.LanguagePreference
	}

	for i, c := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = conceptResult{concept: c, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, c roadmap.Concept) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = e.generateConcept(ctx, rc, st, c, language)
		}(i, c)
	}
	wg.Wait()
	return results
}

// generateConcept runs the three content agents for one concept in
// parallel. All three must succeed.
func (e *Engine) generateConcept(ctx context.Context, rc *runContext, st State, c roadmap.Concept, language string) conceptResult {
	e.bus.Publish(bus.Event{
		TaskID:    st.TaskID,
		Type:      bus.EventConceptStarted,
		Step:      NodeContentFanOut,
		RoadmapID: st.RoadmapID,
		ConceptID: c.ConceptID,
	})
	rc.logger.Concept(ctx, meta.LogInfo, st.RoadmapID, c.ConceptID, "content generation started", nil)

	in := agent.ConceptInput{RoadmapID: st.RoadmapID, Concept: c, Language: language}
	res := conceptResult{concept: c}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := e.agents.Tutorial.GenerateTutorial(gctx, in)
		if err != nil {
			return fmt.Errorf("tutorial: %w", err)
		}
		res.tutorial = out
		return nil
	})
	g.Go(func() error {
		out, err := e.agents.Resources.RecommendResources(gctx, in)
		if err != nil {
			return fmt.Errorf("resources: %w", err)
		}
		res.bundle = out
		return nil
	})
	g.Go(func() error {
		out, err := e.agents.Quiz.GenerateQuiz(gctx, in)
		if err != nil {
			return fmt.Errorf("quiz: %w", err)
		}
		res.quiz = out
		return nil
	})

	if err := g.Wait(); err != nil {
		res.err = err
		e.bus.Publish(bus.Event{
			TaskID:    st.TaskID,
			Type:      bus.EventConceptFailed,
			Step:      NodeContentFanOut,
			RoadmapID: st.RoadmapID,
			ConceptID: c.ConceptID,
			Message:   err.Error(),
		})
		rc.logger.Concept(ctx, meta.LogError, st.RoadmapID, c.ConceptID,
			"content generation failed: "+err.Error(), nil)
		e.metrics.countConcept("failed")
		return res
	}

	rc.logger.Concept(ctx, meta.LogInfo, st.RoadmapID, c.ConceptID, "content generation finished", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res
}

// persistFanOut uploads tutorial bodies, saves the per-concept triples in
// short batches, updates the framework's embedded statuses and assembles
// the state delta. A per-concept save error joins the failure list instead
// of aborting; partial success is a valid terminal outcome.
func (e *Engine) persistFanOut(ctx context.Context, rc *runContext, st State, fw *roadmap.Framework, results []conceptResult, skipped map[string]bool) (Delta, *meta.ExecutionSummary, map[string]meta.ConceptFailure, error) {
	delta := Delta{
		TutorialRefs: map[string]string{},
		ResourceRefs: map[string]string{},
		QuizRefs:     map[string]string{},
	}
	failures := make(map[string]meta.ConceptFailure)
	summary := &meta.ExecutionSummary{ConceptsAttempted: len(results)}

	fail := func(c roadmap.Concept, reason string) {
		failures[c.ConceptID] = meta.ConceptFailure{
			ConceptID:   c.ConceptID,
			ConceptName: c.Name,
			Reason:      reason,
			FailedAt:    time.Now().UTC(),
		}
		delta.FailedConcepts = append(delta.FailedConcepts, failures[c.ConceptID])
		summary.ConceptsFailed++
	}

	for _, r := range results {
		if r.err != nil {
			fail(r.concept, r.err.Error())
			continue
		}

		// External cancellation stops persistence between concepts.
		if cancelled, err := e.brain.Cancelled(ctx, st.TaskID); err == nil && cancelled {
			return Delta{}, nil, nil, ErrTaskCancelled
		}

		version, err := e.brain.NextTutorialVersion(ctx, st.RoadmapID, r.concept.ConceptID)
		if err != nil {
			fail(r.concept, "version lookup: "+err.Error())
			e.metrics.countConcept("failed")
			continue
		}
		url, err := e.objects.Put(ctx, agent.TutorialKey(st.RoadmapID, r.concept.ConceptID, version), []byte(r.tutorial.Body))
		if err != nil {
			fail(r.concept, "tutorial upload: "+err.Error())
			e.metrics.countConcept("failed")
			continue
		}

		tut := &meta.Tutorial{
			TutorialID:       uuid.NewString(),
			RoadmapID:        st.RoadmapID,
			ConceptID:        r.concept.ConceptID,
			Title:            r.tutorial.Title,
			Summary:          r.tutorial.Summary,
			Status:           roadmap.StatusCompleted,
			ContentURL:       url,
			EstimatedMinutes: r.tutorial.EstimatedMinutes,
		}
		bundle := &meta.ResourceBundle{
			ResourcesID: uuid.NewString(),
			RoadmapID:   st.RoadmapID,
			ConceptID:   r.concept.ConceptID,
			Resources:   r.bundle.Resources,
		}
		quiz := &meta.Quiz{
			QuizID:    uuid.NewString(),
			RoadmapID: st.RoadmapID,
			ConceptID: r.concept.ConceptID,
			Questions: r.quiz.Questions,
		}

		if err := e.brain.SaveConceptContent(ctx, tut, bundle, quiz); err != nil {
			rc.logger.Concept(ctx, meta.LogError, st.RoadmapID, r.concept.ConceptID,
				"failed to persist content: "+err.Error(), nil)
			fail(r.concept, "save: "+err.Error())
			e.metrics.countConcept("failed")
			continue
		}

		delta.TutorialRefs[r.concept.ConceptID] = tut.TutorialID
		delta.ResourceRefs[r.concept.ConceptID] = bundle.ResourcesID
		delta.QuizRefs[r.concept.ConceptID] = quiz.QuizID
		summary.ConceptsSucceeded++
		summary.Tutorials++
		summary.ResourceBundles++
		summary.Quizzes++
		e.metrics.countConcept("completed")

		for _, contentType := range []string{"tutorial", "resources", "quiz"} {
			e.bus.Publish(bus.Event{
				TaskID:    st.TaskID,
				Type:      bus.EventConceptCompleted,
				Step:      NodeContentFanOut,
				RoadmapID: st.RoadmapID,
				ConceptID: r.concept.ConceptID,
				Meta:      map[string]any{"content_type": contentType},
			})
		}
		e.bus.Publish(bus.Event{
			TaskID:    st.TaskID,
			Type:      bus.EventConceptAllComplete,
			Step:      NodeContentFanOut,
			RoadmapID: st.RoadmapID,
			ConceptID: r.concept.ConceptID,
		})
	}

	// Update the embedded per-concept status fields and rewrite the
	// framework column whole.
	for _, c := range fw.Concepts() {
		switch {
		case failures[c.ConceptID].ConceptID != "":
			c.ContentStatus = roadmap.StatusFailed
			c.ResourcesStatus = roadmap.StatusFailed
			c.QuizStatus = roadmap.StatusFailed
		case delta.TutorialRefs[c.ConceptID] != "" || skipped[c.ConceptID]:
			c.ContentStatus = roadmap.StatusCompleted
			c.ResourcesStatus = roadmap.StatusCompleted
			c.QuizStatus = roadmap.StatusCompleted
			if ref := delta.TutorialRefs[c.ConceptID]; ref != "" {
				c.ContentRef = ref
			}
			if id := delta.ResourceRefs[c.ConceptID]; id != "" {
				c.ResourcesID = id
			}
			if id := delta.QuizRefs[c.ConceptID]; id != "" {
				c.QuizID = id
			}
		}
	}
	if err := e.brain.SaveRoadmapFramework(ctx, st.RoadmapID, fw); err != nil {
		return Delta{}, nil, nil, err
	}
	delta.Framework = fw

	return delta, summary, failures, nil
}

// startCoverImage kicks off cover-image generation without blocking the
// fan-out. Failures are logged and otherwise ignored.
func (e *Engine) startCoverImage(ctx context.Context, rc *runContext, roadmapID, title string) {
	if e.images == nil {
		return
	}
	go func() {
		img, err := e.images.GenerateImage(ctx, "learning roadmap cover illustration for: "+title)
		if err != nil {
			rc.logger.Concept(ctx, meta.LogWarning, roadmapID, "", "cover image generation failed: "+err.Error(), nil)
			return
		}
		if _, err := e.objects.Put(ctx, agent.CoverImageKey(roadmapID), img); err != nil {
			rc.logger.Concept(ctx, meta.LogWarning, roadmapID, "", "cover image upload failed: "+err.Error(), nil)
		}
	}()
}
