package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roadmapper-ai/roadmapper/agent"
	"github.com/roadmapper-ai/roadmapper/meta"
	"github.com/roadmapper-ai/roadmapper/roadmap"
	"github.com/roadmapper-ai/roadmapper/workflow/bus"
)

// runIntentAnalysis calls the intent agent, reconciles the proposed roadmap
// ID against the store, and claims the ID by creating the roadmap row.
func (e *Engine) runIntentAnalysis(ctx context.Context, rc *runContext, st State) (Delta, error) {
	start := time.Now()
	intent, err := e.agents.Intent.AnalyzeIntent(ctx, st.UserRequest)
	if err != nil {
		rc.logger.Agent(ctx, meta.LogError, "intent", "intent analysis failed: "+err.Error(), time.Since(start), nil)
		return Delta{}, err
	}
	rc.logger.Agent(ctx, meta.LogInfo, "intent", "intent analysis completed", time.Since(start), map[string]any{
		"candidate_roadmap_id": intent.RoadmapID,
	})

	id, err := e.brain.EnsureUniqueRoadmapID(ctx, intent.RoadmapID)
	if err != nil {
		return Delta{}, err
	}
	if id != intent.RoadmapID {
		rc.logger.Warning(ctx, NodeIntentAnalysis,
			fmt.Sprintf("roadmap id %q was taken, using %q", intent.RoadmapID, id), nil)
		intent.RoadmapID = id
	}

	if err := e.brain.SaveIntentAnalysis(ctx, st.TaskID, st.UserRequest.UserID, intent); err != nil {
		return Delta{}, err
	}

	return Delta{
		Intent:           intent,
		RoadmapID:        str(id),
		CurrentStep:      str(NodeIntentAnalysis),
		ExecutionHistory: []string{NodeIntentAnalysis},
	}, nil
}

// runCurriculumDesign calls the curriculum architect with the intent
// analysis and the user's stored profile, forces the framework onto the
// authoritative roadmap ID, and persists it.
func (e *Engine) runCurriculumDesign(ctx context.Context, rc *runContext, st State) (Delta, error) {
	in := agent.CurriculumInput{Request: st.UserRequest, Intent: st.Intent}
	if profile, err := e.brain.UserProfile(ctx, st.UserRequest.UserID); err == nil {
		in.Profile = profile
	}
	// A redesign after human rejection carries the feedback forward.
	if st.UserFeedback != "" && st.EditSource == roadmap.EditSourceHumanReview {
		if in.Request.Extra == nil {
			in.Request.Extra = map[string]any{}
		}
		in.Request.Extra["review_feedback"] = st.UserFeedback
	}

	start := time.Now()
	fw, err := e.agents.Curriculum.DesignCurriculum(ctx, in)
	if err != nil {
		rc.logger.Agent(ctx, meta.LogError, "curriculum", "curriculum design failed: "+err.Error(), time.Since(start), nil)
		return Delta{}, err
	}
	rc.logger.Agent(ctx, meta.LogInfo, "curriculum", "curriculum design completed", time.Since(start), map[string]any{
		"stages":   len(fw.Stages),
		"concepts": fw.ConceptCount(),
	})

	if fw.RoadmapID != st.RoadmapID {
		rc.logger.Warning(ctx, NodeCurriculumDesign,
			fmt.Sprintf("agent returned roadmap id %q, overwriting with %q", fw.RoadmapID, st.RoadmapID), nil)
		fw.RoadmapID = st.RoadmapID
	}

	if err := e.brain.SaveRoadmapFramework(ctx, st.RoadmapID, fw); err != nil {
		return Delta{}, err
	}

	return Delta{
		Framework:        fw,
		CurrentStep:      str(NodeCurriculumDesign),
		ExecutionHistory: []string{NodeCurriculumDesign},
	}, nil
}

// runStructureValidation runs the local structural checks, consults the
// validator agent, merges findings with local ones winning, and records the
// round.
func (e *Engine) runStructureValidation(ctx context.Context, rc *runContext, st State) (Delta, error) {
	if st.Framework == nil {
		return Delta{}, errors.New("structure validation requires a framework")
	}
	local := roadmap.CheckStructure(st.Framework)

	start := time.Now()
	out, err := e.agents.Validator.ValidateStructure(ctx, st.Framework)
	if err != nil {
		rc.logger.Agent(ctx, meta.LogError, "validator", "validation failed: "+err.Error(), time.Since(start), nil)
		return Delta{}, err
	}
	out.Issues = roadmap.MergeIssues(local, out.Issues)
	out.Finalize()

	round := st.ValidationRound + 1
	level := meta.LogInfo
	msg := fmt.Sprintf("validation round %d passed (score %.1f)", round, out.OverallScore)
	if !out.IsValid {
		level = meta.LogWarning
		msg = fmt.Sprintf("validation round %d failed: %d critical, %d warning", round, out.CriticalCount(), out.WarningCount())
	}
	rc.logger.Agent(ctx, level, "validator", msg, time.Since(start), map[string]any{
		"round":         round,
		"overall_score": out.OverallScore,
	})

	if err := e.brain.SaveValidationResult(ctx, st.TaskID, st.RoadmapID, round, out); err != nil {
		return Delta{}, err
	}
	e.bus.Publish(bus.Event{
		TaskID:    st.TaskID,
		Type:      bus.EventValidationRound,
		Step:      NodeStructureValidation,
		RoadmapID: st.RoadmapID,
		Meta: map[string]any{
			"round":    round,
			"is_valid": out.IsValid,
			"score":    out.OverallScore,
		},
	})

	return Delta{
		Validation:       out,
		ValidationRound:  num(round),
		CurrentStep:      str(NodeStructureValidation),
		ExecutionHistory: []string{NodeStructureValidation},
	}, nil
}

// formatValidationFeedback renders validation findings as the feedback text
// handed to the edit-plan analyzer.
func formatValidationFeedback(v *roadmap.ValidationOutput) string {
	var sb strings.Builder
	sb.WriteString("The roadmap failed structural validation. Issues:\n")
	for _, is := range v.Issues {
		sb.WriteString(fmt.Sprintf("- [%s/%s] %s", is.Severity, is.Category, is.Description))
		if is.Location != "" {
			sb.WriteString(" at " + is.Location)
		}
		sb.WriteString("\n")
	}
	if len(v.ImprovementSuggestions) > 0 {
		sb.WriteString("Suggestions:\n")
		for _, s := range v.ImprovementSuggestions {
			sb.WriteString("- " + s + "\n")
		}
	}
	return sb.String()
}

// analyzeEditPlan is the shared body of both edit-plan nodes.
func (e *Engine) analyzeEditPlan(ctx context.Context, rc *runContext, st State, node, source, feedback string) (Delta, error) {
	start := time.Now()
	plan, err := e.agents.EditPlan.AnalyzeFeedback(ctx, agent.EditPlanInput{
		Feedback:  feedback,
		Framework: st.Framework,
		Source:    source,
	})
	if err != nil {
		rc.logger.Agent(ctx, meta.LogError, "edit-plan", "edit plan analysis failed: "+err.Error(), time.Since(start), nil)
		return Delta{}, err
	}
	if plan.NeedsClarification {
		// Never block on clarification round-trips; proceed with the best
		// understanding.
		rc.logger.Warning(ctx, node, "edit plan analyzer requested clarification, proceeding anyway", nil)
	}
	rc.logger.Agent(ctx, meta.LogInfo, "edit-plan", "edit plan produced", time.Since(start), map[string]any{
		"intents": len(plan.Intents),
		"source":  source,
	})

	recID, err := e.brain.SaveEditPlan(ctx, st.TaskID, st.RoadmapID, source, plan)
	if err != nil {
		return Delta{}, err
	}

	return Delta{
		EditPlan:         plan,
		UserFeedback:     str(feedback),
		EditSource:       str(source),
		EditPlanRecordID: str(recID),
		CurrentStep:      str(node),
		ExecutionHistory: []string{node},
	}, nil
}

// runValidationEditPlan turns failed-validation findings into an edit plan.
func (e *Engine) runValidationEditPlan(ctx context.Context, rc *runContext, st State) (Delta, error) {
	if st.Validation == nil {
		return Delta{}, errors.New("validation edit plan requires a validation result")
	}
	feedback := formatValidationFeedback(st.Validation)
	return e.analyzeEditPlan(ctx, rc, st, NodeValidationEditPlan, roadmap.EditSourceValidation, feedback)
}

// runEditPlanAnalysis turns human rejection feedback into an edit plan.
func (e *Engine) runEditPlanAnalysis(ctx context.Context, rc *runContext, st State) (Delta, error) {
	return e.analyzeEditPlan(ctx, rc, st, NodeEditPlanAnalysis, roadmap.EditSourceHumanReview, st.UserFeedback)
}

// runRoadmapEdit applies the pending edit plan through the editor agent,
// records the edit with its change set, and persists the new framework.
func (e *Engine) runRoadmapEdit(ctx context.Context, rc *runContext, st State) (Delta, error) {
	if st.EditPlan == nil {
		return Delta{}, errors.New("roadmap edit requires an edit plan")
	}
	must, should, could := st.EditPlan.CountByPriority()
	round := st.ModificationCount + 1
	editCtx := fmt.Sprintf("edit round %d: %d must, %d should, %d could", round, must, should, could)

	start := time.Now()
	modified, err := e.agents.Editor.EditRoadmap(ctx, agent.EditInput{
		Plan:      st.EditPlan,
		Framework: st.Framework,
		Context:   editCtx,
	})
	if err != nil {
		rc.logger.Agent(ctx, meta.LogError, "editor", "roadmap edit failed: "+err.Error(), time.Since(start), nil)
		return Delta{}, err
	}
	modified.RoadmapID = st.RoadmapID

	changed := roadmap.ChangedConceptIDs(st.Framework, modified)
	rc.logger.Agent(ctx, meta.LogInfo, "editor", "roadmap edit applied", time.Since(start), map[string]any{
		"round":            round,
		"changed_concepts": len(changed),
	})

	rec := &meta.EditRecord{
		TaskID:            st.TaskID,
		RoadmapID:         st.RoadmapID,
		Round:             round,
		Source:            st.EditSource,
		OriginFramework:   st.Framework.Clone(),
		ModifiedFramework: modified,
		ChangedConceptIDs: changed,
		Summary:           fmt.Sprintf("round %d (%s): %d concepts changed", round, st.EditSource, len(changed)),
	}
	if err := e.brain.SaveEditResult(ctx, rec); err != nil {
		return Delta{}, err
	}
	e.bus.Publish(bus.Event{
		TaskID:    st.TaskID,
		Type:      bus.EventEditApplied,
		Step:      NodeRoadmapEdit,
		RoadmapID: st.RoadmapID,
		Meta: map[string]any{
			"round":            round,
			"source":           st.EditSource,
			"changed_concepts": len(changed),
		},
	})

	return Delta{
		Framework:         modified,
		ModificationCount: num(round),
		CurrentStep:       str(NodeRoadmapEdit),
		ExecutionHistory:  []string{NodeRoadmapEdit},
	}, nil
}

// runHumanReview suspends the run for an external decision.
//
// On first entry it emits the review-required notification, parks the task
// and raises the suspend signal. On re-entry after resume the pre-suspend
// side effects are skipped (rc.skipBefore, derived from the task-status
// probe) and the interrupt gate returns the reviewer's decision instead of
// suspending.
func (e *Engine) runHumanReview(ctx context.Context, rc *runContext, st State) (Delta, error) {
	if st.Framework == nil {
		return Delta{}, errors.New("human review requires a framework")
	}
	summary := st.Framework.Summarize()

	if !rc.skipBefore {
		e.bus.Publish(bus.Event{
			TaskID:    st.TaskID,
			Type:      bus.EventHumanReviewRequired,
			Step:      NodeHumanReview,
			RoadmapID: st.RoadmapID,
			Message:   "roadmap awaiting human review",
			Meta: map[string]any{
				"title":    summary.Title,
				"stages":   summary.StageCount,
				"concepts": summary.ConceptCount,
			},
		})
		if err := e.brain.UpdateTaskToPendingReview(ctx, st.TaskID); err != nil {
			return Delta{}, err
		}
		rc.logger.Info(ctx, NodeHumanReview, "review_waiting", map[string]any{
			"title":    summary.Title,
			"concepts": summary.ConceptCount,
		})
	}

	decision, err := rc.gate.Interrupt(summary)
	if err != nil {
		return Delta{}, err
	}

	// Resumed: the decision is authoritative even if persisting feedback
	// fails, so record errors are logged and swallowed.
	fbID, err := e.brain.UpdateTaskAfterReview(ctx, st.TaskID, st.RoadmapID, *decision, st.Framework)
	if err != nil {
		rc.logger.Warning(ctx, NodeHumanReview, "failed to persist review feedback: "+err.Error(), nil)
	}

	if decision.Approved {
		rc.logger.Info(ctx, NodeHumanReview, "roadmap approved by reviewer", nil)
	} else {
		rc.logger.Info(ctx, NodeHumanReview, "roadmap rejected by reviewer", map[string]any{
			"feedback": decision.Feedback,
		})
	}

	delta := Delta{
		HumanApproved:    flag(decision.Approved),
		UserFeedback:     str(decision.Feedback),
		ReviewFeedbackID: str(fbID),
		CurrentStep:      str(NodeHumanReview),
		ExecutionHistory: []string{NodeHumanReview},
	}
	if !decision.Approved {
		delta.EditSource = str(roadmap.EditSourceHumanReview)
	}
	return delta, nil
}
