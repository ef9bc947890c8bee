package workflow

import (
	"context"

	"github.com/roadmapper-ai/roadmapper/execlog"
)

// Node names. These appear in Task.CurrentStep, checkpoints, logs and
// events; they are part of the persisted surface and must stay stable.
const (
	NodeIntentAnalysis      = "intent_analysis"
	NodeCurriculumDesign    = "curriculum_design"
	NodeStructureValidation = "structure_validation"
	NodeValidationEditPlan  = "validation_edit_plan_analysis"
	NodeEditPlanAnalysis    = "edit_plan_analysis"
	NodeRoadmapEdit         = "roadmap_edit"
	NodeHumanReview         = "human_review"
	NodeContentFanOut       = "content_fan_out"

	// nodeEnd terminates the run.
	nodeEnd = ""
)

// runContext carries the per-run collaborators a runner needs beyond the
// engine itself.
type runContext struct {
	logger     *execlog.Logger
	gate       *interruptGate
	skipBefore bool
}

// runner executes one node and returns its channel writes.
type runner func(ctx context.Context, rc *runContext, st State) (Delta, error)

// graphDef is the compiled workflow graph: a runner per node plus either an
// unconditional successor or a router computing the successor from state.
type graphDef struct {
	start   string
	runners map[string]runner
	next    map[string]string
	routers map[string]func(State) string
}

// route returns the node to run after node, given the post-node state.
func (g *graphDef) route(node string, st State) string {
	if r, ok := g.routers[node]; ok {
		return r(st)
	}
	return g.next[node]
}

// buildGraph compiles the node graph from the configured options:
//
//	intent_analysis -> curriculum_design -> [validation <-> edit loop]
//	  -> [human_review] -> [content_fan_out] -> end
//
// Optional stages drop out of the chain entirely when skipped.
func (e *Engine) buildGraph() *graphDef {
	opts := e.opts
	g := &graphDef{
		start:   NodeIntentAnalysis,
		runners: map[string]runner{},
		next:    map[string]string{},
		routers: map[string]func(State) string{},
	}

	// afterFramework is the first stage that runs once the framework is
	// settled (validated or validation skipped).
	afterFramework := func() string {
		if !opts.SkipHumanReview {
			return NodeHumanReview
		}
		if !opts.SkipContentGeneration {
			return NodeContentFanOut
		}
		return nodeEnd
	}

	// afterApproval is the first stage after human approval.
	afterApproval := func() string {
		if !opts.SkipContentGeneration {
			return NodeContentFanOut
		}
		return nodeEnd
	}

	g.runners[NodeIntentAnalysis] = e.runIntentAnalysis
	g.next[NodeIntentAnalysis] = NodeCurriculumDesign

	g.runners[NodeCurriculumDesign] = e.runCurriculumDesign
	if opts.SkipValidation {
		g.next[NodeCurriculumDesign] = afterFramework()
	} else {
		g.next[NodeCurriculumDesign] = NodeStructureValidation

		g.runners[NodeStructureValidation] = e.runStructureValidation
		g.routers[NodeStructureValidation] = func(st State) string {
			if st.Validation != nil && !st.Validation.IsValid &&
				st.ModificationCount < opts.MaxValidationRetries {
				return NodeValidationEditPlan
			}
			return afterFramework()
		}

		g.runners[NodeValidationEditPlan] = e.runValidationEditPlan
		g.next[NodeValidationEditPlan] = NodeRoadmapEdit

		g.runners[NodeRoadmapEdit] = e.runRoadmapEdit
		g.next[NodeRoadmapEdit] = NodeStructureValidation
	}

	if !opts.SkipHumanReview {
		g.runners[NodeHumanReview] = e.runHumanReview
		g.routers[NodeHumanReview] = func(st State) string {
			if st.HumanApproved {
				return afterApproval()
			}
			// Rejection feeds the edit chain when validation exists;
			// otherwise the framework is redesigned from the feedback.
			if opts.SkipValidation {
				return NodeCurriculumDesign
			}
			return NodeEditPlanAnalysis
		}

		if !opts.SkipValidation {
			g.runners[NodeEditPlanAnalysis] = e.runEditPlanAnalysis
			g.next[NodeEditPlanAnalysis] = NodeRoadmapEdit
		}
	}

	if !opts.SkipContentGeneration {
		g.runners[NodeContentFanOut] = e.runContentFanOut
		g.next[NodeContentFanOut] = nodeEnd
	}

	return g
}
