package meta

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// runBackends runs fn against every Store implementation so both backends
// honor the same contract.
func runBackends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func testFramework() *roadmap.Framework {
	return &roadmap.Framework{
		RoadmapID: "go-basics-a1b2c3d4",
		Title:     "Go Basics",
		Stages: []roadmap.Stage{
			{
				StageID: "s1", Name: "Foundations",
				Modules: []roadmap.Module{
					{
						ModuleID: "m1", Name: "Syntax",
						Concepts: []roadmap.Concept{
							{ConceptID: "c1", Name: "Variables"},
							{ConceptID: "c2", Name: "Functions", Prerequisites: []string{"c1"}},
						},
					},
				},
			},
		},
	}
}

func mustCreateTask(t *testing.T, s Store, taskID string) *Task {
	t.Helper()
	task := &Task{
		TaskID:   taskID,
		UserID:   "u1",
		TaskType: TaskTypeCreation,
		Status:   TaskPending,
		UserRequest: roadmap.UserRequest{
			UserID: "u1",
			Goal:   "learn Go for backend work",
			Level:  "beginner",
		},
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func TestTaskLifecycle(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreateTask(t, s, "t1")

		got, err := s.GetTask(ctx, "t1")
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != TaskPending || got.UserRequest.Goal != "learn Go for backend work" {
			t.Errorf("unexpected task: %+v", got)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not stamped")
		}

		if err := s.UpdateTaskStatus(ctx, "t1", TaskProcessing, "intent_analysis"); err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
		got, _ = s.GetTask(ctx, "t1")
		if got.Status != TaskProcessing || got.CurrentStep != "intent_analysis" {
			t.Errorf("status/step = %q/%q", got.Status, got.CurrentStep)
		}
		if got.CompletedAt != nil {
			t.Error("non-terminal status must not stamp CompletedAt")
		}

		if err := s.SetTaskRoadmap(ctx, "t1", "go-basics-a1b2c3d4"); err != nil {
			t.Fatalf("SetTaskRoadmap: %v", err)
		}

		summary := &ExecutionSummary{ConceptsAttempted: 2, ConceptsSucceeded: 1, ConceptsFailed: 1, Tutorials: 1}
		failed := map[string]ConceptFailure{
			"c2": {ConceptID: "c2", Reason: "generation timed out", FailedAt: time.Now().UTC()},
		}
		if err := s.FinishTask(ctx, "t1", TaskPartialFailure, summary, failed); err != nil {
			t.Fatalf("FinishTask: %v", err)
		}
		got, _ = s.GetTask(ctx, "t1")
		if got.Status != TaskPartialFailure {
			t.Errorf("Status = %q, want partial_failure", got.Status)
		}
		if got.CompletedAt == nil {
			t.Error("terminal status must stamp CompletedAt")
		}
		if got.Summary == nil || got.Summary.ConceptsSucceeded != 1 {
			t.Errorf("Summary = %+v", got.Summary)
		}
		if f, ok := got.FailedConcepts["c2"]; !ok || f.Reason != "generation timed out" {
			t.Errorf("FailedConcepts = %+v", got.FailedConcepts)
		}
		if got.RoadmapID != "go-basics-a1b2c3d4" {
			t.Errorf("RoadmapID = %q", got.RoadmapID)
		}
	})
}

func TestTaskErrorsAndMissing(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.GetTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetTask(nope) err = %v, want ErrNotFound", err)
		}
		if err := s.UpdateTaskStatus(ctx, "nope", TaskProcessing, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateTaskStatus(nope) err = %v, want ErrNotFound", err)
		}

		mustCreateTask(t, s, "t1")
		if err := s.SetTaskError(ctx, "t1", "intent agent unavailable"); err != nil {
			t.Fatalf("SetTaskError: %v", err)
		}
		got, _ := s.GetTask(ctx, "t1")
		if got.Status != TaskFailed || got.ErrorMessage != "intent agent unavailable" {
			t.Errorf("task after SetTaskError: %+v", got)
		}
		if got.CompletedAt == nil {
			t.Error("SetTaskError must stamp CompletedAt")
		}
	})
}

func TestListTasks(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mustCreateTask(t, s, "t1")
		mustCreateTask(t, s, "t2")
		if err := s.UpdateTaskStatus(ctx, "t2", TaskProcessing, "curriculum_design"); err != nil {
			t.Fatal(err)
		}

		all, err := s.ListTasks(ctx, "", "", time.Time{})
		if err != nil {
			t.Fatalf("ListTasks: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("len(all) = %d, want 2", len(all))
		}

		processing, err := s.ListTasks(ctx, TaskProcessing, TaskTypeCreation, time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if len(processing) != 1 || processing[0].TaskID != "t2" {
			t.Errorf("processing = %+v", processing)
		}

		none, err := s.ListTasks(ctx, "", "", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(none) != 0 {
			t.Errorf("future since should match nothing, got %d", len(none))
		}
	})
}

func TestRoadmapCreateAndUniqueness(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fw := testFramework()
		r := &Roadmap{RoadmapID: fw.RoadmapID, UserID: "u1", TaskID: "t1", Framework: fw}
		if err := s.CreateRoadmap(ctx, r); err != nil {
			t.Fatalf("CreateRoadmap: %v", err)
		}

		dup := &Roadmap{RoadmapID: fw.RoadmapID, UserID: "u2", TaskID: "t2"}
		if err := s.CreateRoadmap(ctx, dup); !errors.Is(err, ErrRoadmapIDTaken) {
			t.Errorf("duplicate create err = %v, want ErrRoadmapIDTaken", err)
		}

		got, err := s.GetRoadmap(ctx, fw.RoadmapID)
		if err != nil {
			t.Fatalf("GetRoadmap: %v", err)
		}
		if got.Title != "Go Basics" || got.TotalStages != 1 || got.TotalConcepts != 2 {
			t.Errorf("derived fields: %+v", got)
		}
		if got.Framework == nil || got.Framework.ConceptCount() != 2 {
			t.Error("framework column did not round-trip")
		}

		exists, err := s.RoadmapIDExists(ctx, fw.RoadmapID)
		if err != nil || !exists {
			t.Errorf("RoadmapIDExists = %v, %v", exists, err)
		}
		exists, _ = s.RoadmapIDExists(ctx, "free-id")
		if exists {
			t.Error("free-id should not exist")
		}
	})
}

func TestSaveFrameworkRefreshesTotals(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fw := testFramework()
		if err := s.CreateRoadmap(ctx, &Roadmap{RoadmapID: fw.RoadmapID, UserID: "u1", TaskID: "t1", Framework: fw}); err != nil {
			t.Fatal(err)
		}

		edited := fw.Clone()
		edited.Title = "Go Basics, Revised"
		edited.Stages[0].Modules[0].Concepts = append(edited.Stages[0].Modules[0].Concepts,
			roadmap.Concept{ConceptID: "c3", Name: "Closures"})
		if err := s.SaveFramework(ctx, fw.RoadmapID, edited); err != nil {
			t.Fatalf("SaveFramework: %v", err)
		}

		got, _ := s.GetRoadmap(ctx, fw.RoadmapID)
		if got.Title != "Go Basics, Revised" || got.TotalConcepts != 3 {
			t.Errorf("after save: title=%q concepts=%d", got.Title, got.TotalConcepts)
		}

		if err := s.SaveFramework(ctx, "missing", edited); !errors.Is(err, ErrNotFound) {
			t.Errorf("SaveFramework(missing) err = %v, want ErrNotFound", err)
		}
	})
}

func TestSoftDeleteAndSweep(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fw := testFramework()
		if err := s.CreateRoadmap(ctx, &Roadmap{RoadmapID: fw.RoadmapID, UserID: "u1", TaskID: "t1", Framework: fw}); err != nil {
			t.Fatal(err)
		}
		if err := s.SoftDeleteRoadmap(ctx, fw.RoadmapID, "u1"); err != nil {
			t.Fatalf("SoftDeleteRoadmap: %v", err)
		}

		if _, err := s.GetRoadmap(ctx, fw.RoadmapID); !errors.Is(err, ErrNotFound) {
			t.Errorf("soft-deleted roadmap must not load, err = %v", err)
		}
		exists, err := s.RoadmapIDExists(ctx, fw.RoadmapID)
		if err != nil || !exists {
			t.Errorf("soft-deleted roadmap must still reserve its ID: %v, %v", exists, err)
		}
		live, err := s.ListRoadmapsByUser(ctx, "u1")
		if err != nil || len(live) != 0 {
			t.Errorf("ListRoadmapsByUser after delete = %v, %v", live, err)
		}

		// Cutoff in the past leaves the row; cutoff in the future removes it.
		n, err := s.SweepDeleted(ctx, time.Now().Add(-time.Hour))
		if err != nil || n != 0 {
			t.Errorf("early sweep = %d, %v", n, err)
		}
		n, err = s.SweepDeleted(ctx, time.Now().Add(time.Hour))
		if err != nil || n != 1 {
			t.Errorf("sweep = %d, %v; want 1 row removed", n, err)
		}
		exists, _ = s.RoadmapIDExists(ctx, fw.RoadmapID)
		if exists {
			t.Error("swept roadmap ID should be free again")
		}
	})
}

func TestTutorialVersioning(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		v1 := &Tutorial{RoadmapID: "r1", ConceptID: "c1", Title: "Variables", Status: roadmap.StatusCompleted, ContentURL: "s3://content/r1/c1/v1.md"}
		if err := s.SaveTutorial(ctx, v1); err != nil {
			t.Fatalf("SaveTutorial v1: %v", err)
		}
		if v1.ContentVersion != 1 || !v1.IsLatest || v1.TutorialID == "" {
			t.Errorf("v1 after save: %+v", v1)
		}

		v2 := &Tutorial{RoadmapID: "r1", ConceptID: "c1", Title: "Variables, take two", Status: roadmap.StatusCompleted, ContentURL: "s3://content/r1/c1/v2.md"}
		if err := s.SaveTutorial(ctx, v2); err != nil {
			t.Fatalf("SaveTutorial v2: %v", err)
		}
		if v2.ContentVersion != 2 {
			t.Errorf("v2.ContentVersion = %d, want 2", v2.ContentVersion)
		}

		latest, err := s.LatestTutorial(ctx, "r1", "c1")
		if err != nil {
			t.Fatalf("LatestTutorial: %v", err)
		}
		if latest.TutorialID != v2.TutorialID || !latest.IsLatest {
			t.Errorf("latest = %+v, want v2", latest)
		}

		versions, err := s.TutorialVersions(ctx, "r1", "c1")
		if err != nil {
			t.Fatalf("TutorialVersions: %v", err)
		}
		if len(versions) != 2 || versions[0].ContentVersion != 2 || versions[1].ContentVersion != 1 {
			t.Errorf("versions = %+v, want newest first", versions)
		}
		if versions[1].IsLatest {
			t.Error("old version still flagged latest")
		}

		if _, err := s.LatestTutorial(ctx, "r1", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestTutorial(missing) err = %v", err)
		}
	})
}

func TestCompletedTutorialConcepts(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, tut := range []*Tutorial{
			{RoadmapID: "r1", ConceptID: "c1", Status: roadmap.StatusCompleted},
			{RoadmapID: "r1", ConceptID: "c2", Status: roadmap.StatusFailed},
			{RoadmapID: "r2", ConceptID: "c9", Status: roadmap.StatusCompleted},
		} {
			if err := s.SaveTutorial(ctx, tut); err != nil {
				t.Fatal(err)
			}
		}

		done, err := s.CompletedTutorialConcepts(ctx, "r1")
		if err != nil {
			t.Fatalf("CompletedTutorialConcepts: %v", err)
		}
		if len(done) != 1 || done[0] != "c1" {
			t.Errorf("done = %v, want [c1]", done)
		}

		// A failed retry supersedes the completed version.
		if err := s.SaveTutorial(ctx, &Tutorial{RoadmapID: "r1", ConceptID: "c1", Status: roadmap.StatusFailed}); err != nil {
			t.Fatal(err)
		}
		done, _ = s.CompletedTutorialConcepts(ctx, "r1")
		if len(done) != 0 {
			t.Errorf("done after failed retry = %v, want empty", done)
		}
	})
}

func TestResourceAndQuizReplace(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		b := &ResourceBundle{RoadmapID: "r1", ConceptID: "c1", Resources: []Resource{
			{Title: "Tour of Go", URL: "https://go.dev/tour", Type: "course"},
			{Title: "Effective Go", URL: "https://go.dev/doc/effective_go", Type: "docs"},
		}}
		if err := s.ReplaceResources(ctx, b); err != nil {
			t.Fatalf("ReplaceResources: %v", err)
		}
		firstID := b.ResourcesID

		b2 := &ResourceBundle{RoadmapID: "r1", ConceptID: "c1", Resources: []Resource{
			{Title: "Go by Example", URL: "https://gobyexample.com"},
		}}
		if err := s.ReplaceResources(ctx, b2); err != nil {
			t.Fatalf("ReplaceResources second: %v", err)
		}

		got, err := s.GetResources(ctx, "r1", "c1")
		if err != nil {
			t.Fatalf("GetResources: %v", err)
		}
		if got.ResourcesID == firstID || len(got.Resources) != 1 {
			t.Errorf("replace did not supersede: %+v", got)
		}

		q := &Quiz{RoadmapID: "r1", ConceptID: "c1", Questions: []QuizQuestion{
			{Question: "Which keyword declares a variable?", Options: []string{"var", "let", "dim"}, AnswerIndex: 0},
		}}
		if err := s.ReplaceQuiz(ctx, q); err != nil {
			t.Fatalf("ReplaceQuiz: %v", err)
		}
		gotQ, err := s.GetQuiz(ctx, "r1", "c1")
		if err != nil {
			t.Fatalf("GetQuiz: %v", err)
		}
		if len(gotQ.Questions) != 1 || gotQ.Questions[0].AnswerIndex != 0 {
			t.Errorf("quiz round-trip: %+v", gotQ)
		}

		if _, err := s.GetQuiz(ctx, "r1", "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetQuiz(missing) err = %v", err)
		}
	})
}

func TestAuditRecords(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fw := testFramework()

		for round := 1; round <= 2; round++ {
			rec := &ValidationRecord{
				TaskID: "t1", RoadmapID: fw.RoadmapID, Round: round,
				IsValid: round == 2, OverallScore: float64(60 + round*15),
				Issues: []roadmap.Issue{{Severity: roadmap.SeverityWarning, Category: "coverage", Description: "thin stage"}},
			}
			if err := s.AddValidationRecord(ctx, rec); err != nil {
				t.Fatalf("AddValidationRecord: %v", err)
			}
		}
		vals, err := s.ListValidationRecords(ctx, "t1")
		if err != nil {
			t.Fatalf("ListValidationRecords: %v", err)
		}
		if len(vals) != 2 || vals[0].Round != 1 || vals[1].Round != 2 {
			t.Errorf("validation rounds = %+v", vals)
		}
		if !vals[1].IsValid || len(vals[0].Issues) != 1 {
			t.Errorf("record content: %+v", vals)
		}

		edit := &EditRecord{
			TaskID: "t1", RoadmapID: fw.RoadmapID, Round: 1,
			Source: roadmap.EditSourceValidation, OriginFramework: fw,
			ModifiedFramework: fw.Clone(), ChangedConceptIDs: []string{"c2"},
			Summary: "tightened prerequisites",
		}
		if err := s.AddEditRecord(ctx, edit); err != nil {
			t.Fatalf("AddEditRecord: %v", err)
		}
		edits, err := s.ListEditRecords(ctx, "t1")
		if err != nil || len(edits) != 1 {
			t.Fatalf("ListEditRecords = %v, %v", edits, err)
		}
		if edits[0].OriginFramework == nil || edits[0].OriginFramework.ConceptCount() != 2 {
			t.Error("origin framework did not round-trip")
		}

		review := &ReviewFeedback{TaskID: "t1", RoadmapID: fw.RoadmapID, ReviewRound: 1, Approved: false, Feedback: "add a testing module"}
		if err := s.AddReviewFeedback(ctx, review); err != nil {
			t.Fatalf("AddReviewFeedback: %v", err)
		}
		reviews, err := s.ListReviewFeedback(ctx, "t1")
		if err != nil || len(reviews) != 1 || reviews[0].Approved {
			t.Fatalf("ListReviewFeedback = %v, %v", reviews, err)
		}

		plan := &EditPlanRecord{
			TaskID: "t1", RoadmapID: fw.RoadmapID, Source: roadmap.EditSourceValidation,
			Plan: &roadmap.EditPlan{
				FeedbackSummary: "coverage gaps",
				Intents: []roadmap.EditIntent{
					{IntentType: roadmap.IntentAdd, TargetPath: "stages[0].modules[0]", Description: "add closures concept", Priority: roadmap.PriorityMust},
				},
			},
		}
		if err := s.AddEditPlanRecord(ctx, plan); err != nil {
			t.Fatalf("AddEditPlanRecord: %v", err)
		}
		plans, err := s.ListEditPlanRecords(ctx, "t1")
		if err != nil || len(plans) != 1 {
			t.Fatalf("ListEditPlanRecords = %v, %v", plans, err)
		}
		if plans[0].Plan == nil || len(plans[0].Plan.Intents) != 1 {
			t.Error("edit plan did not round-trip")
		}
	})
}

func TestLogQueryAndSummary(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		entries := []LogEntry{
			{TaskID: "t1", Level: LogInfo, Category: CategoryWorkflow, Step: "intent_analysis", Message: "workflow started", CreatedAt: base},
			{TaskID: "t1", Level: LogInfo, Category: CategoryAgent, AgentName: "intent", Message: "intent parsed", DurationMS: 1200, CreatedAt: base.Add(time.Second)},
			{TaskID: "t1", Level: LogError, Category: CategoryAgent, AgentName: "validation", Message: "agent call failed", CreatedAt: base.Add(2 * time.Second)},
			{TaskID: "other", Level: LogInfo, Category: CategoryWorkflow, Message: "unrelated", CreatedAt: base},
		}
		if err := s.AppendLogs(ctx, entries); err != nil {
			t.Fatalf("AppendLogs: %v", err)
		}

		all, err := s.QueryLogs(ctx, "t1", LogFilter{})
		if err != nil {
			t.Fatalf("QueryLogs: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(all) = %d, want 3", len(all))
		}
		if all[0].Message != "agent call failed" || all[2].Message != "workflow started" {
			t.Errorf("logs not newest-first: %v, %v", all[0].Message, all[2].Message)
		}

		errs, err := s.QueryLogs(ctx, "t1", LogFilter{Level: LogError})
		if err != nil || len(errs) != 1 || errs[0].AgentName != "validation" {
			t.Errorf("level filter = %+v, %v", errs, err)
		}

		page, err := s.QueryLogs(ctx, "t1", LogFilter{Offset: 1, Limit: 1})
		if err != nil || len(page) != 1 || page[0].Message != "intent parsed" {
			t.Errorf("pagination = %+v, %v", page, err)
		}

		sum, err := s.SummarizeLogs(ctx, "t1")
		if err != nil {
			t.Fatalf("SummarizeLogs: %v", err)
		}
		if sum.Total != 3 || sum.CountsByLevel[LogError] != 1 || sum.CountsByCat[CategoryAgent] != 2 {
			t.Errorf("summary = %+v", sum)
		}
		if sum.TotalDurationMS != 1200 {
			t.Errorf("TotalDurationMS = %d", sum.TotalDurationMS)
		}
		if !sum.FirstAt.Equal(base) || !sum.LastAt.Equal(base.Add(2*time.Second)) {
			t.Errorf("window = %v .. %v", sum.FirstAt, sum.LastAt)
		}
	})
}

func TestProfileNotesChat(t *testing.T) {
	runBackends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetProfile(missing) err = %v", err)
		}
		p := &UserProfile{UserID: "u1", DisplayName: "Sam", Language: "en", WeeklyHours: 6}
		if err := s.PutProfile(ctx, p); err != nil {
			t.Fatalf("PutProfile: %v", err)
		}
		p.WeeklyHours = 10
		if err := s.PutProfile(ctx, p); err != nil {
			t.Fatalf("PutProfile upsert: %v", err)
		}
		got, err := s.GetProfile(ctx, "u1")
		if err != nil || got.WeeklyHours != 10 {
			t.Errorf("profile = %+v, %v", got, err)
		}

		n := &Note{UserID: "u1", RoadmapID: "r1", ConceptID: "c1", Body: "revisit pointers"}
		if err := s.AddNote(ctx, n); err != nil {
			t.Fatalf("AddNote: %v", err)
		}
		notes, err := s.ListNotes(ctx, "r1")
		if err != nil || len(notes) != 1 || notes[0].Body != "revisit pointers" {
			t.Errorf("notes = %+v, %v", notes, err)
		}
		if err := s.DeleteNote(ctx, n.NoteID); err != nil {
			t.Fatalf("DeleteNote: %v", err)
		}
		notes, _ = s.ListNotes(ctx, "r1")
		if len(notes) != 0 {
			t.Errorf("notes after delete = %+v", notes)
		}
		if err := s.DeleteNote(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("DeleteNote(missing) err = %v", err)
		}

		for _, m := range []*ChatMessage{
			{TaskID: "t1", Role: "user", Content: "why was c2 removed?"},
			{TaskID: "t1", Role: "assistant", Content: "it duplicated c1 coverage"},
		} {
			if err := s.AddChatMessage(ctx, m); err != nil {
				t.Fatalf("AddChatMessage: %v", err)
			}
		}
		msgs, err := s.ListChat(ctx, "t1")
		if err != nil || len(msgs) != 2 || msgs[0].Role != "user" {
			t.Errorf("chat = %+v, %v", msgs, err)
		}
	})
}
