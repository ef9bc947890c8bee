package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// testState is a minimal JSON-serializable state for store tests.
type testState struct {
	Counter int               `json:"counter"`
	Refs    map[string]string `json:"refs,omitempty"`
}

func runStores(t *testing.T, fn func(t *testing.T, s Store[testState])) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemStore[testState]())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore[testState](filepath.Join(t.TempDir(), "checkpoints.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestPutAndLatest(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()

		if _, err := s.Latest(ctx, "t1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest(unknown) err = %v, want ErrNotFound", err)
		}

		for step := 1; step <= 3; step++ {
			rec := Record[testState]{
				ThreadID:   "t1",
				Step:       step,
				ParentStep: step - 1,
				NodeID:     "node",
				NextNode:   "next",
				State:      testState{Counter: step},
			}
			if err := s.Put(ctx, rec); err != nil {
				t.Fatalf("Put step %d: %v", step, err)
			}
		}

		latest, err := s.Latest(ctx, "t1")
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if latest.Step != 3 || latest.State.Counter != 3 || latest.ParentStep != 2 {
			t.Errorf("latest = %+v", latest)
		}
		if latest.CreatedAt.IsZero() {
			t.Error("CreatedAt not stamped")
		}

		got, err := s.Get(ctx, "t1", 2)
		if err != nil || got.State.Counter != 2 {
			t.Errorf("Get(2) = %+v, %v", got, err)
		}
		if _, err := s.Get(ctx, "t1", 99); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(99) err = %v", err)
		}
	})
}

func TestPutReplacesSameStep(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()
		rec := Record[testState]{ThreadID: "t1", Step: 1, NodeID: "a", State: testState{Counter: 1}}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
		rec.NodeID = "b"
		rec.State.Counter = 9
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("rewrite: %v", err)
		}

		history, err := s.History(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].NodeID != "b" || history[0].State.Counter != 9 {
			t.Errorf("history after rewrite = %+v", history)
		}
	})
}

func TestPutValidation(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()
		if err := s.Put(ctx, Record[testState]{Step: 1}); err == nil {
			t.Error("empty thread ID must be rejected")
		}
		if err := s.Put(ctx, Record[testState]{ThreadID: "t1", Step: 0}); err == nil {
			t.Error("step 0 must be rejected")
		}
	})
}

func TestHistoryOrderAndIsolation(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()
		// Out-of-order writes still yield an ordered chain.
		for _, step := range []int{2, 1, 3} {
			rec := Record[testState]{
				ThreadID: "t1", Step: step, ParentStep: step - 1, NodeID: "n",
				State: testState{Counter: step, Refs: map[string]string{"c1": "ref"}},
			}
			if err := s.Put(ctx, rec); err != nil {
				t.Fatal(err)
			}
		}

		history, err := s.History(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		steps := make([]int, len(history))
		for i, rec := range history {
			steps[i] = rec.Step
		}
		if !reflect.DeepEqual(steps, []int{1, 2, 3}) {
			t.Errorf("history steps = %v", steps)
		}

		// Mutating a returned record must not affect the store.
		history[0].State.Refs["c1"] = "mutated"
		again, _ := s.Get(ctx, "t1", 1)
		if again.State.Refs["c1"] != "ref" {
			t.Error("store shares state memory with caller")
		}
	})
}

func TestSuspendedThreads(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()
		payload, _ := json.Marshal(map[string]string{"action": "review_roadmap"})

		// t1 suspended at its latest step.
		if err := s.Put(ctx, Record[testState]{ThreadID: "t1", Step: 1, NodeID: "a"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, Record[testState]{
			ThreadID: "t1", Step: 2, ParentStep: 1, NodeID: "review",
			Interrupt: &Interrupt{NodeID: "review", Payload: payload},
		}); err != nil {
			t.Fatal(err)
		}
		// t2 was suspended earlier but has moved past it.
		if err := s.Put(ctx, Record[testState]{
			ThreadID: "t2", Step: 1, NodeID: "review",
			Interrupt: &Interrupt{NodeID: "review"},
		}); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, Record[testState]{ThreadID: "t2", Step: 2, ParentStep: 1, NodeID: "after"}); err != nil {
			t.Fatal(err)
		}

		suspended, err := s.Suspended(ctx)
		if err != nil {
			t.Fatalf("Suspended: %v", err)
		}
		if !reflect.DeepEqual(suspended, []string{"t1"}) {
			t.Errorf("suspended = %v, want [t1]", suspended)
		}

		latest, _ := s.Latest(ctx, "t1")
		if !latest.Suspended() || latest.Interrupt.NodeID != "review" {
			t.Errorf("latest t1 = %+v", latest)
		}
		var decoded map[string]string
		if err := json.Unmarshal(latest.Interrupt.Payload, &decoded); err != nil || decoded["action"] != "review_roadmap" {
			t.Errorf("payload round-trip: %v, %v", decoded, err)
		}
	})
}

func TestDeleteThread(t *testing.T) {
	runStores(t, func(t *testing.T, s Store[testState]) {
		ctx := context.Background()
		if err := s.Put(ctx, Record[testState]{ThreadID: "t1", Step: 1, NodeID: "a"}); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteThread(ctx, "t1"); err != nil {
			t.Fatalf("DeleteThread: %v", err)
		}
		if _, err := s.Latest(ctx, "t1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest after delete err = %v", err)
		}
		// Deleting an unknown thread is a no-op.
		if err := s.DeleteThread(ctx, "ghost"); err != nil {
			t.Errorf("DeleteThread(ghost) = %v", err)
		}
	})
}
