package dag

import (
	"reflect"
	"testing"

	"zr/internal/task"
)

func TestScheduler_ReadyTasks_SortedByDepthThenName(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b"},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c", Deps: []string{"A"}},
		{Name: "D", Inputs: []string{"d"}, Run: "run-d", Deps: []string{"B"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A and B completed => C and D become ready. Both are depth 1, so lexical by name.
	state := ExecutionState{
		"A": TaskCompleted,
		"B": TaskCompleted,
		"C": TaskPending,
		"D": TaskPending,
	}

	got := GetReadyTasks(g, state)
	want := []string{"C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_ReadyTasks_RootsLexicalOrder(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "B", Inputs: []string{"b"}, Run: "run-b"},
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskPending,
		"B": TaskPending,
		"C": TaskPending,
	}

	got := GetReadyTasks(g, state)
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready list mismatch: got %v want %v", got, want)
	}
}

func TestScheduler_DiamondConvergence_WaitsForAllParents(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b", Deps: []string{"A"}},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c", Deps: []string{"A"}},
		{Name: "D", Inputs: []string{"d"}, Run: "run-d", Deps: []string{"B", "C"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskCompleted,
		"B": TaskPending,
		"C": TaskPending,
		"D": TaskPending,
	}
	got := GetReadyTasks(g, state)
	if !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("unexpected ready list after A completed: %v", got)
	}

	state["B"] = TaskCompleted
	got = GetReadyTasks(g, state)
	if !reflect.DeepEqual(got, []string{"C"}) {
		t.Fatalf("unexpected ready list after B completed: %v", got)
	}

	state["C"] = TaskCached
	got = GetReadyTasks(g, state)
	if !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("unexpected ready list after C cached: %v", got)
	}
}
