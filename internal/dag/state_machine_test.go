package dag

import (
	"reflect"
	"testing"

	"zr/internal/task"
)

func TestStateMachine_Transitions_ValidAndInvalid(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{{Name: "A", Inputs: []string{"a"}, Run: "run-a"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = g

	state := ExecutionState{"A": TaskPending}

	if err := Transition(state, "A", TaskPending, TaskRunning); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}
	if err := Transition(state, "A", TaskRunning, TaskCompleted); err != nil {
		t.Fatalf("expected valid transition, got %v", err)
	}

	if err := Transition(state, "A", TaskCompleted, TaskRunning); err == nil {
		t.Fatalf("expected error")
	}

	state["A"] = TaskFailed
	if err := Transition(state, "A", TaskFailed, TaskRunning); err == nil {
		t.Fatalf("expected error")
	}

	state["A"] = TaskSkipped
	if err := Transition(state, "A", TaskSkipped, TaskRunning); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFailurePropagation_CascadeFailure_MarksDownstreamSkipped(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b", Deps: []string{"A"}},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c", Deps: []string{"B"}},
		{Name: "D", Inputs: []string{"d"}, Run: "run-d"}, // independent
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskRunning,
		"B": TaskPending,
		"C": TaskPending,
		"D": TaskPending,
	}

	if err := FailAndPropagate(g, state, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state["A"] != TaskFailed {
		t.Fatalf("expected A failed, got %s", state["A"])
	}
	if state["B"] != TaskSkipped {
		t.Fatalf("expected B skipped, got %s", state["B"])
	}
	if state["C"] != TaskSkipped {
		t.Fatalf("expected C skipped, got %s", state["C"])
	}
	if state["D"] != TaskPending {
		t.Fatalf("expected D unchanged pending, got %s", state["D"])
	}

	got := GetReadyTasks(g, state)
	want := []string{"D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ready mismatch: got %v want %v", got, want)
	}
}

func TestFailurePropagation_Diamond_DownstreamSkippedNotFailed(t *testing.T) {
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
		"A": TaskRunning,
		"B": TaskPending,
		"C": TaskPending,
		"D": TaskPending,
	}

	if err := FailAndPropagate(g, state, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state["B"] != TaskSkipped || state["C"] != TaskSkipped || state["D"] != TaskSkipped {
		t.Fatalf("expected B,C,D skipped; got B=%s C=%s D=%s", state["B"], state["C"], state["D"])
	}
}

func TestFailurePropagation_DetectsRunningDownstreamInvariantViolation(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b", Deps: []string{"A"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := ExecutionState{
		"A": TaskRunning,
		"B": TaskRunning,
	}

	if err := FailAndPropagate(g, state, "A"); err == nil {
		t.Fatalf("expected error")
	}
}
