package dag

import (
	"testing"

	"zr/internal/task"
	"zr/internal/zrerr"
)

func TestGraphConstruction_SingleNode(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{{Name: "A", Inputs: []string{"in.txt"}, Run: "echo hi"}})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if g == nil {
		t.Fatalf("expected graph")
	}
	if g.Hash() == "" {
		t.Fatalf("expected non-empty graph hash")
	}
	if got := g.TopologicalOrder(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected topo order: %v", got)
	}
}

func TestGraphConstruction_MultipleIndependentNodes(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b"},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	order := g.TopologicalOrder()
	if len(order) != 3 {
		t.Fatalf("expected 3 nodes, got %v", order)
	}
	seen := map[string]bool{}
	for _, n := range order {
		seen[n] = true
	}
	for _, n := range []string{"A", "B", "C"} {
		if !seen[n] {
			t.Fatalf("missing node %q in topo order: %v", n, order)
		}
	}
}

func TestGraphConstruction_DependencyChain(t *testing.T) {
	g, err := NewTaskGraph([]task.Task{
		{Name: "A", Inputs: []string{"a"}, Run: "run-a"},
		{Name: "B", Inputs: []string{"b"}, Run: "run-b", Deps: []string{"A"}},
		{Name: "C", Inputs: []string{"c"}, Run: "run-c", Deps: []string{"B"}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	order := g.TopologicalOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if !(pos["A"] < pos["B"] && pos["B"] < pos["C"]) {
		t.Fatalf("expected A < B < C, got %v", order)
	}
}

func TestGraphConstruction_DiamondDependency(t *testing.T) {
	// a->b, a->c, d->[b,c]
	g, err := NewTaskGraph([]task.Task{
		{Name: "a", Run: "run-a"},
		{Name: "b", Run: "run-b", Deps: []string{"a"}},
		{Name: "c", Run: "run-c", Deps: []string{"a"}},
		{Name: "d", Run: "run-d", Deps: []string{"b", "c"}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	order := g.TopologicalOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if !(pos["a"] < pos["b"] && pos["a"] < pos["c"]) {
		t.Fatalf("expected a before b and c, got %v", order)
	}
	if !(pos["b"] < pos["d"] && pos["c"] < pos["d"]) {
		t.Fatalf("expected d after b and c, got %v", order)
	}

	edges := g.Edges()
	countToD := 0
	for _, e := range edges {
		if e.To == "d" {
			countToD++
		}
	}
	if countToD != 2 {
		t.Fatalf("expected d to have 2 incoming edges, got %d", countToD)
	}
}

func TestGraphHash_InvariantToInsertionOrder(t *testing.T) {
	tasks1 := []task.Task{
		{Name: "A", Inputs: []string{"b", "a"}, Run: "echo A", Env: map[string]string{"Z": "9", "A": "1"}},
		{Name: "B", Inputs: []string{"x"}, Run: "echo B", Deps: []string{"A"}},
		{Name: "C", Inputs: []string{"y"}, Run: "echo C", Deps: []string{"A"}},
	}
	g1, err := NewTaskGraph(tasks1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks2 := []task.Task{
		{Name: "C", Inputs: []string{"y"}, Run: "echo C", Deps: []string{"A"}},
		{Name: "B", Inputs: []string{"x"}, Run: "echo B", Deps: []string{"A"}},
		{Name: "A", Inputs: []string{"a", "b"}, Run: "echo A", Env: map[string]string{"A": "1", "Z": "9"}},
	}
	g2, err := NewTaskGraph(tasks2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g1.Hash() != g2.Hash() {
		t.Fatalf("expected equal graph hashes, got %s vs %s", g1.Hash(), g2.Hash())
	}
}

func TestCycleDetection_SelfLoopRejected(t *testing.T) {
	_, err := NewTaskGraph([]task.Task{{Name: "A", Run: "run-a", Deps: []string{"A"}}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if kind, ok := zrerr.KindOf(err); !ok || kind != zrerr.ConfigError {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCycleDetection_IndirectCycleRejected(t *testing.T) {
	_, err := NewTaskGraph([]task.Task{
		{Name: "A", Run: "run-a", Deps: []string{"C"}},
		{Name: "B", Run: "run-b", Deps: []string{"A"}},
		{Name: "C", Run: "run-c", Deps: []string{"B"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if kind, ok := zrerr.KindOf(err); !ok || kind != zrerr.CycleDetected {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestUnknownDependencyRejected(t *testing.T) {
	_, err := NewTaskGraph([]task.Task{
		{Name: "A", Run: "run-a", Deps: []string{"missing"}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if kind, ok := zrerr.KindOf(err); !ok || kind != zrerr.UnknownDependency {
		t.Fatalf("expected UnknownDependency, got %v", err)
	}
}
