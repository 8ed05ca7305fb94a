package dag

import "zr/internal/task"

// GraphHash is the deterministic identity of a TaskGraph.
//
// It is computed solely from task definition content and dependency structure.
// It MUST be stable across different insertion orders of tasks and edges.
type GraphHash string

// TaskDefHash is the deterministic identity of a task definition as used by
// the DAG model.
//
// This is intentionally distinct from a task's execution Fingerprint: DAG
// identity is computed from the declarative definition fields alone (deps
// excluded — dependency structure is captured separately by the edge set),
// so that reordering a task's dependency list without changing its own
// command/inputs/env doesn't perturb the graph hash.
type TaskDefHash string

// Edge represents a dependency relation: To depends on From.
//
// Semantics (from spec.md): a directed edge From -> To means To can only run after
// From completes successfully.
type Edge struct {
	From string
	To   string
}

// TaskNode is an immutable node in the TaskGraph.
//
// Name is an external identifier used for addressing edges and debugging.
// The graph hash primarily derives from the task definition content and the
// canonicalized dependency structure.
type TaskNode struct {
	Name           string
	Task           task.Task
	DefinitionHash TaskDefHash
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the graph's canonical ordering.
func (n *TaskNode) CanonicalIndex() int { return n.canonicalIndex }

// String returns the string representation of the GraphHash.
func (h GraphHash) String() string { return string(h) }

// String returns the string representation of the TaskDefHash.
func (h TaskDefHash) String() string { return string(h) }
