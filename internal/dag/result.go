package dag

import "zr/internal/fingerprint"

// GraphResult is the deterministic summary of a graph execution attempt:
// final per-node states plus the observed execution order (useful for
// determinism proofs and tests).
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of each node by name.
	FinalState ExecutionState

	// ExecutionOrder is the ordered list of tasks that were started
	// (transitioned to RUNNING).
	ExecutionOrder []string

	// Fingerprints records the deterministic per-node execution fingerprint.
	Fingerprints map[string]fingerprint.Fingerprint

	// Stdout/Stderr/ExitCode capture the node results (executed or replayed).
	Stdout   map[string][]byte
	Stderr   map[string][]byte
	ExitCode map[string]int
}
