// Package graphio loads a task graph definition from disk.
//
// The in-scope format is JSON: a single object with a "tasks" array; a
// TOML frontend is out of scope (SPEC_FULL.md, Ambient Stack: Configuration).
package graphio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"zr/internal/dag"
	"zr/internal/task"
)

type graphFile struct {
	Tasks []task.Task `json:"tasks"`
}

// Load reads and parses the graph definition at path.
//
// The loader is deterministic: it disallows unknown fields and rejects
// trailing content, so two readers never silently diverge on the same
// file, and does not consult environment variables.
func Load(path string) (*dag.TaskGraph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return Parse(b)
}

// Parse decodes graph JSON from raw bytes, applying the same strictness
// rules as Load.
func Parse(b []byte) (*dag.TaskGraph, error) {
	var gf graphFile
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&gf); err != nil {
		return nil, fmt.Errorf("parse graph json: %w", err)
	}
	// Reject trailing content, including a second top-level JSON value.
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse graph json: trailing data")
		}
		return nil, fmt.Errorf("parse graph json: %w", err)
	}
	if len(gf.Tasks) == 0 {
		return nil, fmt.Errorf("parse graph json: no tasks")
	}
	for _, t := range gf.Tasks {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("parse graph json: %w", err)
		}
	}
	return dag.NewTaskGraph(gf.Tasks)
}
