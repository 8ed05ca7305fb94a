package graphio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_ValidGraphBuildsTaskGraph(t *testing.T) {
	src := `{
		"tasks": [
			{"name": "build", "run": "make build"},
			{"name": "test", "run": "make test", "deps": ["build"]}
		]
	}`
	g, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(g.Nodes()) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(g.Nodes()))
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	src := `{"tasks": [{"name": "build", "run": "make", "bogus_field": 1}]}`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestParse_RejectsTrailingContent(t *testing.T) {
	src := `{"tasks": [{"name": "build", "run": "make"}]} {"extra": true}`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected an error for trailing JSON content")
	}
}

func TestParse_RejectsEmptyTaskList(t *testing.T) {
	if _, err := Parse([]byte(`{"tasks": []}`)); err == nil {
		t.Fatal("expected an error for an empty task list")
	}
}

func TestParse_RejectsInvalidTaskDefinition(t *testing.T) {
	src := `{"tasks": [{"name": "", "run": "make"}]}`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected an error for an invalid task definition")
	}
}

func TestParse_RejectsCycles(t *testing.T) {
	src := `{
		"tasks": [
			{"name": "a", "run": "x", "deps": ["b"]},
			{"name": "b", "run": "x", "deps": ["a"]}
		]
	}`
	if _, err := Parse([]byte(src)); err == nil {
		t.Fatal("expected an error for a cyclic graph")
	}
}

func TestLoad_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zr.tasks.json")
	src := `{"tasks": [{"name": "build", "run": "make"}]}`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Nodes()) != 1 {
		t.Fatalf("expected 1 node, got %d", len(g.Nodes()))
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
