package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"zr/internal/scheduler"
)

func TestSortedResultNames_IsDeterministic(t *testing.T) {
	results := map[string]scheduler.TaskResult{
		"c": {}, "a": {}, "b": {},
	}
	got := sortedResultNames(results)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPrintRunResultJSON_IncludesEveryTask(t *testing.T) {
	summary := scheduler.Summary{
		RunID:    "run-1",
		ExitCode: 1,
		Results: map[string]scheduler.TaskResult{
			"build": {ExitCode: 0, FromCache: true},
			"test":  {ExitCode: 1},
		},
	}
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printRunResultJSON(cmd, summary)

	out := buf.String()
	if !strings.Contains(out, `"task": "build"`) || !strings.Contains(out, `"task": "test"`) {
		t.Fatalf("expected both tasks in JSON output, got: %s", out)
	}
	if !strings.Contains(out, `"run_id": "run-1"`) {
		t.Fatalf("expected run_id in output, got: %s", out)
	}
}

func TestPrintRunResultText_RendersTable(t *testing.T) {
	summary := scheduler.Summary{
		Results: map[string]scheduler.TaskResult{
			"build": {ExitCode: 0, FromCache: true},
		},
	}
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printRunResultText(cmd, summary)

	out := buf.String()
	if !strings.Contains(out, "build") || !strings.Contains(out, "ok") || !strings.Contains(out, "hit") {
		t.Fatalf("expected rendered table to mention task/status/cache, got: %s", out)
	}
}
