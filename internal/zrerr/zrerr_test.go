package zrerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	base := New(InputMissing, "missing file")
	wrapped := fmt.Errorf("while resolving: %w", base)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatal("expected KindOf to recognize the wrapped *Error")
	}
	if kind != InputMissing {
		t.Fatalf("expected InputMissing, got %s", kind)
	}
}

func TestKindOf_PlainErrorIsUnrecognized(t *testing.T) {
	if _, ok := KindOf(errors.New("boom")); ok {
		t.Fatal("expected KindOf to reject a plain error")
	}
}

func TestExitCode_MapsEachKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{New(CycleDetected, "a -> b -> a"), 2},
		{New(Cancelled, "user cancelled"), 130},
		{New(ConfigError, "bad config"), 1},
		{New(UnknownTask, "nope"), 1},
		{New(UnknownDependency, "nope"), 1},
		{New(Internal, "panic"), 70},
		{New(TimedOut, "too slow"), 124},
		{New(NonZeroExit, "exit 5"), 1},
		{errors.New("unclassified"), 70},
	}
	for _, c := range cases {
		if got := ExitCode(c.err, 0); got != c.want {
			t.Errorf("ExitCode(%v, 0) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestExitCode_NonZeroExitPrefersChildCode(t *testing.T) {
	if got := ExitCode(New(NonZeroExit, "exit 5"), 5); got != 5 {
		t.Fatalf("expected child exit code 5, got %d", got)
	}
}

func TestErrorString_IncludesTaskAndMessage(t *testing.T) {
	err := ForTask(SpawnError, "build", "sh: not found", nil)
	want := `SpawnError: task "build": sh: not found`
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestWrap_NilCauseReturnsNil(t *testing.T) {
	if Wrap(CacheIoError, nil) != nil {
		t.Fatal("expected Wrap(kind, nil) to return nil")
	}
}
