package control

import "testing"

func TestCancel_LatchesAndStaysTrue(t *testing.T) {
	h := New()
	if h.Cancelled() {
		t.Fatal("expected a fresh handle to be uncancelled")
	}
	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("expected Cancelled() to report true after Cancel()")
	}
	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("expected Cancel() to be idempotent")
	}
}

func TestRequestPauseAndResume_AreMutuallyExclusive(t *testing.T) {
	h := New()
	h.RequestPause()
	if !h.PausePending() {
		t.Fatal("expected PausePending after RequestPause")
	}
	if h.ResumePending() {
		t.Fatal("expected ResumePending to be false after RequestPause")
	}

	h.RequestResume()
	if !h.ResumePending() {
		t.Fatal("expected ResumePending after RequestResume")
	}
	if h.PausePending() {
		t.Fatal("expected PausePending to be cleared after RequestResume")
	}
}

func TestAckPauseAndAckResume_ClearPendingFlags(t *testing.T) {
	h := New()
	h.RequestPause()
	h.AckPause()
	if h.PausePending() {
		t.Fatal("expected AckPause to clear the pending flag")
	}

	h.RequestResume()
	h.AckResume()
	if h.ResumePending() {
		t.Fatal("expected AckResume to clear the pending flag")
	}
}

func TestFinish_LatchesTerminalState(t *testing.T) {
	h := New()
	if h.Finished() {
		t.Fatal("expected a fresh handle to not be finished")
	}
	h.Finish()
	if !h.Finished() {
		t.Fatal("expected Finished() to report true after Finish()")
	}
}

func TestSetPID_RoundTrips(t *testing.T) {
	h := New()
	if h.PID() != 0 {
		t.Fatal("expected a fresh handle to report PID 0")
	}
	h.SetPID(4242)
	if h.PID() != 4242 {
		t.Fatalf("PID() = %d, want 4242", h.PID())
	}
}
