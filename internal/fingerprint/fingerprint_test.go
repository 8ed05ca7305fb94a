package fingerprint

import "testing"

func TestCompute_OrderIndependence(t *testing.T) {
	in1 := Input{
		Cmd: "go build",
		Env: map[string]string{"A": "1", "B": "2"},
		Cwd: "/src",
		Inputs: []ResolvedInput{
			{Path: "b.go", Hash: [32]byte{2}},
			{Path: "a.go", Hash: [32]byte{1}},
		},
		DepFingerprints: []Fingerprint{{9}, {1}},
		PlatformTag:     "linux/amd64",
		ToolVersion:     "v1",
	}
	in2 := Input{
		Cmd: "go build",
		Env: map[string]string{"B": "2", "A": "1"},
		Cwd: "/src",
		Inputs: []ResolvedInput{
			{Path: "a.go", Hash: [32]byte{1}},
			{Path: "b.go", Hash: [32]byte{2}},
		},
		DepFingerprints: []Fingerprint{{1}, {9}},
		PlatformTag:     "linux/amd64",
		ToolVersion:     "v1",
	}

	fp1 := Compute(in1)
	fp2 := Compute(in2)
	if fp1 != fp2 {
		t.Fatalf("expected order-independent fingerprints to match, got %s vs %s", fp1, fp2)
	}
}

func TestCompute_ChangesWithCmd(t *testing.T) {
	base := Input{Cmd: "go build", ToolVersion: "v1", PlatformTag: "linux/amd64"}
	changed := base
	changed.Cmd = "go test"

	if Compute(base) == Compute(changed) {
		t.Fatal("expected different commands to produce different fingerprints")
	}
}

func TestCompute_ChangesWithPlatformAndToolVersion(t *testing.T) {
	base := Input{Cmd: "go build", ToolVersion: "v1", PlatformTag: "linux/amd64"}

	diffPlatform := base
	diffPlatform.PlatformTag = "darwin/arm64"
	if Compute(base) == Compute(diffPlatform) {
		t.Fatal("expected different platform tags to produce different fingerprints")
	}

	diffTool := base
	diffTool.ToolVersion = "v2"
	if Compute(base) == Compute(diffTool) {
		t.Fatal("expected different tool versions to produce different fingerprints")
	}
}

func TestFingerprint_StringAndShort(t *testing.T) {
	fp := Compute(Input{Cmd: "echo hi"})
	s := fp.String()
	if len(s) != 64 {
		t.Fatalf("expected 64-char hex string, got %d chars", len(s))
	}
	prefix, rest := fp.Short()
	if prefix+rest != s {
		t.Fatalf("Short() parts must concatenate back to String(): %q + %q != %q", prefix, rest, s)
	}
	if len(prefix) != 2 {
		t.Fatalf("expected 2-char shard prefix, got %q", prefix)
	}
}
