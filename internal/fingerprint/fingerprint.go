// Package fingerprint computes the stable content hash that identifies a
// task invocation (spec §4.1). The hash is independent of map/iteration
// order and tolerant of filesystem path ordering; it changes if and only
// if one of the hashed fields changes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Fingerprint is the 256-bit identifier of a task invocation.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the first two hex characters (one byte) and the rest of
// the hex string, used as the cache's directory
// shard key ("<fp[0:2]>/<fp[2:]>").
func (f Fingerprint) Short() (string, string) {
	s := f.String()
	return s[:2], s[2:]
}

// Input is the tuple fingerprinted for one task. PlatformTag and
// ToolVersion are supplied by the caller (the runner) so the hash changes
// across incompatible binaries/platforms even when nothing else does.
type Input struct {
	Cmd          string
	Env          map[string]string
	Cwd          string
	Inputs       []ResolvedInput
	DepFingerprints []Fingerprint
	PlatformTag  string
	ToolVersion  string
}

// Compute hashes the canonicalised tuple:
// (cmd, sorted env, cwd, sorted content hashes of resolved inputs, sorted
// dep fingerprints, tool version, platform tag).
func Compute(in Input) Fingerprint {
	h := sha256.New()

	writeLenPrefixed(h, []byte(in.Cmd))
	writeLenPrefixed(h, []byte(in.Cwd))

	envKeys := make([]string, 0, len(in.Env))
	for k := range in.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	writeUint64(h, uint64(len(envKeys)))
	for _, k := range envKeys {
		writeLenPrefixed(h, []byte(k))
		writeLenPrefixed(h, []byte(in.Env[k]))
	}

	inputs := make([]ResolvedInput, len(in.Inputs))
	copy(inputs, in.Inputs)
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })
	writeUint64(h, uint64(len(inputs)))
	for _, ri := range inputs {
		writeLenPrefixed(h, []byte(ri.Path))
		_, _ = h.Write(ri.Hash[:])
	}

	deps := make([]Fingerprint, len(in.DepFingerprints))
	copy(deps, in.DepFingerprints)
	sort.Slice(deps, func(i, j int) bool { return deps[i].String() < deps[j].String() })
	writeUint64(h, uint64(len(deps)))
	for _, d := range deps {
		_, _ = h.Write(d[:])
	}

	writeLenPrefixed(h, []byte(in.ToolVersion))
	writeLenPrefixed(h, []byte(in.PlatformTag))

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

func writeLenPrefixed(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

func writeUint64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, _ = h.Write(b[:])
}
