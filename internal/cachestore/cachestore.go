// Package cachestore implements the content-addressed result cache
// (spec §4.2): fingerprint-keyed manifests plus content-addressed blobs,
// with an OS-level advisory lock enforcing at-most-one concurrent builder
// per fingerprint system-wide.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"zr/internal/fingerprint"
	"zr/internal/zrerr"
)

// ErrContended is returned by BeginWrite when another process or thread
// already holds the build slot for a fingerprint.
var ErrContended = errors.New("cachestore: build slot contended")

// OutputBlob describes one materialised output file within an entry.
type OutputBlob struct {
	LogicalPath string `json:"logical_path"`
	BlobSha     string `json:"blob_sha"`
	Mode        uint32 `json:"mode"`
}

// Manifest is the compact, durable record describing one cache entry.
type Manifest struct {
	Version          int          `json:"version"`
	Fingerprint      string       `json:"fingerprint"`
	CreatedAt        time.Time    `json:"created_at"`
	ExitCode         int          `json:"exit_code"`
	StdoutSha        string       `json:"stdout_sha"`
	StderrSha        string       `json:"stderr_sha"`
	Outputs          []OutputBlob `json:"outputs"`
	TruncatedStdout  bool         `json:"truncated_stdout"`
	TruncatedStderr  bool         `json:"truncated_stderr"`
}

// Entry is a fully-materialised cache hit: the manifest plus the blob
// bytes needed to replay stdout/stderr and restore outputs.
type Entry struct {
	Manifest Manifest
	Stdout   []byte
	Stderr   []byte
	// Blobs maps blob sha -> content, covering Stdout, Stderr and every
	// OutputBlob referenced by the manifest.
	Blobs map[string][]byte
}

// WriteHandle represents an acquired, exclusive build slot for one
// fingerprint. Callers must call Commit or Release exactly once.
type WriteHandle struct {
	store *Store
	fp    fingerprint.Fingerprint
	lock  *os.File
}

// Store is a filesystem-backed CacheStore rooted at Dir (conventionally
// "$HOME/.zr/cache").
type Store struct {
	Dir string

	mu         sync.Mutex // serialises Stats scans; no stats file is kept
}

// New constructs a Store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) entryDir(fp fingerprint.Fingerprint) string {
	hi, lo := fp.Short()
	return filepath.Join(s.Dir, hi, lo)
}

// Lookup returns a fully-materialised entry for fp, or (nil, nil) on a
// clean miss. Safe for concurrent readers.
func (s *Store) Lookup(fp fingerprint.Fingerprint) (*Entry, error) {
	dir := s.entryDir(fp)
	manifestPath := filepath.Join(dir, "manifest")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, zrerr.Wrap(zrerr.CacheIoError, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// A manifest that fails to parse is treated as a miss rather than
		// a hard error: the entry is corrupt and will be recreated by the
		// next successful build.
		return nil, nil
	}

	blobs := make(map[string][]byte)
	blobsDir := filepath.Join(dir, "blobs")
	needed := make([]string, 0, len(m.Outputs)+2)
	if m.StdoutSha != "" {
		needed = append(needed, m.StdoutSha)
	}
	if m.StderrSha != "" {
		needed = append(needed, m.StderrSha)
	}
	for _, o := range m.Outputs {
		needed = append(needed, o.BlobSha)
	}
	for _, sha := range needed {
		if _, ok := blobs[sha]; ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(blobsDir, sha))
		if err != nil {
			// A manifest referencing a missing blob violates the
			// "lookup never returns an entry whose blobs are missing"
			// invariant; surface it as a miss rather than propagate
			// the corruption.
			return nil, nil
		}
		blobs[sha] = content
	}

	entry := &Entry{Manifest: m, Blobs: blobs}
	if m.StdoutSha != "" {
		entry.Stdout = blobs[m.StdoutSha]
	}
	if m.StderrSha != "" {
		entry.Stderr = blobs[m.StderrSha]
	}
	return entry, nil
}

// BeginWrite acquires the exclusive build slot for fp via a non-blocking
// flock on the entry's .lock file. Returns ErrContended if another holder
// is active; the caller is expected to retry with bounded exponential
// back-off (10ms -> 1s, jittered), re-checking Lookup between attempts.
func (s *Store) BeginWrite(fp fingerprint.Fingerprint) (*WriteHandle, error) {
	dir := s.entryDir(fp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, zrerr.Wrap(zrerr.CacheIoError, err)
	}
	lockPath := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, zrerr.Wrap(zrerr.CacheIoError, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrContended
		}
		return nil, zrerr.Wrap(zrerr.CacheIoError, err)
	}

	return &WriteHandle{store: s, fp: fp, lock: f}, nil
}

// Backoff returns the jittered bounded exponential back-off delay for
// BeginWrite retry attempt n (0-indexed): the step d doubles from 10ms up
// to a 1s cap, and the returned delay is jittered within [d/2, d).
func Backoff(attempt int) time.Duration {
	base := 10 * time.Millisecond
	max := time.Second
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

// Release drops the build slot without committing an entry (e.g. on
// cancellation); a subsequent BeginWrite for the same fingerprint may
// succeed immediately.
func (h *WriteHandle) Release() error {
	if h == nil || h.lock == nil {
		return nil
	}
	err := unix.Flock(int(h.lock.Fd()), unix.LOCK_UN)
	cerr := h.lock.Close()
	if err != nil {
		return err
	}
	return cerr
}

// Commit atomically writes manifest, stdout, stderr and output blobs for
// the held fingerprint, then releases the build slot. Blobs and the
// manifest are first written under a .tmp-* directory inside the entry;
// the blobs are then renamed into the entry's blobs/ directory and the
// manifest is renamed into place last, so a reader that sees the manifest
// also sees every blob it references.
func (h *WriteHandle) Commit(m Manifest, stdout, stderr []byte, outputs map[string][]byte) error {
	if h == nil {
		return errors.New("cachestore: commit on nil handle")
	}
	defer h.Release()

	dir := h.store.entryDir(h.fp)
	tmpDir, err := os.MkdirTemp(dir, ".tmp-")
	if err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	blobsDir := filepath.Join(tmpDir, "blobs")
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}

	writeBlob := func(content []byte) (string, error) {
		sum := sha256.Sum256(content)
		sha := hex.EncodeToString(sum[:])
		if err := writeFileAtomic(filepath.Join(blobsDir, sha), content, 0o644); err != nil {
			return "", err
		}
		return sha, nil
	}

	m.Version = 1
	m.Fingerprint = h.fp.String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if len(stdout) > 0 {
		sha, err := writeBlob(stdout)
		if err != nil {
			return zrerr.Wrap(zrerr.CacheIoError, err)
		}
		m.StdoutSha = sha
	}
	if len(stderr) > 0 {
		sha, err := writeBlob(stderr)
		if err != nil {
			return zrerr.Wrap(zrerr.CacheIoError, err)
		}
		m.StderrSha = sha
	}

	outBlobs := make([]OutputBlob, 0, len(outputs))
	for _, o := range m.Outputs {
		content, ok := outputs[o.LogicalPath]
		if !ok {
			continue
		}
		sha, err := writeBlob(content)
		if err != nil {
			return zrerr.Wrap(zrerr.CacheIoError, err)
		}
		o.BlobSha = sha
		outBlobs = append(outBlobs, o)
	}
	m.Outputs = outBlobs

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}
	if err := writeFileAtomic(filepath.Join(tmpDir, "manifest"), data, 0o644); err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}

	// Move the blobs into the (already-locked) entry dir first and the
	// manifest last, leaving .lock untouched so the holder can still
	// release it after the renames land.
	entries, err := os.ReadDir(blobsDir)
	if err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}
	for _, e := range entries {
		src := filepath.Join(blobsDir, e.Name())
		dst := filepath.Join(dir, "blobs", e.Name())
		if err := os.Rename(src, dst); err != nil {
			return zrerr.Wrap(zrerr.CacheIoError, err)
		}
	}
	if err := os.Rename(filepath.Join(tmpDir, "manifest"), filepath.Join(dir, "manifest")); err != nil {
		return zrerr.Wrap(zrerr.CacheIoError, err)
	}
	committed = true
	return nil
}

// ClearAll removes every entry under the store and returns the count
// removed. Safe only when no writers are active; the caller (typically the
// `cache clear` command) is responsible for that.
func (s *Store) ClearAll() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, zrerr.Wrap(zrerr.CacheIoError, err)
	}
	count := 0
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.Dir, shard.Name())
		inner, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		count += len(inner)
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return 0, zrerr.Wrap(zrerr.CacheIoError, err)
	}
	return count, nil
}

// Stats reports the entry count and total on-disk size.
type Stats struct {
	Count     int
	SizeBytes int64
}

func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	shards, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, zrerr.Wrap(zrerr.CacheIoError, err)
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(s.Dir, shard.Name())
		inner, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, entry := range inner {
			st.Count++
			entryPath := filepath.Join(shardPath, entry.Name())
			_ = filepath.Walk(entryPath, func(_ string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return nil
				}
				st.SizeBytes += info.Size()
				return nil
			})
		}
	}
	return st, nil
}

// SweepPartial removes leftover .tmp-* directories from entries that
// crashed mid-commit. Intended to run once on startup.
func SweepPartial(dir string) error {
	shards, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardPath := filepath.Join(dir, shard.Name())
		inner, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, entry := range inner {
			entryPath := filepath.Join(shardPath, entry.Name())
			leftovers, err := filepath.Glob(filepath.Join(entryPath, ".tmp-*"))
			if err != nil {
				continue
			}
			for _, l := range leftovers {
				_ = os.RemoveAll(l)
			}
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
