// Package historystore implements the append-only execution history log
// (spec §4.3) plus the per-invocation Run record folded in from the
// teacher's recovery/state bookkeeping (see SPEC_FULL.md, Supplemented
// Features).
package historystore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"zr/internal/zrerr"
)

// Record is one line of the history log.
type Record struct {
	Ts         time.Time `json:"ts"`
	RunID      string    `json:"run_id"`
	Task       string    `json:"task"`
	Fp         string    `json:"fp"`
	DurationNs int64     `json:"duration_ns"`
	ExitCode   int       `json:"exit_code"`
	CacheHit   bool      `json:"cache_hit"`
	ErrorKind  string    `json:"error_kind,omitempty"`

	// StartedAtNs and byte counts are carried for analytics even though
	// they are not part of the filterable surface.
	StartedAtNs int64 `json:"started_at_ns"`
	StdoutBytes int   `json:"stdout_bytes"`
	StderrBytes int   `json:"stderr_bytes"`
}

// Run is the durable per-invocation context each history record
// implicitly belongs to: one record per `zr run` invocation (`zr bench`
// saves none).
type Run struct {
	RunID     string    `json:"run_id"`
	GraphHash string    `json:"graph_hash"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
}

// Store is a filesystem-backed HistoryStore rooted at dir (conventionally
// "$HOME/.zr").
type Store struct {
	Dir string
}

// New constructs a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) logPath() string { return filepath.Join(s.Dir, "history.log") }

// Append writes one record as a single NDJSON line, fsyncing at the record
// boundary so a reader never observes a half-written record. Before every
// append, TruncateCorruptTail is called so a partial
// final line left by a prior crash is dropped rather than propagated.
func (s *Store) Append(rec Record) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	if err := s.TruncateCorruptTail(); err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	return f.Sync()
}

// TruncateCorruptTail drops a partial final line (left by a crash between
// write and fsync) from the log, so the next append starts from a clean
// record boundary.
func (s *Store) TruncateCorruptTail() error {
	f, err := os.OpenFile(s.logPath(), os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var validEnd int64
	var offset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		offset += int64(len(line)) + 1
		var rec Record
		if json.Unmarshal(line, &rec) == nil {
			validEnd = offset
		} else {
			break
		}
	}
	if validEnd < info.Size() {
		return f.Truncate(validEnd)
	}
	return nil
}

// Filter narrows a Query.
type Filter struct {
	Since  time.Duration // zero means no lower bound
	Status string        // "", "success", "failed"
	Task   string        // "" means any task
	Limit  int           // 0 means unlimited
}

// Query returns matching records newest-first, scanning the log backwards
// with a 64 KiB tail window so large logs don't need a full linear scan
// when Limit is small.
func (s *Store) Query(filter Filter) ([]Record, error) {
	f, err := os.Open(s.logPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zrerr.Wrap(zrerr.HistoryIoError, err)
	}

	const window = 64 * 1024
	var cutoff time.Time
	if filter.Since > 0 {
		cutoff = time.Now().Add(-filter.Since)
	}

	var out []Record
	end := info.Size()
	var carry []byte
	for end > 0 {
		start := end - window
		if start < 0 {
			start = 0
		}
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil {
			return nil, zrerr.Wrap(zrerr.HistoryIoError, err)
		}
		chunk := append(buf, carry...)
		lines := bytes.Split(chunk, []byte("\n"))
		// The first element may be a partial line continued from an
		// earlier (smaller-offset) window; keep it as carry unless we're
		// at the start of the file.
		if start > 0 {
			carry = lines[0]
			lines = lines[1:]
		} else {
			carry = nil
		}
		for i := len(lines) - 1; i >= 0; i-- {
			line := bytes.TrimSpace(lines[i])
			if len(line) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			if !matches(rec, filter, cutoff) {
				continue
			}
			out = append(out, rec)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
		end = start
	}
	return out, nil
}

func matches(rec Record, filter Filter, cutoff time.Time) bool {
	if !cutoff.IsZero() && rec.Ts.Before(cutoff) {
		return false
	}
	if filter.Task != "" && rec.Task != filter.Task {
		return false
	}
	switch strings.ToLower(filter.Status) {
	case "", "any":
	case "success":
		if rec.ExitCode != 0 {
			return false
		}
	case "failed":
		if rec.ExitCode == 0 {
			return false
		}
	}
	return true
}

// SaveRun persists a Run record atomically under
// "<dir>/runs/<run-id>/run.json".
func (s *Store) SaveRun(run Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("historystore: run id is required")
	}
	dir := filepath.Join(s.Dir, "runs", run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	if err := writeFileAtomicDurable(filepath.Join(dir, "run.json"), data); err != nil {
		return zrerr.Wrap(zrerr.HistoryIoError, err)
	}
	return nil
}

// LoadRun reads back a previously saved Run.
func (s *Store) LoadRun(runID string) (Run, error) {
	path := filepath.Join(s.Dir, "runs", runID, "run.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, err
	}
	var run Run
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&run); err != nil {
		return Run{}, fmt.Errorf("parsing run.json: %w", err)
	}
	return run, nil
}

// ListRunIDs returns every known run id, sorted.
func (s *Store) ListRunIDs() ([]string, error) {
	dir := filepath.Join(s.Dir, "runs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func writeFileAtomicDurable(path string, data []byte) error {
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
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil // best-effort parent fsync
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}
