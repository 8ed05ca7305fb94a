package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"zr/internal/zrerr"
)

// ResolvedInput is one expanded, content-hashed input file.
type ResolvedInput struct {
	Path string
	Hash [32]byte
}

// Resolver expands declared input patterns to a deterministic, sorted list
// of content hashes, memoising file hashes within one run by
// (path, mtime_ns, size) so repeated lookups of an unchanged file avoid a
// second read.
type Resolver struct {
	BaseDir string

	mu    sync.Mutex
	cache map[string]cachedHash
}

type cachedHash struct {
	mtimeNs int64
	size    int64
	hash    [32]byte
}

// NewResolver constructs a Resolver rooted at baseDir.
func NewResolver(baseDir string) *Resolver {
	return &Resolver{BaseDir: baseDir, cache: make(map[string]cachedHash)}
}

// Resolve expands patterns into a sorted, deduplicated list of content
// hashes. A pattern that expands to no files and is not itself an existing
// literal path is reported as InputMissing.
func (r *Resolver) Resolve(patterns []string) ([]ResolvedInput, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	pathSet := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded, err := r.expandPattern(pattern)
		if err != nil {
			return nil, err
		}
		if len(expanded) == 0 {
			return nil, zrerr.Newf(zrerr.InputMissing, "no files matched input pattern %q", pattern)
		}
		for _, p := range expanded {
			pathSet[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]ResolvedInput, 0, len(paths))
	for _, p := range paths {
		h, err := r.hashFile(p)
		if err != nil {
			return nil, zrerr.Newf(zrerr.InputMissing, "reading input %q: %v", p, err)
		}
		out = append(out, ResolvedInput{Path: p, Hash: h})
	}
	return out, nil
}

func (r *Resolver) hashFile(path string) ([32]byte, error) {
	osPath := filepath.FromSlash(path)
	info, err := os.Stat(osPath)
	if err != nil {
		return [32]byte{}, err
	}
	mtimeNs := info.ModTime().UnixNano()
	size := info.Size()

	r.mu.Lock()
	if c, ok := r.cache[path]; ok && c.mtimeNs == mtimeNs && c.size == size {
		r.mu.Unlock()
		return c.hash, nil
	}
	r.mu.Unlock()

	content, err := os.ReadFile(osPath)
	if err != nil {
		return [32]byte{}, err
	}
	h := sha256.Sum256(content)

	r.mu.Lock()
	r.cache[path] = cachedHash{mtimeNs: mtimeNs, size: size, hash: h}
	r.mu.Unlock()
	return h, nil
}

func (r *Resolver) expandPattern(pattern string) ([]string, error) {
	fullPattern := pattern
	if !filepath.IsAbs(pattern) {
		fullPattern = filepath.Join(r.BaseDir, pattern)
	}

	matches, err := filepath.Glob(fullPattern)
	if err != nil {
		return nil, zrerr.Newf(zrerr.InputMissing, "invalid glob pattern %q: %v", pattern, err)
	}

	if len(matches) == 0 && !containsGlobChar(pattern) {
		if _, err := os.Stat(fullPattern); err == nil {
			matches = []string{fullPattern}
		}
	}

	normalized := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		normalized = append(normalized, filepath.ToSlash(match))
	}
	return normalized, nil
}

func containsGlobChar(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', ']':
			return true
		}
	}
	return false
}
