package taskrunner

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"zr/internal/zrerr"
)

// harvest collects the declared output paths (files or, recursively,
// directories) relative to baseDir into logical-path -> content pairs,
// sorted by path for determinism. A declared output that does not exist
// means the task failed to produce it.
func harvest(baseDir string, declaredOutputs []string) (map[string][]byte, error) {
	if len(declaredOutputs) == 0 {
		return nil, nil
	}

	var allPaths []string
	for _, output := range declaredOutputs {
		full := output
		if !filepath.IsAbs(output) {
			full = filepath.Join(baseDir, output)
		}
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, zrerr.Newf(zrerr.InputMissing, "declared output %q was not produced", output)
			}
			return nil, err
		}
		if info.IsDir() {
			err := filepath.WalkDir(full, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				allPaths = append(allPaths, path)
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			allPaths = append(allPaths, full)
		}
	}
	sort.Strings(allPaths)
	allPaths = dedupeSorted(allPaths)

	result := make(map[string][]byte, len(allPaths))
	for _, path := range allPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			rel = path
		}
		result[filepath.ToSlash(rel)] = content
	}
	return result, nil
}

func dedupeSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, p := range sorted[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

// restoreOutputs materialises cached outputs into the workspace atomically
// via temp-then-rename, skipping any file whose content already matches
// (idempotent restore).
func restoreOutputs(baseDir string, outputs map[string][]byte) (int, error) {
	restored := 0
	for logicalPath, content := range outputs {
		target := logicalPath
		if !filepath.IsAbs(logicalPath) {
			target = filepath.Join(baseDir, logicalPath)
		}
		target = filepath.FromSlash(target)

		if match, err := fileMatches(target, content); err == nil && match {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return restored, err
		}
		if err := atomicWriteFile(target, content, 0o644); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

func fileMatches(path string, content []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	want := sha256.Sum256(content)
	return hex.EncodeToString(h.Sum(nil)) == hex.EncodeToString(want[:]), nil
}

func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
