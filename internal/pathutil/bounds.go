package pathutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// IsWithin reports whether candidate, after canonicalization, is root itself
// or lies somewhere below it. Both paths are made absolute and have symlinks
// resolved before comparison; a candidate that does not exist yet is resolved
// through its longest existing ancestor.
func IsWithin(root, candidate string) bool {
	_, ok := Within(root, candidate)
	return ok
}

// Within is IsWithin that also returns candidate relative to root, both in
// canonical form. The relative path contains no symlinks and no ".."
// segments, so it can be opened below a handle on root as is.
func Within(root, candidate string) (string, bool) {
	r, err := canonical(root)
	if err != nil {
		return "", false
	}
	p, err := canonical(candidate)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(r, p)
	if err != nil || filepath.IsAbs(rel) {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// canonical returns an absolute, symlink-free form of p. Missing trailing
// segments are carried over verbatim onto the resolved ancestor.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}
