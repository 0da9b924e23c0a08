package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultIndexFile is substituted when a request names a directory.
const DefaultIndexFile = "index.html"

// Resolve joins root and requestPath into a candidate file path.
//
// Leading slashes are stripped so "/a/b" and "a/b" resolve the same way.
// When the stripped path is empty, or the joined path is an existing
// directory, index is appended as the final segment. The returned path is
// not checked for existence or containment.
func Resolve(root, requestPath, index string) string {
	rel := strings.TrimLeft(requestPath, "/")
	p := filepath.Join(root, filepath.FromSlash(rel))
	if rel == "" || isDir(p) {
		p = filepath.Join(p, index)
	}
	return p
}

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
