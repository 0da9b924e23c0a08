// Package pathutil maps request paths onto a confined directory tree.
//
// [Resolve] joins a root and a slash-separated request path into a candidate
// file path, substituting the directory index file where the request names a
// directory. [IsWithin] then decides whether that candidate, once symlinks and
// relative segments are resolved, still lives under the root. Callers must
// check the resolved candidate, never the raw request path.
package pathutil
