// Package store reads page content by request path from a confined source.
//
// Every [Store] resolves a slash-separated request path against its own
// root, substitutes the directory index file where the path names a
// directory, and returns the bytes. All failures collapse to [ErrNotFound]:
// a missing file, a permission problem and a path that escapes the root look
// the same to the caller, so requesters cannot probe the tree.
//
// Variants:
//   - [FileStore] reads a directory on local disk.
//   - [EmbedStore] reads an fs.FS such as an embed.FS packaged into the binary.
//   - [MemoryStore] reads a fixed map, mostly for tests.
//   - [S3Store] reads objects under a bucket prefix.
//
// [Fallback] composes stores in priority order, and [Instrument] wraps any
// store with tracing and read metrics. Stores are immutable after
// construction and safe for concurrent reads.
package store
