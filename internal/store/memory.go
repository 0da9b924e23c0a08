package store

import (
	"bytes"
	"context"
	"maps"
)

// MemoryStore serves a fixed set of documents keyed by normalized path
// ("a/b.html", no leading slash).
type MemoryStore struct {
	docs  map[string][]byte
	index string
}

// NewMemoryStore copies docs, later changes to the map are not seen.
func NewMemoryStore(docs map[string][]byte, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{docs: maps.Clone(docs), index: o.index}
}

// NewMemoryStoreStrings is NewMemoryStore for string content.
func NewMemoryStoreStrings(docs map[string]string, opts ...Option) *MemoryStore {
	m := make(map[string][]byte, len(docs))
	for k, v := range docs {
		m[k] = []byte(v)
	}
	o := buildOptions(opts)
	return &MemoryStore{docs: m, index: o.index}
}

func (s *MemoryStore) Read(_ context.Context, name string) ([]byte, error) {
	key := stripLeadingSlashes(name)
	if _, ok := s.docs[key]; !ok {
		key = s.indexKey(key)
	}
	b, ok := s.docs[key]
	if !ok {
		return nil, notFound(name, nil)
	}
	// callers may mutate what they get back
	return bytes.Clone(b), nil
}

func (s *MemoryStore) indexKey(key string) string {
	if key == "" {
		return s.index
	}
	if key[len(key)-1] == '/' {
		return key + s.index
	}
	return key + "/" + s.index
}
