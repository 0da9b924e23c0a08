package store

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/pathutil"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

var errOutsideRoot = xerrors.New("resolved path escapes root")

// FileStore reads files below a directory on local disk.
type FileStore struct {
	dir   string
	root  *os.Root
	index string
}

// NewFileStore confines reads to dir. The directory must exist; it is
// opened once and held for the lifetime of the store.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "file store root %q", dir)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open file store root %q", dir)
	}
	o := buildOptions(opts)
	return &FileStore{dir: abs, root: root, index: o.index}, nil
}

// Dir returns the absolute root directory.
func (s *FileStore) Dir() string { return s.dir }

// Close releases the root directory handle.
func (s *FileStore) Close() error { return s.root.Close() }

func (s *FileStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, notFound(name, err)
	}

	candidate := pathutil.Resolve(s.dir, name, s.index)
	rel, ok := pathutil.Within(s.dir, candidate)
	if !ok {
		log.FromContext(ctx).Debug(ctx, "rejected request outside store root", "path", name)
		return nil, notFound(name, errOutsideRoot)
	}

	// rel is symlink-free, so os.Root only has to refuse a link swapped in
	// between the check above and the open below
	f, err := s.root.Open(rel)
	if err != nil {
		return nil, notFound(name, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, notFound(name, xerrors.Wrapf(err, "read %s", rel))
	}
	return b, nil
}
