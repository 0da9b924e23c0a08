package store

import (
	"context"
	"io/fs"
	"path"

	"github.com/keithlinneman/sitestore/internal/xerrors"
)

var errInvalidPath = xerrors.New("invalid resource path")

// EmbedStore reads packaged resources from an fs.FS, typically an embed.FS
// compiled into the binary.
type EmbedStore struct {
	fsys  fs.FS
	index string
}

// NewEmbedStore serves the subdir tree of fsys. An empty subdir (or ".")
// serves fsys as is.
func NewEmbedStore(fsys fs.FS, subdir string, opts ...Option) (*EmbedStore, error) {
	if fsys == nil {
		return nil, xerrors.New("embed store: nil filesystem")
	}
	if subdir != "" && subdir != "." {
		sub, err := fs.Sub(fsys, subdir)
		if err != nil {
			return nil, xerrors.Wrapf(err, "embed store subdir %q", subdir)
		}
		fsys = sub
	}
	o := buildOptions(opts)
	return &EmbedStore{fsys: fsys, index: o.index}, nil
}

func (s *EmbedStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, notFound(name, err)
	}

	// fs.FS names are unrooted and slash-separated; anything that still
	// climbs with ".." after cleaning is rejected by ValidPath
	rel := path.Clean(stripLeadingSlashes(name))
	if !fs.ValidPath(rel) {
		return nil, notFound(name, errInvalidPath)
	}

	// resource namespaces may not report "is a directory" from a read, so
	// check the kind first and substitute the index once
	info, err := fs.Stat(s.fsys, rel)
	if err == nil && info.IsDir() {
		rel = path.Join(rel, s.index)
	}

	b, err := fs.ReadFile(s.fsys, rel)
	if err != nil {
		return nil, notFound(name, err)
	}
	return b, nil
}
