package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keithlinneman/sitestore/internal/pathutil"
)

// ErrNotFound is the only failure a Store reports to its callers.
var ErrNotFound = errors.New("not found")

type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
}

// NotFoundError names the requested path. The wrapped cause is for logs
// only; Error() never includes it, so internal paths stay out of messages.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string        { return fmt.Sprintf("%q: %v", e.Path, ErrNotFound) }
func (e *NotFoundError) Unwrap() error        { return e.Err }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(name string, cause error) error {
	return &NotFoundError{Path: name, Err: cause}
}

type Option func(*options)

type options struct {
	index string
}

// WithIndexFile sets the file read when a request names a directory.
// Empty keeps the default.
func WithIndexFile(name string) Option {
	return func(o *options) {
		if name != "" {
			o.index = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{index: pathutil.DefaultIndexFile}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func stripLeadingSlashes(p string) string {
	return strings.TrimLeft(p, "/")
}
