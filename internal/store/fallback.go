package store

import (
	"context"
	"errors"

	"github.com/keithlinneman/sitestore/internal/log"
)

// Fallback tries its stores in order and returns the first successful read.
// Any failure moves on to the next store, so a broken primary never hides
// content the secondary can serve.
type Fallback struct {
	stores []Store
}

// NewFallback keeps the given order, primary first. Nil entries are dropped.
func NewFallback(stores ...Store) *Fallback {
	f := &Fallback{stores: make([]Store, 0, len(stores))}
	for _, s := range stores {
		if s != nil {
			f.stores = append(f.stores, s)
		}
	}
	return f
}

// Len is the number of stores in the chain.
func (f *Fallback) Len() int { return len(f.stores) }

func (f *Fallback) Read(ctx context.Context, name string) ([]byte, error) {
	var errs []error
	for i, s := range f.stores {
		b, err := s.Read(ctx, name)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.FromContext(ctx).Warn(ctx, "store read failed, trying next store",
				"store_index", i,
				"path", name,
				"error", err.Error(),
			)
		}
		errs = append(errs, err)
	}
	return nil, notFound(name, errors.Join(errs...))
}
