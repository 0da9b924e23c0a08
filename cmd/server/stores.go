package main

import (
	"context"

	"github.com/keithlinneman/sitestore/internal/cfg"
	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/store"
	"github.com/keithlinneman/sitestore/internal/webassets"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

// storeInfoSink records the chain layout, metrics.ServerMetrics implements it.
type storeInfoSink interface {
	store.ReadObserver
	SetStoreInfo(store, kind string, position int)
}

// s3Factory builds the S3 client, swapped out in tests.
type s3Factory func(ctx context.Context, c store.S3Config) (store.S3API, error)

func defaultS3Factory(ctx context.Context, c store.S3Config) (store.S3API, error) {
	client, err := store.NewS3Client(ctx, c)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// contentChain is the configured read chain plus anything to release on exit.
type contentChain struct {
	store.Store
	names   []string
	closers []func() error
}

func (c *contentChain) Close() error {
	var first error
	for _, fn := range c.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildContentChain assembles the stores in priority order: site root, then
// S3, then the packaged default site. Every member is instrumented.
func buildContentChain(ctx context.Context, conf cfg.App, sink storeInfoSink, newS3 s3Factory) (*contentChain, error) {
	L := log.FromContext(ctx)
	opts := []store.Option{store.WithIndexFile(conf.IndexFile)}
	chain := &contentChain{}
	var members []store.Store

	add := func(name, kind string, s store.Store) {
		members = append(members, store.Instrument(name, s, sink))
		chain.names = append(chain.names, name)
		sink.SetStoreInfo(name, kind, len(members)-1)
		L.Info(ctx, "content store configured", "store", name, "kind", kind, "position", len(members)-1)
	}

	if conf.SiteRoot != "" {
		fsStore, err := store.NewFileStore(conf.SiteRoot, opts...)
		if err != nil {
			return nil, xerrors.Wrapf(err, "site root %q", conf.SiteRoot)
		}
		chain.closers = append(chain.closers, fsStore.Close)
		add("file", "filesystem", fsStore)
	}

	if conf.S3Bucket != "" {
		client, err := newS3(ctx, store.S3Config{
			Region:         conf.S3Region,
			Endpoint:       conf.S3Endpoint,
			ForcePathStyle: conf.S3PathStyle,
			AccessKeyID:    conf.S3AccessKeyID,
			SecretKey:      conf.S3SecretKey,
		})
		if err != nil {
			_ = chain.Close()
			return nil, xerrors.Wrap(err, "s3 client")
		}
		s3Store, err := store.NewS3Store(client, conf.S3Bucket, conf.S3Prefix, opts...)
		if err != nil {
			_ = chain.Close()
			return nil, xerrors.Wrapf(err, "s3 store %s/%s", conf.S3Bucket, conf.S3Prefix)
		}
		add("s3", "s3", s3Store)
	}

	if conf.EmbeddedFallback {
		embedded, err := store.NewEmbedStore(webassets.FallbackFS(), "", opts...)
		if err != nil {
			_ = chain.Close()
			return nil, xerrors.Wrap(err, "embedded default site")
		}
		add("embedded", "embedded", embedded)
	}

	if len(members) == 0 {
		return nil, xerrors.New("no content source configured")
	}
	chain.Store = store.NewFallback(members...)
	return chain, nil
}
