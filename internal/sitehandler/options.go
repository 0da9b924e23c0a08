package sitehandler

import (
	"errors"
	"fmt"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/store"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type Options struct {
	// Logger is used when the request context carries none.
	Logger log.Logger
	// Store answers every page read, usually a store.Fallback chain.
	Store store.Store

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Store == nil {
		return fmt.Errorf("%w: Store is nil", ErrInvalidOptions)
	}
	return nil
}
