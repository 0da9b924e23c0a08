package health

import (
	"context"
	"time"

	"github.com/keithlinneman/sitestore/internal/store"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

// storeProbeTimeout bounds one readiness read so a slow bucket cannot hang
// the probe endpoint.
const storeProbeTimeout = 2 * time.Second

// StoreProbe passes while s can serve page, usually "" for the site index.
// The failure names the page only, never a filesystem path or bucket key.
func StoreProbe(s store.Store, page string) CheckFunc {
	return func(ctx context.Context) error {
		if s == nil {
			return xerrors.New("content: no store configured")
		}
		ctx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
		defer cancel()
		if _, err := s.Read(ctx, page); err != nil {
			return xerrors.Newf("content: cannot serve %q", "/"+page)
		}
		return nil
	}
}
