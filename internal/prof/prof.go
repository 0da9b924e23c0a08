// Package prof runs continuous profiling against a pyroscope server.
package prof

import (
	"context"
	"net/url"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	AuthToken            string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
	// OnActive, if set, is told when the profiler starts and stops.
	OnActive func(active bool)
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

func (o Options) validate() error {
	if o.ServerAddress == "" {
		return xerrors.Newf("invalid server address (%q)", o.ServerAddress)
	}
	u, err := url.Parse(o.ServerAddress)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return xerrors.Newf("invalid server address (%q): want http(s)://host[:port]", o.ServerAddress)
	}
	return nil
}

// Start begins profiling when enabled. The returned stop func is always
// non-nil and safe to call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}
	if err := opts.validate(); err != nil {
		L.Error(ctx, err, "pyroscope options")
		return noop, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		AuthToken:       opts.AuthToken,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return noop, xerrors.Wrap(err, "pyroscope start")
	}

	setActive(opts.OnActive, true)
	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			profiler.Stop()
			setActive(opts.OnActive, false)
			L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
		})
	}, nil
}

func setActive(fn func(bool), v bool) {
	if fn != nil {
		fn(v)
	}
}
