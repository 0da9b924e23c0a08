package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/sitestore/internal/cfg"
	"github.com/keithlinneman/sitestore/internal/health"
	"github.com/keithlinneman/sitestore/internal/httpmw"
	"github.com/keithlinneman/sitestore/internal/httpserver"
	"github.com/keithlinneman/sitestore/internal/log"
	"github.com/keithlinneman/sitestore/internal/metrics"
	"github.com/keithlinneman/sitestore/internal/opshttp"
	"github.com/keithlinneman/sitestore/internal/otelx"
	"github.com/keithlinneman/sitestore/internal/prof"
	"github.com/keithlinneman/sitestore/internal/ratelimit"
	"github.com/keithlinneman/sitestore/internal/sitehandler"
	v "github.com/keithlinneman/sitestore/internal/version"
)

const component = "server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%s)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion, vi.Dirty())
		os.Exit(0)
	}

	envFile := conf.EnvFile
	if envFile == "" {
		envFile = os.Getenv(cfg.EnvKey(cfg.EnvPrefix, "env-file"))
	}
	if err := cfg.LoadEnvFile(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// both levels already passed Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl := slog.LevelError
	if conf.StacktraceLevel != "" {
		stackLvl, _ = log.ParseLevel(conf.StacktraceLevel)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JSONFormat:      conf.LogJSON,
		Color:           isTerminal(os.Stdout),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application", append(vi.LogFields(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"site_root", conf.SiteRoot,
		"index_file", conf.IndexFile,
		"s3_bucket", conf.S3Bucket,
		"s3_prefix", conf.S3Prefix,
		"s3_region", conf.S3Region,
		"s3_endpoint", conf.S3Endpoint,
		"embedded_fallback", conf.EmbeddedFallback,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"rate_limit_rps", conf.RateLimitRPS,
		"rate_limit_burst", conf.RateLimitBurst,
		"cors_origins", conf.CORSOrigins,
	)...)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		// profiling is optional, keep serving without it
		L.Warn(ctx, "continuing without pyroscope", "error", err.Error())
	}
	defer stopProf()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	chain, err := buildContentChain(ctx, conf, m, defaultS3Factory)
	if err != nil {
		L.Error(ctx, err, "failed to configure content stores")
		os.Exit(1)
	}
	defer func() { _ = chain.Close() }()

	siteHandler, err := sitehandler.New(sitehandler.Options{Logger: L, Store: chain})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	// ready while not draining and the chain can serve the home page
	readiness := health.All(gate.Probe(), health.StoreProbe(chain, ""))

	var rateLimitMW func(next http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "client.address", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit visitor table full, sharing overflow bucket")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		SiteHandler:  siteHandler,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIP:     httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		UseRecoverMW: true,
		OnPanic:      m.IncPanic,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		CORSOrigins:  conf.CORSOriginList(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the ops listener also rejects public peers itself in case a security
	// group or load balancer is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := readiness(ctx); err != nil {
		L.Warn(ctx, "content chain not ready at startup", "reason", err.Error(), "stores", chain.names)
	}

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop sending new requests
	gate.Set("draining")
	if conf.DrainDelay > 0 {
		L.Info(context.Background(), "draining before closing listeners", "delay", conf.DrainDelay.String())
		forceCh := make(chan os.Signal, 1)
		signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-time.After(conf.DrainDelay):
			L.Info(context.Background(), "drain period complete")
		case <-forceCh:
			L.Warn(context.Background(), "second signal received, skipping drain")
		}
		signal.Stop(forceCh)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(shutdownCtx, err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// notifySystemd sends READY=1 when running as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
