// Package cfg holds the process configuration: flags with inline defaults,
// filled from SITESTORE_* environment variables where no flag was given.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/sitestore/internal/log"
)

// EnvPrefix is prepended to the upper-cased flag name, "s3-bucket" reads
// SITESTORE_S3_BUCKET.
const EnvPrefix = "SITESTORE_"

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	HTTPPort         int
	AdminPort        int
	TrustedProxyHops int
	DrainDelay       time.Duration

	EnablePprof     bool
	EnableTracing   bool
	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string

	SiteRoot         string
	IndexFile        string
	S3Bucket         string
	S3Prefix         string
	S3Region         string
	S3Endpoint       string
	S3PathStyle      bool
	S3AccessKeyID    string
	S3SecretKey      string
	EmbeddedFallback bool

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    string

	EnvFile string
}

// Register binds all config fields to the given FlagSet with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "site listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port (1..65535)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the site whose X-Forwarded-For entries are trusted (0..8)")

	fs.DurationVar(&c.DrainDelay, "drain-delay", 15*time.Second, "how long readiness fails before listeners close on shutdown")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the ops port")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export traces to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.BoolVar(&c.OTLPInsecure, "otlp-insecure", true, "plaintext gRPC to the OTLP endpoint")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (x-scope-orgid)")

	fs.StringVar(&c.SiteRoot, "site-root", "", "directory holding the published site")
	fs.StringVar(&c.IndexFile, "index-file", "index.html", "file served for directory requests")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "bucket holding the published site")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "", "key prefix of the site inside s3-bucket")
	fs.StringVar(&c.S3Region, "s3-region", "", "region of s3-bucket")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom S3 endpoint url (minio, localstack)")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", false, "path-style S3 addressing")
	fs.StringVar(&c.S3AccessKeyID, "s3-access-key-id", "", "static S3 access key id, the AWS default credential chain is used when empty")
	fs.StringVar(&c.S3SecretKey, "s3-secret-access-key", "", "static S3 secret access key, prefer the env var over the flag")
	fs.BoolVar(&c.EmbeddedFallback, "embedded-fallback", true, "serve the packaged default site behind the configured sources")

	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-client requests per second (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client burst")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma-separated origins allowed to read site content cross-origin")

	fs.StringVar(&c.EnvFile, "env-file", "", "dotenv file loaded before environment variables are read")
}

// LoadEnvFile exports the KEY=VALUE pairs of a dotenv file into the process
// environment. Variables already set win over the file. Empty path is a no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// CORSOriginList splits CORSOrigins, dropping blanks.
func (c App) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, redact(f.Name, f.Value.String()), key, redact(f.Name, envVal))
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, redact(f.Name, envVal), err)
			}
		}
	})
}

func redact(flagName, v string) string {
	if v != "" && strings.Contains(flagName, "secret") {
		return "[redacted]"
	}
	return v
}

// EnvKey maps a flag name to its environment variable.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate reports every invalid field at once, or nil.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_PROXY_HOPS %d (must be 0..8)", c.TrustedProxyHops))
	}
	if c.DrainDelay < 0 || c.DrainDelay > 5*time.Minute {
		errs = append(errs, fmt.Errorf("invalid DRAIN_DELAY %s (must be 0..5m)", c.DrainDelay))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, errors.New("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if c.SiteRoot == "" && c.S3Bucket == "" && !c.EmbeddedFallback {
		errs = append(errs, errors.New("no content source: set SITE_ROOT, S3_BUCKET or EMBEDDED_FALLBACK"))
	}
	if err := validIndexFile(c.IndexFile); err != nil {
		errs = append(errs, err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		errs = append(errs, errors.New("S3_REGION required when S3_BUCKET is set"))
	}
	if c.S3Bucket == "" && (c.S3Prefix != "" || c.S3Endpoint != "") {
		errs = append(errs, errors.New("S3_PREFIX and S3_ENDPOINT need S3_BUCKET"))
	}
	if (c.S3AccessKeyID == "") != (c.S3SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together"))
	}
	if c.S3Bucket == "" && c.S3AccessKeyID != "" {
		errs = append(errs, errors.New("S3_ACCESS_KEY_ID needs S3_BUCKET"))
	}
	if c.S3Endpoint != "" {
		if u, err := url.Parse(c.S3Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("S3_ENDPOINT must be an http(s) URL (got %q)", c.S3Endpoint))
		}
	}

	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS %v (must be >= 0)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BURST %d (must be >= 1)", c.RateLimitBurst))
	}

	for _, o := range c.CORSOriginList() {
		if o == "*" {
			continue
		}
		if u, err := url.Parse(o); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, fmt.Errorf("invalid CORS_ORIGINS entry %q (want scheme://host[:port] or *)", o))
		}
	}

	return errors.Join(errs...)
}

// validIndexFile accepts a bare file name only.
func validIndexFile(name string) error {
	switch {
	case name == "":
		return errors.New("INDEX_FILE is required")
	case name == "." || name == "..":
		return fmt.Errorf("invalid INDEX_FILE %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("invalid INDEX_FILE %q (must be a bare file name)", name)
	}
	return nil
}
