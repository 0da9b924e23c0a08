// Package version carries build metadata stamped in with -ldflags, filled
// from the binary's embedded VCS settings when the linker left it empty.
package version

import (
	"runtime/debug"
	"strconv"
)

// AppName is the application name used in logs, metrics and traces.
const AppName = "sitestore"

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildID    string
	GoVersion  string
	VCSDirty   *bool
)

type Info struct {
	AppName    string `json:"app_name"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date"`
	BuildDate  string `json:"build_date"`
	BuildID    string `json:"build_id"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

// Get returns the linker-stamped values merged with runtime build info.
func Get() Info {
	out := Info{
		AppName:    AppName,
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildID:    BuildID,
		GoVersion:  GoVersion,
		VCSDirty:   VCSDirty,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		out.applySettings(bi.Settings)
	}
	return out
}

// applySettings only fills commit and build date when the linker did not.
func (i *Info) applySettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		if s.Value == "" {
			continue
		}
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" || i.Commit == "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
			i.CommitDate = s.Value
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil {
				i.VCSDirty = &b
			}
		}
	}
}

// Dirty renders the tri-state VCS flag as "true", "false" or "unknown".
func (i Info) Dirty() string {
	if i.VCSDirty == nil {
		return "unknown"
	}
	return strconv.FormatBool(*i.VCSDirty)
}

// LogFields returns key/value pairs for a startup log line.
func (i Info) LogFields() []any {
	return []any{
		"app", i.AppName,
		"version", i.Version,
		"commit", i.Commit,
		"commit_date", i.CommitDate,
		"build_id", i.BuildID,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"vcs_dirty", i.Dirty(),
	}
}
