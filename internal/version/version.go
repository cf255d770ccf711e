package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Build-time variables injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildInfo(bi)
	}
}

// String renders the build as "<version> (<commit>, <date>)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}

// UserAgent is the User-Agent lapse sends to RDAP, WHOIS API and CT log servers.
func UserAgent() string {
	return "lapse/" + Version + " (+https://github.com/tbckr/lapse)"
}

// applyBuildInfo fills package vars from bi only where ldflags left the defaults.
func applyBuildInfo(bi *debug.BuildInfo) {
	if Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; Commit == "none" && rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		Commit = rev
	}
	if ts := settings["vcs.time"]; Date == "unknown" && ts != "" {
		Date = ts
	}
}
