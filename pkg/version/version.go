// Package version reports build information for orgz.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/macropower/orgz/pkg/version.Version=...".
var (
	Version   string
	Branch    string
	BuildUser string
	BuildDate string
)

// Revision is the short VCS revision the binary was built from, with a
// "-dirty" suffix for modified trees.
var Revision = func() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	return revision(bi.Settings)
}()

// GetVersion returns the release version, or [Revision] for development
// builds.
func GetVersion() string {
	if Version != "" {
		return Version
	}

	return Revision
}

// Info returns a one-line build summary for --version output.
func Info() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (revision: %s", GetVersion(), Revision)
	if Branch != "" {
		fmt.Fprintf(&b, ", branch: %s", Branch)
	}

	fmt.Fprintf(&b, ", %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	if BuildDate != "" {
		fmt.Fprintf(&b, ", built %s", BuildDate)
		if BuildUser != "" {
			fmt.Fprintf(&b, " by %s", BuildUser)
		}
	}

	b.WriteString(")")

	return b.String()
}

func revision(settings []debug.BuildSetting) string {
	rev, dirty := "unknown", false

	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value[:min(len(s.Value), 7)]
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if dirty {
		rev += "-dirty"
	}

	return rev
}
