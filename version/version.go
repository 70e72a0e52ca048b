// Package version exposes build metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/grovetools/buildhub/version.Version=v0.1.0"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Info holds all the versioning information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the version information of the running binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Short returns the version and abbreviated commit.
func (i Info) Short() string {
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", i.Version, commit)
}

// String returns a multi-line description.
func (i Info) String() string {
	rows := [][2]string{
		{"Commit", i.Commit},
		{"Built", i.BuildDate},
		{"Go", i.GoVersion},
		{"Platform", i.Platform},
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-9s %s\n", r[0]+":", r[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
