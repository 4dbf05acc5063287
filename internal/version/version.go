// Package version exposes build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/roomvibe/roomvibe-api/internal/version.Version=1.0.0 ..."
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version, e.g. "1.0.0".
	Version = "0.0.0-dev"

	// Commit is the git commit SHA the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp, RFC3339.
	Date = "unknown"
)

// Info bundles the build metadata together with runtime facts.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info for this binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a human-readable version line.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s", i.Version, i.Commit, i.Date)
}

// Short returns just the semantic version.
func (i Info) Short() string {
	return i.Version
}
