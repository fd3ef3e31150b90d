// Package version exposes process-wide build information with lazy init.
// Nothing here shells out to the VCS: the commit comes from the build
// info stamped by the Go toolchain, read once.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Version is the release version, overridable at link time with
// -ldflags "-X github.com/fozzylabs/fozzy/internal/version.Version=...".
var Version = "0.1.0-dev"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	once   sync.Once
	cached Info
)

// Get returns the cached build information, resolving it on first use.
func Get() Info {
	once.Do(func() {
		cached = Info{
			Version:   Version,
			GoVersion: runtime.Version(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					cached.Commit = s.Value
				case "vcs.modified":
					cached.Modified = s.Value == "true"
				}
			}
		}
	})
	return cached
}
