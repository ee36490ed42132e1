// Package version carries build metadata stamped in through ldflags:
//
//	go build -ldflags "-X github.com/teranos/crosspost/version.Version=v0.3.0 \
//	  -X github.com/teranos/crosspost/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info is reported by `crosspost version` and GET /healthz.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current build information
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("crosspost %s (commit %s, built %s, %s %s)",
		i.Version, i.Short(), i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies outbound publish requests.
func UserAgent() string {
	return "crosspost/" + Version
}
