package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() *Info {
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i *Info) String() string {
	return fmt.Sprintf("idxmirror %s (%s) built %s %s", i.Version, i.GitCommit, i.BuildTime, i.Platform)
}

// Headers implements types.TableRenderer
func (i *Info) Headers() []string {
	return []string{"Field", "Value"}
}

// Rows implements types.TableRenderer
func (i *Info) Rows() [][]string {
	return [][]string{
		{"Version", i.Version},
		{"Commit", i.GitCommit},
		{"Built", i.BuildTime},
		{"Go", i.GoVersion},
		{"Platform", i.Platform},
	}
}

// EmptyMessage implements types.TableRenderer
func (i *Info) EmptyMessage() string {
	return ""
}
