package version

import (
	"fmt"
	"runtime"
)

var (
	// Set at build time with -ldflags "-X github.com/kagent-dev/mcpchat/internal/version.Version=..."
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("Version: %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nPlatform: %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// Short returns "v<version> (<commit>)", used in MCP implementation metadata.
func (i Info) Short() string {
	return fmt.Sprintf("v%s (%s)", i.Version, i.GitCommit)
}
