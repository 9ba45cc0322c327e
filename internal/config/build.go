package config

// Build metadata injected at compile time:
//
//	go build -ldflags "-X dmcaguard/internal/config.version=1.2.3 \
//	    -X dmcaguard/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X dmcaguard/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Local builds keep the defaults.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-injected variables for Config.Build.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
