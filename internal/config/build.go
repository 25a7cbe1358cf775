package config

// Build metadata, stamped by the release pipeline:
//
//	go build -ldflags "\
//	    -X wxarchive/internal/config.version=$TAG \
//	    -X wxarchive/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X wxarchive/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// An unstamped binary (go run, tests, local builds) reports the defaults.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// BuildInfo identifies the running binary in startup logs and the health
// endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// NewBuildInfo snapshots the stamped values. LoadConfig attaches the result
// to Config.Build so startup logs can identify the running binary.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
