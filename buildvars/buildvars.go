// Package buildvars holds build information, set with -ldflags -X at link time
package buildvars

import "runtime/debug"

// Initialized is "true" when the variables below were set by the build
var Initialized string

// GitCommit hash of the commit built
var GitCommit string

// GitCommitDate the date and time the commit was made
var GitCommitDate string

// GitRepository the repository the build was made from
var GitRepository string

// GitPorcelain lists files which was not committed
var GitPorcelain string

// Module returns the main module version as recorded by the go tool,
// "(devel)" for local builds
func Module() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	return info.Main.Version
}
