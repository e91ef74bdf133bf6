// Package version holds build-time identity, populated via -ldflags.
package version

var (
	name    = "sonotheia"
	version = "dev"
	commit  = "none"
)

// Name returns the binary's canonical name.
func Name() string {
	return name
}

// Version returns the build version string.
func Version() string {
	return version
}

// Commit returns the build's source commit hash.
func Commit() string {
	return commit
}
