// Package build holds version metadata injected at link time via
// -ldflags "-X github.com/relayq/relayq/pkg/build.Version=...".
package build

var (
	Version = "dev"
	Commit  = "none"
	BuiltBy = "source"
	Date    = "unknown"
)
