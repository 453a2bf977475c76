// Package version identifies a skywatch build; the variables are meant to
// be overridden at link time.
package version

var (
	// Version is the skywatch release string
	Version = "dev"
	// GitSHA is the git commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
