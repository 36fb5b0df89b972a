// Package version holds the build version, set with
// -ldflags "-X github.com/NielsdaWheelz/eddev/internal/version.Version=v1.2.3".
package version

// Version is the eddev release version.
var Version = "dev"
