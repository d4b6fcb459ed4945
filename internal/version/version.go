// Package version provides the build version of the sidekick server.
package version

import "fmt"

// Version is the semver of the current build.
var Version = "0.3.1"

// DevVersion is the version suffix used in dev mode.
var DevVersion = "0.0.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return fmt.Sprintf("%s-%s", Version, mode)
	}
	return Version
}
