package version

import (
	"fmt"
	"runtime"
)

const (
	unknown = "UNKNOWN"
)

// BinaryName is the name of the binary, overridden at build time via ldflags
var BinaryName = "device-etl"

// Version is substituted with a real value during build
var Version = unknown

// BuildDate is the date at which the binary was built
var BuildDate = unknown

// VersionString returns a formatted version string suitable for displaying to
// the user
func VersionString() string {
	return fmt.Sprintf("%s (%s/%s). build date: %s", Version, runtime.GOOS, runtime.GOARCH, BuildDate)
}
