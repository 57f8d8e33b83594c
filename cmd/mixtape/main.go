// MixTape - resumable audio downloads from the command line
package main

import (
	"os"

	"github.com/mixtape/mixtape/internal/cli"
	"github.com/mixtape/mixtape/internal/version"
)

// Version information, overridden by ldflags in release builds
var (
	Version   = "v0.3.0"
	BuildTime = "2026-10-19"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
