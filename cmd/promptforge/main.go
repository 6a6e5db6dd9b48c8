package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/forgelabs/promptforge/internal/cmd"
)

// Stamped in at build time via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
