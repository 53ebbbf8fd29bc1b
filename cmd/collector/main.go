// Package main is the entry point for the collector agent. All behavior
// lives in internal packages; main only wires the CLI to the process.
package main

import (
	"context"
	"os"

	"github.com/kioskops/collector-agent/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(cli.Run(context.Background(), version, os.Args))
}
