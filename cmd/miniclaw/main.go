// Package main is the entry point for the miniclaw CLI.
package main

import (
	"os"

	"github.com/miniclaw/miniclaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
