// Package main is the entry point for the codewright CLI.
package main

import (
	"os"

	"github.com/codewright/codewright/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
