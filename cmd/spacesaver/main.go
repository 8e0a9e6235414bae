// Package main is the entry point for the spacesaver application.
package main

import (
	"os"

	"github.com/jmylchreest/spacesaver/cmd/spacesaver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
