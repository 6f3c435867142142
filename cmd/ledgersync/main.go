// Package main is the entry point for the ledgersync CLI.
package main

import (
	"os"

	"github.com/pigeonworks-llc/ledgersync/cmd/ledgersync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
