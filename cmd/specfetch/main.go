// Package main provides specfetch, a command line client for the spectra engine.
//
// specfetch resolves and downloads spectra without running the relay, loads a
// dictionaries file into the PostgreSQL catalog index and mints relay API keys.
package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags.
var version = "1.0.0-dev"

func main() {
	if err := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
