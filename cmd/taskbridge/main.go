package main

import (
	"fmt"
	"os"

	"taskbridge/backend"
)

// Exit codes by error kind, so scripts can tell a bad config from a
// flaky network.
const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitCorrupt   = 3
	exitTransport = 4
)

func exitCode(err error) int {
	switch backend.KindOf(err) {
	case backend.KindConfig:
		return exitConfig
	case backend.KindCorrupt:
		return exitCorrupt
	case backend.KindTransport, backend.KindRateLimit:
		return exitTransport
	default:
		return exitFailure
	}
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
