package main

import "fmt"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func cmdVersion(args []string) error {
	fmt.Printf("arrayctl %s (commit %s, built %s)\n", version, commit, buildDate)
	return nil
}
