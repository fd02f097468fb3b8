// Command arrayctl is a reference client for the array storage engine:
// it creates arrays from a schema file, writes and reads cells as CSV,
// consolidates fragments, and walks/moves/removes catalog objects.
package main

import (
	"flag"
	"fmt"
	"os"
)

func newFlagSet(verb string) *flag.FlagSet {
	fset := flag.NewFlagSet(verb, flag.ExitOnError)
	fset.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: arrayctl %s [options] <args>\n", verb)
		fset.PrintDefaults()
	}
	return fset
}

type cmd struct {
	fn   func(args []string) error
	help string
}

func funcmain() error {
	verbs := map[string]cmd{
		"create":      {cmdCreate, "create an array from a schema file"},
		"write":       {cmdWrite, "write cells into an array from a CSV file"},
		"read":        {cmdRead, "read a subarray out of an array as CSV"},
		"consolidate": {cmdConsolidate, "merge an array's fragments into one"},
		"ls":          {cmdLs, "list catalog objects under a path"},
		"mv":          {cmdMv, "move or rename a catalog object"},
		"rm":          {cmdRm, "remove a catalog object"},
		"version":     {cmdVersion, "print the version and exit"},
	}

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage(verbs)
		os.Exit(1)
	}
	verb, rest := args[0], args[1:]

	if verb == "help" {
		printUsage(verbs)
		return nil
	}

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "arrayctl: unknown command %q\n", verb)
		printUsage(verbs)
		os.Exit(1)
	}
	return v.fn(rest)
}

func printUsage(verbs map[string]cmd) {
	fmt.Fprintf(os.Stderr, "usage: arrayctl <command> [options] <args>\n\n")
	for _, name := range []string{"create", "write", "read", "consolidate", "ls", "mv", "rm", "version"} {
		fmt.Fprintf(os.Stderr, "\t%-12s %s\n", name, verbs[name].help)
	}
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintf(os.Stderr, "arrayctl: %v\n", err)
		os.Exit(exitCode(err))
	}
}
