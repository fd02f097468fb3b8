package main

import (
	"fmt"

	"github.com/gridarray/engine/internal/catalog"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdLs(args []string) error {
	fset := newFlagSet("ls")
	verbose := fset.Bool("verbose", false, "verbose logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 1 {
		return usageError("ls <uri>")
	}
	uri := rest[0]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)

	return catalog.Walk(fs, uri, vfs.PreOrder, func(o catalog.Object) error {
		fmt.Printf("%s %s\n", o.Type, o.Path)
		return nil
	})
}
