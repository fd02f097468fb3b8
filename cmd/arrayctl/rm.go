package main

import (
	"github.com/gridarray/engine/internal/catalog"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdRm(args []string) error {
	fset := newFlagSet("rm")
	verbose := fset.Bool("verbose", false, "verbose logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 1 {
		return usageError("rm <uri>")
	}
	uri := rest[0]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)

	if err := catalog.Remove(fs, uri); err != nil {
		return err
	}
	log.Infof("rm: removed %s", uri)
	return nil
}
