package main

import (
	"github.com/gridarray/engine/internal/catalog"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdMv(args []string) error {
	fset := newFlagSet("mv")
	verbose := fset.Bool("verbose", false, "verbose logging")
	overwrite := fset.Bool("overwrite", false, "overwrite an existing object of the same type at dst")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 2 {
		return usageError("mv <src> <dst>")
	}
	src, dst := rest[0], rest[1]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)

	if err := catalog.Move(fs, log, src, dst, *overwrite); err != nil {
		return err
	}
	log.Infof("mv: %s -> %s", src, dst)
	return nil
}
