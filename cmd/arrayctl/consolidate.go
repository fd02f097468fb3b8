package main

import (
	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/consolidate"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdConsolidate(args []string) error {
	fset := newFlagSet("consolidate")
	verbose := fset.Bool("verbose", false, "verbose logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 1 {
		return usageError("consolidate <uri>")
	}
	uri := rest[0]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)
	cfg := config.Default()

	sch, err := openSchema(fs, uri)
	if err != nil {
		return err
	}
	res, err := consolidate.Run(fs, log, cfg, sch, uri)
	if err != nil {
		return err
	}
	if res.NewFragmentDir == "" {
		log.Infof("consolidate: %s: nothing to do", uri)
		return nil
	}
	if res.OldFragmentsKept {
		log.Infof("consolidate: %s: wrote %s (%d cell(s)); old fragments kept (lock unavailable)", uri, res.NewFragmentDir, res.CellsWritten)
		return nil
	}
	log.Infof("consolidate: %s: wrote %s (%d cell(s)), removed %d fragment(s)", uri, res.NewFragmentDir, res.CellsWritten, len(res.RemovedFragments))
	return nil
}
