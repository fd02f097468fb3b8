package main

import (
	"os"
	"path/filepath"

	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/vfs"
)

func cmdCreate(args []string) error {
	fset := newFlagSet("create")
	verbose := fset.Bool("verbose", false, "verbose logging")
	if err := fset.Parse(args); err != nil {
		return err
	}
	rest := fset.Args()
	if len(rest) != 2 {
		return usageError("create <uri> <schema-file>")
	}
	uri, schemaPath := rest[0], rest[1]

	log := logging.New(*verbose)
	fs := vfs.NewLocal(log)

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return engineerr.Wrap(engineerr.IoError, err, "create: read %s", schemaPath)
	}
	sch, err := parseSchemaFile(data)
	if err != nil {
		return err
	}

	isDir, err := fs.IsDir(uri)
	if err != nil {
		return err
	}
	isFile, err := fs.IsFile(uri)
	if err != nil {
		return err
	}
	if isDir || isFile {
		return engineerr.New(engineerr.AlreadyExists, "create: %s already exists", uri)
	}
	if err := fs.Mkdir(uri); err != nil {
		return err
	}

	blob, err := sch.Marshal()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(fs, filepath.Join(uri, fragment.SchemaFileName), blob); err != nil {
		return err
	}

	h, err := fs.Open(filepath.Join(uri, fragment.LockFileName), vfs.OpenWrite)
	if err != nil {
		return err
	}
	if err := fs.Close(h); err != nil {
		return err
	}

	log.Infof("create: %s (%s, %d dimension(s), %d attribute(s))", uri, sch.ArrayType, sch.Domain.Rank(), len(sch.Attributes))
	return nil
}
