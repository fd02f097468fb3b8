// Package consolidate implements the engine's fragment consolidator: it
// merges every finalized fragment of an array into one
// new fragment written in global order, then retires the fragments it
// replaced. It is built entirely on top of internal/query's read/write
// query lifecycle, the same coordinator an ordinary reader or writer
// would use — a consolidator is just a client that happens to read the
// whole domain and write the result straight back.
package consolidate

import (
	"path/filepath"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/query"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// Result summarizes one consolidation run.
type Result struct {
	// NewFragmentDir is empty when there was nothing to consolidate (zero
	// or one finalized fragment).
	NewFragmentDir   string
	RemovedFragments []string
	CellsWritten     int
	OldFragmentsKept bool // true if the exclusive lock could not be acquired
}

// Run consolidates arrayDir's fragments in place: shared lock, stream,
// finalize, publish, exclusive lock, delete. sch must be the array's
// current schema.
func Run(fs vfs.VFS, log *logging.Logger, cfg config.Config, sch *schema.Schema, arrayDir string) (*Result, error) {
	if log == nil {
		log = logging.Discard()
	}
	lockPath := filepath.Join(arrayDir, fragment.LockFileName)

	sharedUnlock, err := fs.Lock(lockPath, vfs.LockShared)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.IoError, err, "consolidate: acquire shared lock on %s", arrayDir)
	}

	before, err := fragment.OpenFragments(fs, log, arrayDir, sch)
	if err != nil {
		_ = sharedUnlock.Unlock()
		return nil, err
	}
	if len(before) <= 1 {
		_ = sharedUnlock.Unlock()
		return &Result{}, nil
	}
	oldDirs := make([]string, len(before))
	for i, h := range before {
		oldDirs[i] = h.Dir
	}

	attrNames := make([]string, len(sch.Attributes))
	for i, a := range sch.Attributes {
		attrNames[i] = a.Name
	}

	// A dense read/write round-trips through row-major order, which the
	// writer permutes into true global order internally (the same path
	// an ordinary row-major dense write takes). A sparse read's output is
	// only deduplicated, not sorted by coordinate — the reader visits
	// fragments latest-first, not in rank order — so the write side sorts
	// it via the unordered layout's staging buffer instead of assuming
	// pre-sorted input.
	readLayout := schema.RowMajor
	writeLayout := schema.RowMajor
	var writeSubarray []schema.Dimension
	if sch.ArrayType == schema.Dense {
		writeSubarray = sch.Domain.Dimensions
	} else {
		writeLayout = schema.Unordered
	}

	rq, err := query.NewReadQuery(fs, log, cfg, sch, arrayDir, sch.Domain.Dimensions, attrNames, readLayout)
	if err != nil {
		_ = sharedUnlock.Unlock()
		return nil, err
	}
	wq, err := query.NewWriteQuery(fs, log, cfg, sch, arrayDir, writeLayout, writeSubarray, 1)
	if err != nil {
		_ = sharedUnlock.Unlock()
		return nil, err
	}

	capacities := make(map[string]int, len(attrNames))
	for _, name := range attrNames {
		capacities[name] = cfg.ConsolidationBufferCells
	}
	coordCap := cfg.ConsolidationBufferCells

	total := 0
	for {
		res, st, err := rq.SubmitRead(capacities, coordCap)
		if err != nil {
			_ = wq.Abort()
			_ = sharedUnlock.Unlock()
			return nil, err
		}
		if res.Cells > 0 {
			batch := fragment.WriteBatch{Coords: res.Coords, CellCount: res.Cells, Attrs: res.Attrs}
			if _, err := wq.Submit(batch); err != nil {
				_ = wq.Abort()
				_ = sharedUnlock.Unlock()
				return nil, err
			}
			total += res.Cells
			log.Debugf("consolidate: streamed %d cell(s) so far", total)
		}
		if st == query.Complete {
			break
		}
	}

	newDir := wq.FragmentDir()
	if err := wq.Finalize(); err != nil {
		_ = sharedUnlock.Unlock()
		return nil, err
	}
	log.Infof("consolidate: %s published with %d cells from %d fragments", newDir, total, len(oldDirs))

	if err := sharedUnlock.Unlock(); err != nil {
		log.Warnf("consolidate: release shared lock on %s: %v", arrayDir, err)
	}

	// The new fragment is already visible and authoritative (latest
	// timestamp wins); deleting the superseded fragments is cleanup, not
	// correctness. If the exclusive lock is held by a concurrent reader
	// or writer, leave the old fragments in place — no data is lost — for
	// a later consolidation run to retire.
	exclUnlock, err := fs.Lock(lockPath, vfs.LockExclusive)
	if err != nil {
		log.Warnf("consolidate: exclusive lock unavailable, old fragments left for a later run: %v", err)
		return &Result{NewFragmentDir: newDir, CellsWritten: total, OldFragmentsKept: true}, nil
	}
	defer exclUnlock.Unlock()

	removed := make([]string, 0, len(oldDirs))
	for _, dir := range oldDirs {
		if err := fs.Delete(dir); err != nil {
			log.Warnf("consolidate: could not delete superseded fragment %s: %v", dir, err)
			continue
		}
		removed = append(removed, dir)
	}
	return &Result{NewFragmentDir: newDir, RemovedFragments: removed, CellsWritten: total}, nil
}
