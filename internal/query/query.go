// Package query implements the engine's query coordinator: it
// couples a submit/submit_async/finalize/status lifecycle with the
// underlying fragment reader or writer, enforcing the array's open mode
// and tracking per-attribute completion. The async submit path runs on one
// in-flight goroutine per query, since a coordinator only ever drives
// one outstanding submit at a time.
package query

import (
	"crypto/rand"
	"encoding/binary"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// Mode enforces which of Submit/SubmitRead a Query accepts.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "Write"
	}
	return "Read"
}

// Status is a query's (or one attribute's) completion state. The
// ordering is significant: statusMin reports the worse of two, and
// Cancelled is worse than every other state, including Uninitialized.
type Status int

const (
	Uninitialized Status = iota
	Incomplete
	Complete
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "Incomplete"
	case Complete:
		return "Complete"
	case Cancelled:
		return "Cancelled"
	default:
		return "Uninitialized"
	}
}

func statusMin(a, b Status) Status {
	// Cancelled sorts worst regardless of its numeric value.
	if a == Cancelled || b == Cancelled {
		return Cancelled
	}
	if a < b {
		return a
	}
	return b
}

// Query is one read or write query against an array, bound to a fixed
// attribute subset, subarray, and layout for its whole lifetime — a new
// Query is required to change any of them.
type Query struct {
	mu sync.Mutex

	sch    *schema.Schema
	fs     vfs.VFS
	log    *logging.Logger
	cfg    config.Config
	mode   Mode
	layout schema.Layout
	attrs  []string

	reader *fragment.Reader
	writer *fragment.Writer

	fragmentDir string // write mode only; Abort() target on cancellation

	attrStatus map[string]Status
	overall    Status

	cancelRequested atomic.Bool
	inFlight        atomic.Bool
}

// NewReadQuery opens every finalized fragment under arrayDir and builds
// the tile plan for subarray/attrs/layout.
func NewReadQuery(fs vfs.VFS, log *logging.Logger, cfg config.Config, sch *schema.Schema, arrayDir string, subarray []schema.Dimension, attrs []string, layout schema.Layout) (*Query, error) {
	if log == nil {
		log = logging.Discard()
	}
	fragments, err := fragment.OpenFragments(fs, log, arrayDir, sch)
	if err != nil {
		return nil, err
	}
	r, err := fragment.OpenReader(fs, log, cfg, sch, fragments, subarray, attrs, layout)
	if err != nil {
		return nil, err
	}
	q := &Query{
		sch: sch, fs: fs, log: log, cfg: cfg, mode: Read, layout: layout, attrs: attrs,
		reader:     r,
		attrStatus: make(map[string]Status, len(attrs)),
	}
	r.Cancel = q.cancelled
	return q, nil
}

// NewWriteQuery creates a new fragment directory under arrayDir, named
// `__<timestamp>_<nonce>`, and opens a fragment writer over it for
// layout/subarray.
func NewWriteQuery(fs vfs.VFS, log *logging.Logger, cfg config.Config, sch *schema.Schema, arrayDir string, layout schema.Layout, subarray []schema.Dimension, schemaVersion uint32) (*Query, error) {
	if log == nil {
		log = logging.Discard()
	}
	dir := filepath.Join(arrayDir, fragment.DirName(time.Now().UnixNano(), randomNonce()))
	w, err := fragment.OpenWriter(fs, log, cfg, sch, dir, layout, subarray, schemaVersion)
	if err != nil {
		return nil, err
	}
	attrNames := make([]string, len(sch.Attributes))
	for i, a := range sch.Attributes {
		attrNames[i] = a.Name
	}
	q := &Query{
		sch: sch, fs: fs, log: log, cfg: cfg, mode: Write, layout: layout, attrs: attrNames,
		writer:      w,
		fragmentDir: dir,
		attrStatus:  make(map[string]Status, len(attrNames)),
	}
	w.Cancel = q.cancelled
	return q, nil
}

func randomNonce() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (q *Query) cancelled() bool { return q.cancelRequested.Load() }

// Cancel requests cooperative cancellation of the query's in-flight or
// next Submit/SubmitRead call; it is checked at tile boundaries, not
// mid-tile.
func (q *Query) Cancel() { q.cancelRequested.Store(true) }

// Mode reports whether this query accepts Submit (Write) or SubmitRead
// (Read) calls.
func (q *Query) Mode() Mode { return q.mode }

// Status returns the query's overall status: the minimum (worst) status
// across every selected attribute.
func (q *Query) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overall
}

// AttrStatus returns one attribute's status. Submit/SubmitRead resolve
// all selected attributes together, so in this implementation every
// attribute always carries the query's overall status; AttrStatus exists
// so callers can address attributes individually without assuming that.
func (q *Query) AttrStatus(name string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.attrStatus[name]; ok {
		return s
	}
	return Uninitialized
}

func (q *Query) setStatus(s Status) {
	// A cancelled query stays cancelled. Otherwise every selected attribute
	// takes the status of the latest submit/finalize, and the overall
	// status is the minimum across them.
	if q.overall == Cancelled {
		return
	}
	for _, name := range q.attrs {
		q.attrStatus[name] = s
	}
	q.overall = s
	for _, name := range q.attrs {
		q.overall = statusMin(q.overall, q.attrStatus[name])
	}
}

// Submit appends batch to a write query's fragment. It is an error to
// call Submit on a read query.
func (q *Query) Submit(batch fragment.WriteBatch) (Status, error) {
	if q.mode != Write {
		return Uninitialized, engineerr.New(engineerr.NotSupported, "query: Submit requires a write query")
	}
	if !q.inFlight.CompareAndSwap(false, true) {
		return Uninitialized, engineerr.New(engineerr.InternalError, "query: a submit is already in flight")
	}
	defer q.inFlight.Store(false)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.writer.Submit(batch); err != nil {
		if engineerr.KindOf(err) == engineerr.Cancelled {
			_ = q.writer.Abort()
			q.setStatus(Cancelled)
			return Cancelled, err
		}
		return q.overall, err
	}
	q.setStatus(Incomplete)
	return q.overall, nil
}

// SubmitAsync runs Submit on a background goroutine and invokes cb with
// the result once it returns.
func (q *Query) SubmitAsync(batch fragment.WriteBatch, cb func(Status, error)) {
	go func() {
		st, err := q.Submit(batch)
		cb(st, err)
	}()
}

// SubmitRead runs the read pipeline against a read query's
// prebuilt tile plan, resuming from wherever the previous SubmitRead call
// left its cursor. capacities bounds, per attribute, how many cells the
// caller's output buffers can hold; coordCapacity bounds sparse
// coordinate output. It is an error to call SubmitRead on a write query.
func (q *Query) SubmitRead(capacities map[string]int, coordCapacity int) (*fragment.Result, Status, error) {
	if q.mode != Read {
		return nil, Uninitialized, engineerr.New(engineerr.NotSupported, "query: SubmitRead requires a read query")
	}
	if !q.inFlight.CompareAndSwap(false, true) {
		return nil, Uninitialized, engineerr.New(engineerr.InternalError, "query: a submit is already in flight")
	}
	defer q.inFlight.Store(false)

	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.reader.Submit(capacities, coordCapacity)
	if err != nil {
		if engineerr.KindOf(err) == engineerr.Cancelled {
			q.setStatus(Cancelled)
			return nil, Cancelled, err
		}
		return nil, q.overall, err
	}
	if res.Status == fragment.Complete {
		q.setStatus(Complete)
	} else {
		q.setStatus(Incomplete)
	}
	return res, q.overall, nil
}

// SubmitReadAsync runs SubmitRead on a background goroutine and invokes
// cb with the result once it returns.
func (q *Query) SubmitReadAsync(capacities map[string]int, coordCapacity int, cb func(*fragment.Result, Status, error)) {
	go func() {
		res, st, err := q.SubmitRead(capacities, coordCapacity)
		cb(res, st, err)
	}()
}

// Abort discards a write query's in-progress fragment directory without
// finalizing it. It is a no-op on a read query.
func (q *Query) Abort() error {
	if q.mode != Write {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.overall == Complete {
		return engineerr.New(engineerr.InternalError, "query: cannot abort an already-finalized write query")
	}
	if err := q.writer.Abort(); err != nil {
		return err
	}
	q.setStatus(Cancelled)
	return nil
}

// FragmentDir returns the fragment directory a write query is producing.
// Empty on a read query.
func (q *Query) FragmentDir() string { return q.fragmentDir }

// Finalize materializes a write query's fragment sentinel. It is
// required before the fragment becomes visible to readers;
// it is a no-op on a query already Finalized or Cancelled. Calling
// Finalize on a read query is a no-op, since reads have no sentinel to
// write.
func (q *Query) Finalize() error {
	if q.mode != Write {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.overall == Cancelled {
		return nil
	}
	if err := q.writer.Finalize(); err != nil {
		return err
	}
	q.setStatus(Complete)
	return nil
}
