package fragment

import (
	"bytes"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gridarray/engine/internal/bufpool"
	"github.com/gridarray/engine/internal/codec"
	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// Handle is one finalized fragment, opened for reading: its directory,
// write timestamp (used to break ties between overlapping fragments),
// and cached book-keeping.
type Handle struct {
	Dir       string
	Timestamp int64
	BK        *Bookkeeping
}

// OpenFragments enumerates arrayDir's subdirectories, keeping only those
// finalized (book-keeping present with a valid CRC, and the __ok.tdb
// sentinel present), and returns them ordered by descending timestamp —
// the order overlapping writes are resolved in, newest winning.
func OpenFragments(fs vfs.VFS, log *logging.Logger, arrayDir string, sch *schema.Schema) ([]Handle, error) {
	if log == nil {
		log = logging.Discard()
	}
	entries, err := fs.Ls(arrayDir)
	if err != nil {
		return nil, err
	}
	var handles []Handle
	for _, e := range entries {
		isDir, err := fs.IsDir(e)
		if err != nil || !isDir {
			continue
		}
		ts, ok := parseFragmentTimestamp(filepath.Base(e))
		if !ok {
			continue
		}
		okPresent, err := fs.IsFile(filepath.Join(e, OkFileName))
		if err != nil || !okPresent {
			continue
		}
		metaPath := filepath.Join(e, MetadataFileName)
		isFile, err := fs.IsFile(metaPath)
		if err != nil || !isFile {
			continue
		}
		size, err := fs.FileSize(metaPath)
		if err != nil {
			log.Warnf("fragment: could not stat book-keeping for %s: %v", e, err)
			continue
		}
		data, err := fs.BulkRead(metaPath, []vfs.ByteRange{{Offset: 0, Length: size}})
		if err != nil {
			log.Warnf("fragment: could not read book-keeping for %s: %v", e, err)
			continue
		}
		bk, err := UnmarshalBookkeeping(data, sch)
		if err != nil {
			log.Warnf("fragment: %s has invalid book-keeping, treating as in-progress: %v", e, err)
			continue
		}
		handles = append(handles, Handle{Dir: e, Timestamp: ts, BK: bk})
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Timestamp > handles[j].Timestamp })
	return handles, nil
}

func parseFragmentTimestamp(dirName string) (int64, bool) {
	if !strings.HasPrefix(dirName, "__") {
		return 0, false
	}
	rest := dirName[2:]
	us := strings.IndexByte(rest, '_')
	if us < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(rest[:us], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// tilePlan is one tile a read query needs to visit.
type tilePlan struct {
	fragIdx int
	tileIdx int
	full    bool // MBR wholly inside the subarray
	lo, hi  []int64
}

// Cursor is the sparse read path's opaque resume token: the flat plan position (fragment and tile) and the in-tile cell
// position the previous Submit stopped at. Dense reads resume through
// the positional window base instead.
type Cursor struct {
	planPos int
	cellPos int
}

// Status is a query's per-attribute or overall completion state.
type Status int

const (
	Uninitialized Status = iota
	Complete
	Incomplete
)

// Reader answers one read query (subarray, attribute subset, output
// layout) against an array's fragments: fragment selection, tile
// enumeration, overlap classification, fetch, filter, ordering, and
// output materialization, with incomplete-query resumption.
type Reader struct {
	sch       *schema.Schema
	fs        vfs.VFS
	log       *logging.Logger
	cfg       config.Config
	fragments []Handle
	subarray  []schema.Dimension
	attrs     []string
	layout    schema.Layout

	// Cancel, if set, is polled at tile boundaries during Submit; a true
	// result stops the read and returns an engineerr.Cancelled error
	// without losing progress (a sparse read leaves its cursor at the tile
	// it stopped on, and a dense read clears the unfinished window, so a
	// fresh, non-cancelled Submit could in principle resume it).
	Cancel func() bool

	plan   []tilePlan
	cursor *Cursor

	// dense output-position dedup: which positions in the subarray-shaped
	// output have already been filled by a newer fragment.
	denseFilled []bool
	// denseWindow is the subarray position the next dense Submit starts
	// at; a caller whose buffers hold fewer cells than the subarray drains
	// it window by window.
	denseWindow int
	// sparse coordinate dedup, keyed by the coordinate's encoded bytes.
	sparseEmitted map[string]bool
}

// OpenReader builds the tile plan for one read query. subarray must name
// every dimension; attrs selects which attributes are read (an attribute
// not named here is never touched — no I/O is ever issued against its
// tile files).
func OpenReader(fsys vfs.VFS, log *logging.Logger, cfg config.Config, sch *schema.Schema, fragments []Handle, subarray []schema.Dimension, attrs []string, layout schema.Layout) (*Reader, error) {
	if log == nil {
		log = logging.Discard()
	}
	if len(subarray) != sch.Domain.Rank() {
		return nil, engineerr.New(engineerr.SchemaError, "fragment reader: subarray has %d dimensions, want %d", len(subarray), sch.Domain.Rank())
	}
	r := &Reader{
		sch: sch, fs: fsys, log: log, cfg: cfg,
		fragments: fragments, subarray: subarray, attrs: attrs, layout: layout,
		sparseEmitted: make(map[string]bool),
	}
	r.buildPlan()
	if sch.ArrayType == schema.Dense {
		vol := int64(1)
		for _, d := range subarray {
			vol *= d.Span()
		}
		r.denseFilled = make([]bool, vol)
	}
	return r, nil
}

// buildPlan performs fragment selection, tile enumeration, and overlap
// classification, flattened into a single
// descending-timestamp-ordered list so Submit can resume a flat cursor
// through it.
func (r *Reader) buildPlan() {
	for fi, h := range r.fragments {
		if !domainIntersects(h.BK.DomainLo, h.BK.DomainHi, r.subarray) {
			continue
		}
		for ti, mbr := range h.BK.MBRs {
			if !mbrIntersects(mbr, r.subarray) {
				continue
			}
			full := mbrInside(mbr, r.subarray)
			r.plan = append(r.plan, tilePlan{fragIdx: fi, tileIdx: ti, full: full, lo: mbr.Lo, hi: mbr.Hi})
		}
	}
}

func domainIntersects(lo, hi []int64, subarray []schema.Dimension) bool {
	for i, d := range subarray {
		if hi[i] < d.Lo || lo[i] > d.Hi {
			return false
		}
	}
	return true
}

func mbrIntersects(m MBR, subarray []schema.Dimension) bool {
	for i, d := range subarray {
		if m.Hi[i] < d.Lo || m.Lo[i] > d.Hi {
			return false
		}
	}
	return true
}

func mbrInside(m MBR, subarray []schema.Dimension) bool {
	for i, d := range subarray {
		if m.Lo[i] < d.Lo || m.Hi[i] > d.Hi {
			return false
		}
	}
	return true
}

// Result is one Submit call's output: materialized output buffers,
// sparse coordinates (if applicable), and the query's resulting status.
type Result struct {
	Status Status
	Attrs  map[string]AttrBuffer
	Coords []int64
	Cells  int

	// BaseCell is, for dense reads, the subarray position (in the
	// requested output layout) of this result's first cell; successive
	// incomplete submits advance it so the caller can place each window.
	// Always 0 for sparse reads.
	BaseCell int
}

// outputAccumulator materializes cells into the caller's requested
// shape: for dense row-major/col-major reads a subarray-shaped buffer
// addressed by position, for sparse/unordered reads an append-only
// stream bounded by caller-supplied cell capacities.
type outputAccumulator struct {
	sch   *schema.Schema
	attrs []string
	dense bool

	// dense: every attribute's buffer is pre-sized to the current window's
	// cell volume and written at a window-relative position; since the
	// window is capped at the caller's capacities, dense reads never
	// overflow.
	denseVol int
	fixed    map[string][]byte
	varVals  map[string]*bufpool.Buffer
	varOffs  map[string][]int64 // -1 marks an unfilled position
	valid    map[string][]byte

	// sparse: append-only, bounded by capacities/coordCap.
	sFixed    map[string]*bufpool.Buffer
	sVarVals  map[string]*bufpool.Buffer
	sVarOffs  map[string][]uint64
	sValid    map[string]*bufpool.Buffer
	coords    []int64
	cellCount int

	capacities map[string]int
	coordCap   int
}

func newOutputAccumulator(sch *schema.Schema, attrs []string, capacities map[string]int, coordCap int) *outputAccumulator {
	o := &outputAccumulator{sch: sch, attrs: attrs, dense: sch.ArrayType == schema.Dense, capacities: capacities, coordCap: coordCap}
	if o.dense {
		o.fixed = make(map[string][]byte, len(attrs))
		o.varVals = make(map[string]*bufpool.Buffer, len(attrs))
		o.varOffs = make(map[string][]int64, len(attrs))
		o.valid = make(map[string][]byte, len(attrs))
	} else {
		o.sFixed = make(map[string]*bufpool.Buffer, len(attrs))
		o.sVarVals = make(map[string]*bufpool.Buffer, len(attrs))
		o.sVarOffs = make(map[string][]uint64, len(attrs))
		o.sValid = make(map[string]*bufpool.Buffer, len(attrs))
	}
	return o
}

// ensureDenseBuffers lazily sizes the dense output buffers once the
// window's cell volume is known.
func (o *outputAccumulator) ensureDenseBuffers(vol int) {
	if o.denseVol == vol {
		return
	}
	o.denseVol = vol
	for _, name := range o.attrs {
		a, _ := o.sch.Attribute(name)
		if a.IsVarLength() {
			o.varVals[name] = bufpool.NewBuffer(vol * 8)
			offs := make([]int64, vol)
			for i := range offs {
				offs[i] = -1
			}
			o.varOffs[name] = offs
		} else {
			// Positions no fragment covers must read back as the type's
			// reserved empty marker, not as zero bytes.
			buf := make([]byte, vol*a.CellSize())
			empty := schema.EmptyValueBytes(a.Datatype)
			for i := 0; i < len(buf); i += len(empty) {
				copy(buf[i:], empty)
			}
			o.fixed[name] = buf
		}
		if a.Nullable {
			o.valid[name] = make([]byte, vol)
		}
	}
}

func (o *outputAccumulator) appendDense(pos int, c cellRecord) {
	for _, name := range o.attrs {
		a, _ := o.sch.Attribute(name)
		v := c.attrs[name]
		if a.IsVarLength() {
			start := int64(o.varVals[name].Size())
			o.varVals[name].Write(v.varValue)
			o.varOffs[name][pos] = start
		} else {
			cellSize := a.CellSize()
			copy(o.fixed[name][pos*cellSize:(pos+1)*cellSize], v.fixed)
		}
		if a.Nullable {
			o.valid[name][pos] = v.validity
		}
	}
	o.cellCount++
}

func (o *outputAccumulator) canAcceptSparse() bool {
	if o.coordCap > 0 && o.cellCount >= o.coordCap {
		return false
	}
	for _, name := range o.attrs {
		if c, ok := o.capacities[name]; ok && c > 0 && o.cellCount >= c {
			return false
		}
	}
	return true
}

func (o *outputAccumulator) appendSparse(c cellRecord) {
	o.coords = append(o.coords, c.coords...)
	for _, name := range o.attrs {
		a, _ := o.sch.Attribute(name)
		if o.sFixed[name] == nil {
			o.sFixed[name] = bufpool.NewBuffer(64)
		}
		v := c.attrs[name]
		if a.IsVarLength() {
			if o.sVarVals[name] == nil {
				o.sVarVals[name] = bufpool.NewBuffer(256)
			}
			o.sVarOffs[name] = append(o.sVarOffs[name], uint64(o.sVarVals[name].Size()))
			o.sVarVals[name].Write(v.varValue)
		} else {
			o.sFixed[name].Write(v.fixed)
		}
		if a.Nullable {
			if o.sValid[name] == nil {
				o.sValid[name] = bufpool.NewBuffer(64)
			}
			o.sValid[name].Write([]byte{v.validity})
		}
	}
	o.cellCount++
}

func (o *outputAccumulator) finish(status Status) *Result {
	res := &Result{Status: status, Attrs: make(map[string]AttrBuffer, len(o.attrs)), Cells: o.cellCount}
	if o.dense {
		// A dense result logically holds every position in its window,
		// filled or not (unwritten positions carry the fill value), so the
		// cell count is the window volume rather than the number of cells
		// any fragment supplied.
		res.Cells = o.denseVol
		res.Coords = nil
		for _, name := range o.attrs {
			a, _ := o.sch.Attribute(name)
			ab := AttrBuffer{}
			if a.IsVarLength() {
				offs := make([]uint64, len(o.varOffs[name]))
				for i, v := range o.varOffs[name] {
					if v < 0 {
						offs[i] = uint64(o.varVals[name].Size())
					} else {
						offs[i] = uint64(v)
					}
				}
				ab.VarOffsets = offs
				ab.VarValues = o.varVals[name].Bytes()
			} else {
				ab.Fixed = o.fixed[name]
			}
			ab.Validity = o.valid[name]
			res.Attrs[name] = ab
		}
	} else {
		res.Coords = o.coords
		for _, name := range o.attrs {
			a, _ := o.sch.Attribute(name)
			ab := AttrBuffer{}
			if a.IsVarLength() {
				ab.VarOffsets = o.sVarOffs[name]
				if o.sVarVals[name] != nil {
					ab.VarValues = o.sVarVals[name].Bytes()
				}
			} else if o.sFixed[name] != nil {
				ab.Fixed = o.sFixed[name].Bytes()
			}
			if o.sValid[name] != nil {
				ab.Validity = o.sValid[name].Bytes()
			}
			res.Attrs[name] = ab
		}
	}
	return res
}

// Submit runs the read pipeline until either the plan is exhausted or an
// output buffer would overflow. capacities bounds, per attribute, how
// many cells' worth of output the caller's buffers can hold;
// coordCapacity bounds sparse coordinate output.
func (r *Reader) Submit(capacities map[string]int, coordCapacity int) (*Result, error) {
	if r.sch.ArrayType == schema.Dense {
		return r.submitDense(capacities)
	}
	return r.submitSparse(capacities, coordCapacity)
}

// submitDense materializes one window of the subarray-shaped output: the
// next capacity-bounded run of positions in the caller's requested
// layout. Every plan tile is scanned per window — cells arrive in tile
// order, not positional order, so there is no cursor to resume from;
// instead the window base advances until the subarray volume is covered.
func (r *Reader) submitDense(capacities map[string]int) (*Result, error) {
	vol := len(r.denseFilled)
	window := vol - r.denseWindow
	for _, name := range r.attrs {
		if c, ok := capacities[name]; ok && c > 0 && c < window {
			window = c
		}
	}
	base := r.denseWindow

	out := newOutputAccumulator(r.sch, r.attrs, capacities, 0)
	out.ensureDenseBuffers(window)

	for pi := 0; pi < len(r.plan) && window > 0; pi++ {
		if r.Cancel != nil && r.Cancel() {
			for pos := base; pos < base+window; pos++ {
				r.denseFilled[pos] = false
			}
			return nil, engineerr.New(engineerr.Cancelled, "fragment reader: cancelled at tile boundary")
		}
		tp := r.plan[pi]
		cells, err := r.fetchTile(tp)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if !tp.full && !coordInSubarray(c.coords, r.subarray) {
				continue
			}
			pos := densePosition(c.coords, r.subarray, r.layout)
			if pos < base || pos >= base+window {
				continue
			}
			if r.denseFilled[pos] {
				continue
			}
			r.denseFilled[pos] = true
			out.appendDense(pos-base, c)
		}
	}

	r.denseWindow = base + window
	status := Complete
	if r.denseWindow < vol {
		status = Incomplete
	}
	res := out.finish(status)
	res.BaseCell = base
	return res, nil
}

// submitSparse streams cells in plan order (descending fragment
// timestamp, tile by tile), deduplicating coordinates already emitted,
// and suspends with a cursor once the caller's buffers fill.
func (r *Reader) submitSparse(capacities map[string]int, coordCapacity int) (*Result, error) {
	out := newOutputAccumulator(r.sch, r.attrs, capacities, coordCapacity)

	startPlanPos, startCellPos := 0, 0
	if r.cursor != nil {
		startPlanPos, startCellPos = r.cursor.planPos, r.cursor.cellPos
	}

	for pi := startPlanPos; pi < len(r.plan); pi++ {
		if r.Cancel != nil && r.Cancel() {
			r.cursor = &Cursor{planPos: pi, cellPos: 0}
			return nil, engineerr.New(engineerr.Cancelled, "fragment reader: cancelled at tile boundary")
		}
		tp := r.plan[pi]
		cellPos := 0
		if pi == startPlanPos {
			cellPos = startCellPos
		}

		cells, err := r.fetchTile(tp)
		if err != nil {
			return nil, err
		}

		for ; cellPos < len(cells); cellPos++ {
			c := cells[cellPos]
			if !tp.full && !coordInSubarray(c.coords, r.subarray) {
				continue
			}
			key := string(int64sToBytes(c.coords))
			if r.sparseEmitted[key] {
				continue
			}
			if r.cellDeleted(c) {
				// A deletion marker hides the coordinate in every older
				// fragment as well.
				r.sparseEmitted[key] = true
				continue
			}
			if !out.canAcceptSparse() {
				r.cursor = &Cursor{planPos: pi, cellPos: cellPos}
				return out.finish(Incomplete), nil
			}
			r.sparseEmitted[key] = true
			out.appendSparse(c)
		}
	}

	r.cursor = nil
	return out.finish(Complete), nil
}

// fetchTile bulk-reads and decompresses every requested attribute's
// payload for one tile, rebasing var-length offsets, and returns the tile's cells as row-oriented records so the
// same cellRecord machinery the writer uses can drive filtering.
func (r *Reader) fetchTile(tp tilePlan) ([]cellRecord, error) {
	frag := r.fragments[tp.fragIdx]
	cellCount := int(frag.BK.TileCellCounts[tp.tileIdx])
	cells := make([]cellRecord, cellCount)
	for i := range cells {
		cells[i] = cellRecord{attrs: make(map[string]cellAttrValue, len(r.attrs))}
	}

	if r.sch.ArrayType == schema.Sparse {
		coordBytes, err := r.fs.BulkRead(filepath.Join(frag.Dir, CoordsFileName), []vfs.ByteRange{
			{Offset: coordsByteOffset(frag.BK, tp.tileIdx, r.sch.Domain.Rank()), Length: int64(cellCount * r.sch.Domain.Rank() * 8)},
		})
		if err != nil {
			return nil, err
		}
		for i := range cells {
			coord := make([]int64, r.sch.Domain.Rank())
			base := i * r.sch.Domain.Rank() * 8
			for d := 0; d < r.sch.Domain.Rank(); d++ {
				coord[d] = decodeInt64LE(coordBytes[base+d*8 : base+d*8+8])
			}
			cells[i].coords = coord
		}
	} else {
		for i := range cells {
			cells[i].coords = denseCellCoord(tp, r.sch, i)
		}
	}

	// Each attribute's tile payload lives in its own file and is
	// independent of every other attribute's, so fetch/decompress fans
	// out across the configured thread pool. Each worker fills its own
	// result slot rather than cells directly —
	// cellRecord.attrs is a plain map, and concurrent writes to one map
	// from different goroutines are unsafe even on disjoint keys; the
	// merge back into cells happens single-threaded after Wait.
	type attrResult struct {
		name string
		vals []cellAttrValue
	}
	results := make([]attrResult, len(r.attrs))
	g := &errgroup.Group{}
	if r.cfg.ThreadPoolSize > 0 {
		g.SetLimit(r.cfg.ThreadPoolSize)
	}
	for i, name := range r.attrs {
		i, name := i, name
		a, ok := r.sch.Attribute(name)
		if !ok {
			return nil, engineerr.New(engineerr.SchemaError, "fragment reader: unknown attribute %q", name)
		}
		g.Go(func() error {
			var vals []cellAttrValue
			var err error
			if a.IsVarLength() {
				vals, err = r.fetchVarAttr(frag, tp.tileIdx, a, cellCount)
			} else {
				vals, err = r.fetchFixedAttr(frag, tp.tileIdx, a, cellCount)
			}
			if err != nil {
				return err
			}
			results[i] = attrResult{name: name, vals: vals}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, res := range results {
		for i, v := range res.vals {
			cells[i].attrs[res.name] = v
		}
	}
	return cells, nil
}

func (r *Reader) fetchFixedAttr(frag Handle, tileIdx int, a schema.Attribute, cellCount int) ([]cellAttrValue, error) {
	ab := frag.BK.Attributes[a.Name]
	start := ab.TileOffsets[tileIdx]
	var end uint64
	if tileIdx+1 < len(ab.TileOffsets) {
		end = ab.TileOffsets[tileIdx+1]
	} else {
		sz, err := r.fs.FileSize(AttrFileName(frag.Dir, a.Name))
		if err != nil {
			return nil, err
		}
		end = uint64(sz)
	}
	compressed, err := r.fs.BulkRead(AttrFileName(frag.Dir, a.Name), []vfs.ByteRange{{Offset: int64(start), Length: int64(end - start)}})
	if err != nil {
		return nil, err
	}
	raw, err := decompressInto(a.Compressor, a.Datatype, a.Datatype.Size(), compressed, cellCount*a.CellSize())
	if err != nil {
		return nil, err
	}
	validity, err := r.fetchValidity(frag, tileIdx, a, cellCount)
	if err != nil {
		return nil, err
	}
	cellSize := a.CellSize()
	vals := make([]cellAttrValue, cellCount)
	for i := 0; i < cellCount; i++ {
		vals[i] = cellAttrValue{fixed: raw[i*cellSize : (i+1)*cellSize], validity: validity[i]}
	}
	return vals, nil
}

func (r *Reader) fetchVarAttr(frag Handle, tileIdx int, a schema.Attribute, cellCount int) ([]cellAttrValue, error) {
	ab := frag.BK.Attributes[a.Name]

	offStart := ab.TileOffsets[tileIdx]
	var offEnd uint64
	if tileIdx+1 < len(ab.TileOffsets) {
		offEnd = ab.TileOffsets[tileIdx+1]
	} else {
		sz, err := r.fs.FileSize(AttrFileName(frag.Dir, a.Name))
		if err != nil {
			return nil, err
		}
		offEnd = uint64(sz)
	}
	compressedOffs, err := r.fs.BulkRead(AttrFileName(frag.Dir, a.Name), []vfs.ByteRange{{Offset: int64(offStart), Length: int64(offEnd - offStart)}})
	if err != nil {
		return nil, err
	}
	offBytes, err := decompressInto(a.Compressor, schema.Uint64, 8, compressedOffs, cellCount*8)
	if err != nil {
		return nil, err
	}

	valStart := ab.VarOffsets[tileIdx]
	var valEnd uint64
	if tileIdx+1 < len(ab.VarOffsets) {
		valEnd = ab.VarOffsets[tileIdx+1]
	} else {
		sz, err := r.fs.FileSize(AttrVarFileName(frag.Dir, a.Name))
		if err != nil {
			return nil, err
		}
		valEnd = uint64(sz)
	}
	compressedVals, err := r.fs.BulkRead(AttrVarFileName(frag.Dir, a.Name), []vfs.ByteRange{{Offset: int64(valStart), Length: int64(valEnd - valStart)}})
	if err != nil {
		return nil, err
	}
	decompressedSize := int(ab.VarSizes[tileIdx])
	decoded, err := decompressInto(a.Compressor, a.Datatype, 1, compressedVals, decompressedSize)
	if err != nil {
		return nil, err
	}
	validity, err := r.fetchValidity(frag, tileIdx, a, cellCount)
	if err != nil {
		return nil, err
	}

	vals := make([]cellAttrValue, cellCount)
	for i := 0; i < cellCount; i++ {
		lo := decodeInt64LE(offBytes[i*8 : i*8+8])
		var hi int64
		if i+1 < cellCount {
			hi = decodeInt64LE(offBytes[(i+1)*8 : (i+1)*8+8])
		} else {
			hi = int64(len(decoded))
		}
		vals[i] = cellAttrValue{varValue: decoded[lo:hi], validity: validity[i]}
	}
	return vals, nil
}

func (r *Reader) fetchValidity(frag Handle, tileIdx int, a schema.Attribute, cellCount int) ([]byte, error) {
	out := make([]byte, cellCount)
	if !a.Nullable {
		for i := range out {
			out[i] = 1
		}
		return out, nil
	}
	bytes, err := r.fs.BulkRead(AttrValidityFileName(frag.Dir, a.Name), []vfs.ByteRange{
		{Offset: validityTileOffset(frag.BK, tileIdx), Length: int64(cellCount)},
	})
	if err != nil {
		return nil, err
	}
	copy(out, bytes)
	return out, nil
}

// validityTileOffset locates a tile's validity bytes: one uncompressed
// byte per cell, written in the same global tile order as every other
// stream, so the byte offset is the sum of every earlier tile's cell
// count.
func validityTileOffset(bk *Bookkeeping, tileIdx int) int64 {
	var off int64
	for i := 0; i < tileIdx; i++ {
		off += int64(bk.TileCellCounts[i])
	}
	return off
}

func coordsByteOffset(bk *Bookkeeping, tileIdx, dimCount int) int64 {
	var off int64
	for i := 0; i < tileIdx; i++ {
		off += int64(bk.TileCellCounts[i]) * int64(dimCount) * 8
	}
	return off
}

func denseCellCoord(tp tilePlan, sch *schema.Schema, localRank int) []int64 {
	extents := make([]int64, sch.Domain.Rank())
	for i, dim := range sch.Domain.Dimensions {
		extents[i] = dim.TileExtent
	}
	localCoord := unrankCellOrder(sch.CellOrder, int64(localRank), extents)
	coord := make([]int64, sch.Domain.Rank())
	for i := range coord {
		coord[i] = tp.lo[i] + localCoord[i]
	}
	return coord
}

func unrankCellOrder(order schema.Layout, rank int64, extents []int64) []int64 {
	coord := make([]int64, len(extents))
	switch order {
	case schema.RowMajor:
		for i := len(extents) - 1; i >= 0; i-- {
			coord[i] = rank % extents[i]
			rank /= extents[i]
		}
	case schema.ColMajor:
		for i := 0; i < len(extents); i++ {
			coord[i] = rank % extents[i]
			rank /= extents[i]
		}
	default:
		// Hilbert cell order tiles are iterated in their stored order, not
		// unranked positionally; dense arrays never pick Hilbert tile
		// order but may pick it for cell order. Fall back to row-major
		// local iteration, which is how the writer laid cells out when it
		// can't rely on an invertible closed form.
		for i := len(extents) - 1; i >= 0; i-- {
			coord[i] = rank % extents[i]
			rank /= extents[i]
		}
	}
	return coord
}

// cellDeleted reports whether every selected attribute of c carries its
// type's reserved deleted-value sentinel (schema.DeletedValue). Such
// cells are filtered out of sparse results; a cell that legitimately
// holds the sentinel value is indistinguishable from a deletion, the
// same ambiguity DEL_INT and friends carry in other engines.
func (r *Reader) cellDeleted(c cellRecord) bool {
	if len(r.attrs) == 0 {
		return false
	}
	for _, name := range r.attrs {
		a, ok := r.sch.Attribute(name)
		if !ok || a.IsVarLength() || a.CellValNum != 1 {
			return false
		}
		if !bytes.Equal(c.attrs[name].fixed, schema.DeletedValueBytes(a.Datatype)) {
			return false
		}
	}
	return true
}

func coordInSubarray(coords []int64, subarray []schema.Dimension) bool {
	for i, d := range subarray {
		if coords[i] < d.Lo || coords[i] > d.Hi {
			return false
		}
	}
	return true
}

// densePosition ranks an absolute coordinate within the subarray's own
// shape, in the caller's requested output layout, giving the index the
// cell is written at in the materialized output buffer.
func densePosition(coords []int64, subarray []schema.Dimension, layout schema.Layout) int {
	spans := make([]int64, len(subarray))
	rel := make([]int64, len(subarray))
	for i, d := range subarray {
		spans[i] = d.Span()
		rel[i] = coords[i] - d.Lo
	}
	switch layout {
	case schema.ColMajor:
		return int(schema.ColMajorRank(rel, spans))
	default:
		return int(schema.RowMajorRank(rel, spans))
	}
}

func decodeInt64LE(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}

func decompressInto(c schema.Compressor, dt schema.Datatype, typeSize int, compressed []byte, outSize int) ([]byte, error) {
	codecImpl, err := codec.For(c, dt, typeSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, outSize)
	if outSize == 0 {
		return out, nil
	}
	n, err := codecImpl.Decompress(compressed, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
