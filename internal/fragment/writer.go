package fragment

import (
	"path/filepath"
	"sort"

	"github.com/gridarray/engine/internal/bufpool"
	"github.com/gridarray/engine/internal/codec"
	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/engineerr"
	"github.com/gridarray/engine/internal/logging"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// WriterState is the fragment writer's lifecycle.
type WriterState int

const (
	WriterIdle WriterState = iota
	WriterOpen
	WriterWriting
	WriterFinalized
	WriterAborted
)

// Writer produces one fragment directory through repeated Submit calls
// followed by Finalize. The unordered layout stages cells into a bounded
// sort buffer, then flushes them sorted and deduplicated through the
// same tile-accumulation path global writes take directly.
type Writer struct {
	sch         *schema.Schema
	fs          vfs.VFS
	log         *logging.Logger
	cfg         config.Config
	fragmentDir string
	layout      schema.Layout
	subarray    []schema.Dimension // effective per-dimension range for this write; Lo/Hi only

	state WriterState

	// Cancel, if set, is polled at tile boundaries during accumulate,
	// right after each tile is flushed; a true result aborts the write
	// with an engineerr.Cancelled error before the next tile is started.
	Cancel func() bool

	tileCells int64 // cells per tile: capacity (sparse) or tile-extent product (dense)

	curBuf       map[string]*bufpool.Buffer // fixed-width accumulator, current tile
	curVarBuf    map[string]*bufpool.Buffer // variable values accumulator, current tile
	curVarOffs   map[string][]uint64        // relative offsets within curVarBuf, current tile
	curValidity  map[string]*bufpool.Buffer // validity accumulator, current tile
	curCoordsBuf *bufpool.Buffer            // sparse only
	curCellCount int
	curMBRLo     []int64
	curMBRHi     []int64

	attrHandles      map[string]vfs.Handle
	attrVarHandles   map[string]vfs.Handle
	attrValidHandles map[string]vfs.Handle
	coordsHandle     vfs.Handle

	attrFileOffset    map[string]uint64
	attrVarFileOffset map[string]uint64
	coordsFileOffset  uint64

	domainLo, domainHi []int64

	bk *Bookkeeping

	sortBuf      []cellRecord
	sortBufBytes int64
	insertionSeq int

	// denseStage accumulates row-major/col-major cells across Submit calls;
	// they are permuted into global order only at Finalize, once the whole
	// subarray has arrived — a partial batch's cells interleave with later
	// batches' in global order, so no prefix can be flushed early.
	denseStage []cellRecord

	denseTileIdx int64 // next dense tile's position along the TileOrder sequence
}

// OpenWriter creates a fragment directory and its attribute files, and
// allocates book-keeping for schemaVersion. subarray is required for
// row-major/col-major dense writes and optional otherwise (nil means
// "the full domain").
func OpenWriter(fs vfs.VFS, log *logging.Logger, cfg config.Config, sch *schema.Schema, fragmentDir string, layout schema.Layout, subarray []schema.Dimension, schemaVersion uint32) (*Writer, error) {
	if log == nil {
		log = logging.Discard()
	}
	if layout == schema.Unordered && sch.ArrayType != schema.Sparse {
		return nil, engineerr.New(engineerr.LayoutError, "unordered layout is only valid for sparse arrays")
	}
	if (layout == schema.RowMajor || layout == schema.ColMajor) && sch.ArrayType != schema.Dense {
		return nil, engineerr.New(engineerr.LayoutError, "%s layout requires a dense array and a subarray", layout)
	}

	if err := fs.Mkdir(fragmentDir); err != nil {
		return nil, err
	}

	w := &Writer{
		sch: sch, fs: fs, log: log, cfg: cfg,
		fragmentDir:       fragmentDir,
		layout:            layout,
		subarray:          subarray,
		state:             WriterOpen,
		curBuf:            make(map[string]*bufpool.Buffer),
		curVarBuf:         make(map[string]*bufpool.Buffer),
		curVarOffs:        make(map[string][]uint64),
		curValidity:       make(map[string]*bufpool.Buffer),
		attrHandles:       make(map[string]vfs.Handle),
		attrVarHandles:    make(map[string]vfs.Handle),
		attrValidHandles:  make(map[string]vfs.Handle),
		attrFileOffset:    make(map[string]uint64),
		attrVarFileOffset: make(map[string]uint64),
		bk:                NewBookkeeping(sch, schemaVersion),
	}

	if sch.ArrayType == schema.Dense {
		w.tileCells = 1
		for _, dim := range sch.Domain.Dimensions {
			w.tileCells *= dim.TileExtent
		}
	} else {
		w.tileCells = int64(sch.Capacity)
		h, err := fs.Open(coordsStreamPath(fragmentDir), vfs.OpenWrite)
		if err != nil {
			return nil, err
		}
		w.coordsHandle = h
	}

	for _, a := range sch.Attributes {
		h, err := fs.Open(AttrFileName(fragmentDir, a.Name), vfs.OpenWrite)
		if err != nil {
			return nil, err
		}
		w.attrHandles[a.Name] = h
		w.curBuf[a.Name] = bufpool.NewBuffer(int(w.tileCells) * a.Datatype.Size())
		if a.IsVarLength() {
			vh, err := fs.Open(AttrVarFileName(fragmentDir, a.Name), vfs.OpenWrite)
			if err != nil {
				return nil, err
			}
			w.attrVarHandles[a.Name] = vh
			w.curVarBuf[a.Name] = bufpool.NewBuffer(4096)
		}
		if a.Nullable {
			vh, err := fs.Open(AttrValidityFileName(fragmentDir, a.Name), vfs.OpenWrite)
			if err != nil {
				return nil, err
			}
			w.attrValidHandles[a.Name] = vh
			w.curValidity[a.Name] = bufpool.NewBuffer(int(w.tileCells))
		}
	}

	if sch.ArrayType == schema.Dense {
		rng := subarray
		if rng == nil {
			rng = sch.Domain.Dimensions
		}
		w.domainLo = make([]int64, len(rng))
		w.domainHi = make([]int64, len(rng))
		for i, d := range rng {
			w.domainLo[i], w.domainHi[i] = d.Lo, d.Hi
		}
	}

	return w, nil
}

func coordsStreamPath(fragmentDir string) string {
	return filepath.Join(fragmentDir, CoordsFileName)
}

// Submit appends batch's cells to the fragment, per the layout the
// Writer was opened with.
func (w *Writer) Submit(batch WriteBatch) error {
	if w.state != WriterOpen && w.state != WriterWriting {
		return engineerr.New(engineerr.InternalError, "fragment writer: submit in state %d", w.state)
	}
	w.state = WriterWriting

	cells := explodeBatch(w.sch, batch, w.insertionSeq)
	w.insertionSeq += len(cells)

	switch w.layout {
	case schema.GlobalOrder:
		return w.accumulate(cells)
	case schema.RowMajor, schema.ColMajor:
		w.denseStage = append(w.denseStage, cells...)
		return nil
	case schema.Unordered:
		return w.stageUnordered(cells)
	default:
		return engineerr.New(engineerr.LayoutError, "%s is not a supported write layout", w.layout)
	}
}

// permuteDense reorders a row-major/col-major batch into global dense
// order using only the subarray shape, since dense cells carry no
// explicit coordinates.
func (w *Writer) permuteDense(cells []cellRecord) ([]cellRecord, error) {
	if w.subarray == nil {
		return nil, engineerr.New(engineerr.SchemaError, "fragment writer: row-major/col-major writes require a subarray")
	}
	coordsInSourceOrder := enumerateSubarray(w.subarray, w.layout)
	if len(coordsInSourceOrder) != len(cells) {
		return nil, engineerr.New(engineerr.SchemaError, "fragment writer: batch has %d cells, subarray has %d", len(cells), len(coordsInSourceOrder))
	}
	ranks := make([]uint64, len(cells))
	for i, c := range coordsInSourceOrder {
		r, err := schema.GlobalRankDense(w.sch, c)
		if err != nil {
			return nil, err
		}
		ranks[i] = r
	}
	order := make([]int, len(cells))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ranks[order[a]] < ranks[order[b]] })
	out := make([]cellRecord, len(cells))
	for newPos, oldPos := range order {
		out[newPos] = cells[oldPos]
	}
	return out, nil
}

// enumerateSubarray lists every coordinate tuple in the subarray in the
// given order (row-major or col-major), matching how a caller's buffer
// is laid out for a row-major/col-major write.
func enumerateSubarray(dims []schema.Dimension, order schema.Layout) [][]int64 {
	spans := make([]int64, len(dims))
	total := int64(1)
	for i, d := range dims {
		spans[i] = d.Span()
		total *= spans[i]
	}
	out := make([][]int64, total)
	idx := make([]int64, len(dims))
	for n := int64(0); n < total; n++ {
		coord := make([]int64, len(dims))
		for i, d := range dims {
			coord[i] = d.Lo + idx[i]
		}
		out[n] = coord
		if order == schema.ColMajor {
			for i := 0; i < len(dims); i++ {
				idx[i]++
				if idx[i] < spans[i] {
					break
				}
				idx[i] = 0
			}
		} else {
			for i := len(dims) - 1; i >= 0; i-- {
				idx[i]++
				if idx[i] < spans[i] {
					break
				}
				idx[i] = 0
			}
		}
	}
	return out
}

// stageUnordered buffers cells until the configured sort-buffer budget is
// reached, then sorts by global cell id (schema.GlobalRankSparse, which
// already folds in the tile order; ties by insertion order), deduplicates
// last-wins within the batch, and flushes through
// the global-order accumulation path.
func (w *Writer) stageUnordered(cells []cellRecord) error {
	for _, c := range cells {
		w.sortBuf = append(w.sortBuf, c)
		w.sortBufBytes += cellRecordSize(w.sch, c)
	}
	if w.sortBufBytes >= w.cfg.SortBufferBytes {
		return w.flushSortBuffer()
	}
	return nil
}

func cellRecordSize(sch *schema.Schema, c cellRecord) int64 {
	size := int64(len(c.coords)) * 8
	for _, a := range sch.Attributes {
		v := c.attrs[a.Name]
		size += int64(len(v.fixed) + len(v.varValue) + 1)
	}
	return size
}

func (w *Writer) flushSortBuffer() error {
	if len(w.sortBuf) == 0 {
		return nil
	}
	ranks := make([]uint64, len(w.sortBuf))
	for i, c := range w.sortBuf {
		r, err := schema.GlobalRankSparse(w.sch, c.coords)
		if err != nil {
			return err
		}
		ranks[i] = r
	}
	order := make([]int, len(w.sortBuf))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if ranks[ia] != ranks[ib] {
			return ranks[ia] < ranks[ib]
		}
		return w.sortBuf[ia].insertion < w.sortBuf[ib].insertion
	})

	deduped := make([]cellRecord, 0, len(order))
	for i := 0; i < len(order); i++ {
		cur := w.sortBuf[order[i]]
		if i+1 < len(order) && ranks[order[i]] == ranks[order[i+1]] && coordsEqual(cur.coords, w.sortBuf[order[i+1]].coords) {
			continue // a later (higher insertion-order) duplicate wins
		}
		deduped = append(deduped, cur)
	}

	w.sortBuf = nil
	w.sortBufBytes = 0
	return w.accumulate(deduped)
}

func coordsEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// accumulate appends cells (already in global order) into the current
// tile's per-attribute buffers, flushing whenever a tile fills.
func (w *Writer) accumulate(cells []cellRecord) error {
	for _, c := range cells {
		if w.sch.ArrayType == schema.Sparse {
			if w.curCoordsBuf == nil {
				w.curCoordsBuf = bufpool.NewBuffer(int(w.tileCells) * len(c.coords) * 8)
			}
			if w.curMBRLo == nil {
				w.curMBRLo = append([]int64(nil), c.coords...)
				w.curMBRHi = append([]int64(nil), c.coords...)
			} else {
				for i, v := range c.coords {
					if v < w.curMBRLo[i] {
						w.curMBRLo[i] = v
					}
					if v > w.curMBRHi[i] {
						w.curMBRHi[i] = v
					}
				}
			}
			w.curCoordsBuf.Write(int64sToBytes(c.coords))
			w.domainLo, w.domainHi = expandDomain(w.domainLo, w.domainHi, c.coords)
		}

		for _, a := range w.sch.Attributes {
			v := c.attrs[a.Name]
			if a.IsVarLength() {
				localOffset := uint64(w.curVarBuf[a.Name].Size())
				w.curVarOffs[a.Name] = append(w.curVarOffs[a.Name], localOffset)
				w.curVarBuf[a.Name].Write(v.varValue)
				var offBytes [8]byte
				encodeInt64LE(offBytes[:], int64(localOffset))
				w.curBuf[a.Name].Write(offBytes[:]) // per-cell offset, local to this tile's var stream
			} else {
				w.curBuf[a.Name].Write(v.fixed)
			}
			if a.Nullable {
				w.curValidity[a.Name].Write([]byte{v.validity})
			}
		}
		w.curCellCount++

		if int64(w.curCellCount) >= w.tileCells {
			if err := w.flushTile(); err != nil {
				return err
			}
			if w.Cancel != nil && w.Cancel() {
				return engineerr.New(engineerr.Cancelled, "fragment writer: cancelled at tile boundary")
			}
		}
	}
	return nil
}

// flushTile compresses and appends the current tile to every attribute
// file, records its offsets and MBR in book-keeping, and resets the
// per-tile accumulators.
func (w *Writer) flushTile() error {
	if w.curCellCount == 0 {
		return nil
	}

	if w.sch.ArrayType == schema.Sparse {
		w.bk.MBRs = append(w.bk.MBRs, MBR{Lo: w.curMBRLo, Hi: w.curMBRHi})
		n, err := w.writeBuffer(w.coordsHandle, w.curCoordsBuf.Bytes())
		if err != nil {
			return err
		}
		w.coordsFileOffset += uint64(n)
	} else {
		lo, hi, err := w.denseTileBounds()
		if err != nil {
			return err
		}
		w.bk.MBRs = append(w.bk.MBRs, MBR{Lo: lo, Hi: hi})
		w.denseTileIdx++
	}
	w.bk.TileCount++
	w.bk.TileCellCounts = append(w.bk.TileCellCounts, uint64(w.curCellCount))

	for _, a := range w.sch.Attributes {
		ab := w.bk.Attributes[a.Name]
		if a.IsVarLength() {
			valBytes := w.curVarBuf[a.Name].Bytes()
			c, err := codec.For(a.Compressor, a.Datatype, 1)
			if err != nil {
				return err
			}
			compressed, err := compressBuf(c, a.Level, valBytes, 1)
			if err != nil {
				return err
			}
			ab.VarSizes = append(ab.VarSizes, uint64(len(valBytes)))
			ab.VarOffsets = append(ab.VarOffsets, w.attrVarFileOffset[a.Name])
			n, err := w.writeBuffer(w.attrVarHandles[a.Name], compressed)
			if err != nil {
				return err
			}
			w.attrVarFileOffset[a.Name] += uint64(n)

			offBytes := w.curBuf[a.Name].Bytes()
			offCodec, err := codec.For(a.Compressor, schema.Uint64, 8)
			if err != nil {
				return err
			}
			compressedOffs, err := compressBuf(offCodec, a.Level, offBytes, 8)
			if err != nil {
				return err
			}
			ab.TileOffsets = append(ab.TileOffsets, w.attrFileOffset[a.Name])
			n, err = w.writeBuffer(w.attrHandles[a.Name], compressedOffs)
			if err != nil {
				return err
			}
			w.attrFileOffset[a.Name] += uint64(n)
		} else {
			raw := w.curBuf[a.Name].Bytes()
			c, err := codec.For(a.Compressor, a.Datatype, a.Datatype.Size())
			if err != nil {
				return err
			}
			compressed, err := compressBuf(c, a.Level, raw, a.Datatype.Size())
			if err != nil {
				return err
			}
			ab.TileOffsets = append(ab.TileOffsets, w.attrFileOffset[a.Name])
			n, err := w.writeBuffer(w.attrHandles[a.Name], compressed)
			if err != nil {
				return err
			}
			w.attrFileOffset[a.Name] += uint64(n)
		}
		if a.Nullable {
			if _, err := w.writeBuffer(w.attrValidHandles[a.Name], w.curValidity[a.Name].Bytes()); err != nil {
				return err
			}
			w.curValidity[a.Name].Reset()
		}
		w.curBuf[a.Name].Reset()
		if a.IsVarLength() {
			w.curVarBuf[a.Name].Reset()
			w.curVarOffs[a.Name] = nil
		}
	}

	if w.curCoordsBuf != nil {
		w.curCoordsBuf.Reset()
	}
	w.curCellCount = 0
	w.curMBRLo, w.curMBRHi = nil, nil
	return nil
}

// writeBuffer writes data to h and returns the number of bytes written.
// A nil or empty data is a no-op.
func (w *Writer) writeBuffer(h vfs.Handle, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	return w.fs.Write(h, data)
}

// denseTileBounds computes the [lo, hi] of the next dense tile in
// TileOrder sequence across the writer's subarray (or full domain),
// purely arithmetically — dense writes carry no explicit per-cell
// coordinates.
func (w *Writer) denseTileBounds() ([]int64, []int64, error) {
	rng := w.subarray
	if rng == nil {
		rng = w.sch.Domain.Dimensions
	}
	tileCounts := make([]int64, len(rng))
	totalTiles := int64(1)
	for i, d := range rng {
		dim := w.sch.Domain.Dimensions[i]
		tileCounts[i] = (d.Hi - d.Lo + 1) / dim.TileExtent
		totalTiles *= tileCounts[i]
	}
	if w.denseTileIdx >= totalTiles {
		return nil, nil, engineerr.New(engineerr.InternalError, "fragment writer: wrote more tiles than the subarray has")
	}
	tileCoord, err := unrankTile(w.sch.TileOrder, w.denseTileIdx, tileCounts)
	if err != nil {
		return nil, nil, err
	}
	lo := make([]int64, len(rng))
	hi := make([]int64, len(rng))
	for i, d := range rng {
		extent := w.sch.Domain.Dimensions[i].TileExtent
		lo[i] = d.Lo + tileCoord[i]*extent
		hi[i] = lo[i] + extent - 1
	}
	return lo, hi, nil
}

// unrankTile is the inverse of RowMajorRank/ColMajorRank over tileCounts.
func unrankTile(order schema.Layout, rank int64, tileCounts []int64) ([]int64, error) {
	coord := make([]int64, len(tileCounts))
	switch order {
	case schema.RowMajor:
		for i := len(tileCounts) - 1; i >= 0; i-- {
			coord[i] = rank % tileCounts[i]
			rank /= tileCounts[i]
		}
	case schema.ColMajor:
		for i := 0; i < len(tileCounts); i++ {
			coord[i] = rank % tileCounts[i]
			rank /= tileCounts[i]
		}
	default:
		return nil, engineerr.New(engineerr.LayoutError, "%s is not a supported dense tile order", order)
	}
	return coord, nil
}

func expandDomain(lo, hi, coords []int64) ([]int64, []int64) {
	if lo == nil {
		return append([]int64(nil), coords...), append([]int64(nil), coords...)
	}
	for i, v := range coords {
		if v < lo[i] {
			lo[i] = v
		}
		if v > hi[i] {
			hi[i] = v
		}
	}
	return lo, hi
}

func int64sToBytes(vals []int64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		encodeInt64LE(out[i*8:i*8+8], v)
	}
	return out
}

func encodeInt64LE(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func compressBuf(c codec.Codec, level int, raw []byte, typeSize int) ([]byte, error) {
	if len(raw) == 0 {
		return []byte{}, nil
	}
	bound := c.CompressBound(len(raw), typeSize)
	out := make([]byte, bound)
	n, err := c.Compress(level, raw, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Finalize flushes any partial tile, writes the book-keeping file, and
// creates the __ok.tdb sentinel via an atomic rename. The sequence is:
// write all attribute files → sync → write book-keeping → sync → create
// sentinel; a crash anywhere before the rename leaves no sentinel.
func (w *Writer) Finalize() error {
	if w.state == WriterFinalized {
		return nil
	}
	if w.layout == schema.Unordered {
		if err := w.flushSortBuffer(); err != nil {
			return err
		}
	}
	if w.layout == schema.RowMajor || w.layout == schema.ColMajor {
		permuted, err := w.permuteDense(w.denseStage)
		if err != nil {
			return err
		}
		w.denseStage = nil
		if err := w.accumulate(permuted); err != nil {
			return err
		}
	}
	if err := w.flushTile(); err != nil {
		return err
	}

	for _, h := range w.attrHandles {
		if err := w.fs.Sync(h); err != nil {
			return err
		}
		_ = w.fs.Close(h)
	}
	for _, h := range w.attrVarHandles {
		_ = w.fs.Sync(h)
		_ = w.fs.Close(h)
	}
	for _, h := range w.attrValidHandles {
		_ = w.fs.Sync(h)
		_ = w.fs.Close(h)
	}
	if w.coordsHandle != nil {
		_ = w.fs.Sync(w.coordsHandle)
		_ = w.fs.Close(w.coordsHandle)
	}

	w.bk.DomainLo, w.bk.DomainHi = w.domainLo, w.domainHi
	if w.sch.ArrayType == schema.Dense {
		rng := w.subarray
		if rng == nil {
			rng = w.sch.Domain.Dimensions
		}
		w.bk.DomainLo = make([]int64, len(rng))
		w.bk.DomainHi = make([]int64, len(rng))
		for i, d := range rng {
			w.bk.DomainLo[i], w.bk.DomainHi[i] = d.Lo, d.Hi
		}
	}

	data, err := w.bk.Marshal(w.sch)
	if err != nil {
		return err
	}
	metaPath := filepath.Join(w.fragmentDir, MetadataFileName)
	h, err := w.fs.Open(metaPath, vfs.OpenWrite)
	if err != nil {
		return err
	}
	if _, err := w.fs.Write(h, data); err != nil {
		return err
	}
	if err := w.fs.Sync(h); err != nil {
		return err
	}
	if err := w.fs.Close(h); err != nil {
		return err
	}

	okPath := filepath.Join(w.fragmentDir, OkFileName)
	tmpPath := okPath + ".tmp"
	th, err := w.fs.Open(tmpPath, vfs.OpenWrite)
	if err != nil {
		return err
	}
	if err := w.fs.Close(th); err != nil {
		return err
	}
	if err := w.fs.Rename(tmpPath, okPath); err != nil {
		return err
	}

	w.state = WriterFinalized
	w.log.Debugf("fragment writer: finalized %s with %d tiles", w.fragmentDir, w.bk.TileCount)
	return nil
}

// Abort discards the fragment directory without producing a sentinel.
func (w *Writer) Abort() error {
	w.state = WriterAborted
	for _, h := range w.attrHandles {
		_ = w.fs.Close(h)
	}
	for _, h := range w.attrVarHandles {
		_ = w.fs.Close(h)
	}
	for _, h := range w.attrValidHandles {
		_ = w.fs.Close(h)
	}
	if w.coordsHandle != nil {
		_ = w.fs.Close(w.coordsHandle)
	}
	return w.fs.Delete(w.fragmentDir)
}
