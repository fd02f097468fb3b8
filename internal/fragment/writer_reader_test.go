package fragment

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

// dense4x4Schema is a 4x4 int32 array with 2x2 tiles, row-major tile and
// cell order: value (x-1)*4+y at coordinate (x, y) makes the logical
// matrix 1..16.
func dense4x4Schema(t *testing.T) *schema.Schema {
	t.Helper()
	dom := schema.Domain{Dimensions: []schema.Dimension{
		{Name: "x", Datatype: schema.Int32, Lo: 1, Hi: 4, TileExtent: 2},
		{Name: "y", Datatype: schema.Int32, Lo: 1, Hi: 4, TileExtent: 2},
	}}
	attrs := []schema.Attribute{
		{Name: "a", Datatype: schema.Int32, CellValNum: 1, Compressor: schema.CompressorNone},
	}
	s, err := schema.New(schema.Dense, dom, attrs, schema.RowMajor, schema.RowMajor, 0)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func sparse4x4Schema(t *testing.T) *schema.Schema {
	t.Helper()
	dom := schema.Domain{Dimensions: []schema.Dimension{
		{Name: "x", Datatype: schema.Int32, Lo: 1, Hi: 4, TileExtent: 2},
		{Name: "y", Datatype: schema.Int32, Lo: 1, Hi: 4, TileExtent: 2},
	}}
	attrs := []schema.Attribute{
		{Name: "a", Datatype: schema.Int32, CellValNum: 1, Compressor: schema.CompressorNone},
	}
	s, err := schema.New(schema.Sparse, dom, attrs, schema.RowMajor, schema.RowMajor, 2)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func encodeInt32s(vals []int32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func decodeInt32s(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// matrixInGlobalOrder returns the values of the 4x4 matrix m[x][y] =
// (x-1)*4+y in the dense4x4Schema's global order: 2x2 tiles visited
// row-major, cells row-major within each tile.
func matrixInGlobalOrder() []int32 {
	return []int32{
		1, 2, 5, 6, // tile (1..2, 1..2)
		3, 4, 7, 8, // tile (1..2, 3..4)
		9, 10, 13, 14, // tile (3..4, 1..2)
		11, 12, 15, 16, // tile (3..4, 3..4)
	}
}

func writeFragment(t *testing.T, fs vfs.VFS, sch *schema.Schema, arrayDir string, ts int64, layout schema.Layout, batch WriteBatch) string {
	t.Helper()
	dir := filepath.Join(arrayDir, DirName(ts, uint64(ts)))
	w, err := OpenWriter(fs, nil, config.Default(), sch, dir, layout, nil, 1)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.Submit(batch); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return dir
}

func openReadPlan(t *testing.T, fs vfs.VFS, sch *schema.Schema, arrayDir string, subarray []schema.Dimension, layout schema.Layout) *Reader {
	t.Helper()
	frags, err := OpenFragments(fs, nil, arrayDir, sch)
	if err != nil {
		t.Fatalf("OpenFragments: %v", err)
	}
	r, err := OpenReader(fs, nil, config.Default(), sch, frags, subarray, []string{"a"}, layout)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	return r
}

func TestDenseGlobalWriteSubarrayRead(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := dense4x4Schema(t)

	writeFragment(t, fs, sch, arrayDir, 1, schema.GlobalOrder, WriteBatch{
		CellCount: 16,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(matrixInGlobalOrder())}},
	})

	subarray := []schema.Dimension{
		{Name: "x", Lo: 2, Hi: 4},
		{Name: "y", Lo: 2, Hi: 4},
	}
	r := openReadPlan(t, fs, sch, arrayDir, subarray, schema.RowMajor)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != Complete {
		t.Fatalf("status = %v, want Complete", res.Status)
	}
	want := []int32{6, 7, 8, 10, 11, 12, 14, 15, 16}
	got := decodeInt32s(res.Attrs["a"].Fixed)
	if len(got) != len(want) {
		t.Fatalf("got %d cells, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSparseUnorderedWriteGlobalRead(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := sparse4x4Schema(t)

	coords := []int64{
		1, 1,
		1, 2,
		1, 4,
		2, 3,
		3, 1,
		4, 2,
		3, 3,
		3, 4,
	}
	vals := []int32{0, 1, 2, 3, 4, 5, 6, 7}
	// Submit deliberately shuffled: the unordered path must sort by
	// global order before tiling.
	shuffledCoords := []int64{3, 3, 1, 1, 4, 2, 1, 4, 3, 4, 2, 3, 1, 2, 3, 1}
	shuffledVals := []int32{6, 0, 5, 2, 7, 3, 1, 4}
	writeFragment(t, fs, sch, arrayDir, 1, schema.Unordered, WriteBatch{
		Coords:    shuffledCoords,
		CellCount: 8,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(shuffledVals)}},
	})

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.GlobalOrder)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != Complete {
		t.Fatalf("status = %v, want Complete", res.Status)
	}
	if res.Cells != 8 {
		t.Fatalf("Cells = %d, want 8", res.Cells)
	}
	gotVals := decodeInt32s(res.Attrs["a"].Fixed)
	for i, want := range vals {
		if gotVals[i] != want {
			t.Errorf("value %d = %d, want %d", i, gotVals[i], want)
		}
	}
	for i := 0; i < 8; i++ {
		if res.Coords[i*2] != coords[i*2] || res.Coords[i*2+1] != coords[i*2+1] {
			t.Errorf("coord %d = (%d,%d), want (%d,%d)", i, res.Coords[i*2], res.Coords[i*2+1], coords[i*2], coords[i*2+1])
		}
	}
}

func TestDenseIncompleteRead(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := dense4x4Schema(t)

	writeFragment(t, fs, sch, arrayDir, 1, schema.GlobalOrder, WriteBatch{
		CellCount: 16,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(matrixInGlobalOrder())}},
	})

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.RowMajor)
	var all []int32
	submits := 0
	for {
		res, err := r.Submit(map[string]int{"a": 2}, 0)
		if err != nil {
			t.Fatalf("Submit %d: %v", submits, err)
		}
		if res.Cells != 2 {
			t.Fatalf("submit %d produced %d cells, want 2", submits, res.Cells)
		}
		if res.BaseCell != submits*2 {
			t.Errorf("submit %d BaseCell = %d, want %d", submits, res.BaseCell, submits*2)
		}
		all = append(all, decodeInt32s(res.Attrs["a"].Fixed)...)
		submits++
		if res.Status == Complete {
			break
		}
		if submits > 16 {
			t.Fatal("read never completed")
		}
	}
	if submits != 8 {
		t.Errorf("completed in %d submits, want 8", submits)
	}
	for i := range all {
		if all[i] != int32(i+1) {
			t.Errorf("cell %d = %d, want %d", i, all[i], i+1)
		}
	}
}

func TestSparseIncompleteRead(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := sparse4x4Schema(t)

	coords := []int64{1, 1, 1, 2, 1, 4, 2, 3, 3, 1, 4, 2, 3, 3, 3, 4}
	vals := []int32{0, 1, 2, 3, 4, 5, 6, 7}
	writeFragment(t, fs, sch, arrayDir, 1, schema.Unordered, WriteBatch{
		Coords:    coords,
		CellCount: 8,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(vals)}},
	})

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.GlobalOrder)
	var all []int32
	for submits := 0; ; submits++ {
		res, err := r.Submit(map[string]int{"a": 3}, 3)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		all = append(all, decodeInt32s(res.Attrs["a"].Fixed)...)
		if res.Status == Complete {
			break
		}
		if submits > 8 {
			t.Fatal("read never completed")
		}
	}
	if len(all) != 8 {
		t.Fatalf("drained %d cells, want 8", len(all))
	}
	for i := range all {
		if all[i] != int32(i) {
			t.Errorf("cell %d = %d, want %d", i, all[i], i)
		}
	}
}

func TestSparseLatestFragmentWins(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := sparse4x4Schema(t)

	coords := []int64{1, 1, 1, 2, 1, 4, 2, 3, 3, 1, 4, 2, 3, 3, 3, 4}
	vals := []int32{0, 1, 2, 3, 4, 5, 6, 7}
	writeFragment(t, fs, sch, arrayDir, 1, schema.Unordered, WriteBatch{
		Coords:    coords,
		CellCount: 8,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(vals)}},
	})
	writeFragment(t, fs, sch, arrayDir, 2, schema.Unordered, WriteBatch{
		Coords:    []int64{3, 4, 4, 2},
		CellCount: 2,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s([]int32{100, 101})}},
	})

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.GlobalOrder)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Cells != 8 {
		t.Fatalf("Cells = %d, want 8 (duplicates resolved)", res.Cells)
	}
	byCoord := make(map[[2]int64]int32, res.Cells)
	gotVals := decodeInt32s(res.Attrs["a"].Fixed)
	for i := 0; i < res.Cells; i++ {
		byCoord[[2]int64{res.Coords[i*2], res.Coords[i*2+1]}] = gotVals[i]
	}
	if byCoord[[2]int64{3, 4}] != 100 {
		t.Errorf("(3,4) = %d, want 100 from the newer fragment", byCoord[[2]int64{3, 4}])
	}
	if byCoord[[2]int64{4, 2}] != 101 {
		t.Errorf("(4,2) = %d, want 101 from the newer fragment", byCoord[[2]int64{4, 2}])
	}
	if byCoord[[2]int64{1, 1}] != 0 {
		t.Errorf("(1,1) = %d, want 0 from the older fragment", byCoord[[2]int64{1, 1}])
	}
}

func TestCorruptBookkeepingSkipsFragment(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := sparse4x4Schema(t)

	writeFragment(t, fs, sch, arrayDir, 1, schema.Unordered, WriteBatch{
		Coords:    []int64{1, 1},
		CellCount: 1,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s([]int32{42})}},
	})
	newer := writeFragment(t, fs, sch, arrayDir, 2, schema.Unordered, WriteBatch{
		Coords:    []int64{1, 1},
		CellCount: 1,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s([]int32{99})}},
	})

	metaPath := filepath.Join(newer, MetadataFileName)
	info, err := os.Stat(metaPath)
	if err != nil {
		t.Fatalf("stat book-keeping: %v", err)
	}
	if err := os.Truncate(metaPath, info.Size()-1); err != nil {
		t.Fatalf("truncate book-keeping: %v", err)
	}

	frags, err := OpenFragments(fs, nil, arrayDir, sch)
	if err != nil {
		t.Fatalf("OpenFragments: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d finalized fragments, want 1 (corrupt one skipped)", len(frags))
	}

	r, err := OpenReader(fs, nil, config.Default(), sch, frags, sch.Domain.Dimensions, []string{"a"}, schema.GlobalOrder)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Cells != 1 {
		t.Fatalf("Cells = %d, want 1", res.Cells)
	}
	if got := decodeInt32s(res.Attrs["a"].Fixed)[0]; got != 42 {
		t.Errorf("(1,1) = %d, want 42 from the surviving fragment", got)
	}
}

func TestDeletedValueHidesCoordinate(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := sparse4x4Schema(t)

	writeFragment(t, fs, sch, arrayDir, 1, schema.Unordered, WriteBatch{
		Coords:    []int64{1, 1, 2, 2},
		CellCount: 2,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s([]int32{5, 7})}},
	})
	writeFragment(t, fs, sch, arrayDir, 2, schema.Unordered, WriteBatch{
		Coords:    []int64{1, 1},
		CellCount: 1,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s([]int32{math.MinInt32})}},
	})

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.GlobalOrder)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Cells != 1 {
		t.Fatalf("Cells = %d, want 1 (deleted coordinate filtered)", res.Cells)
	}
	if res.Coords[0] != 2 || res.Coords[1] != 2 {
		t.Errorf("surviving coord = (%d,%d), want (2,2)", res.Coords[0], res.Coords[1])
	}
	if got := decodeInt32s(res.Attrs["a"].Fixed)[0]; got != 7 {
		t.Errorf("(2,2) = %d, want 7", got)
	}
}

func TestDenseReadWithoutFragmentsReturnsEmptyValue(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := dense4x4Schema(t)

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.RowMajor)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != Complete {
		t.Fatalf("status = %v, want Complete", res.Status)
	}
	if res.Cells != 16 {
		t.Fatalf("Cells = %d, want 16", res.Cells)
	}
	got := decodeInt32s(res.Attrs["a"].Fixed)
	for i, v := range got {
		if v != math.MaxInt32 {
			t.Errorf("cell %d = %d, want the empty marker %d", i, v, math.MaxInt32)
		}
	}
}

func TestDenseReadFillsUnwrittenRegionWithEmptyValue(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := dense4x4Schema(t)

	// One fragment covering only rows 1..2; rows 3..4 are never written.
	subarray := []schema.Dimension{
		{Name: "x", Lo: 1, Hi: 2},
		{Name: "y", Lo: 1, Hi: 4},
	}
	vals := []int32{1, 2, 3, 4, 5, 6, 7, 8}
	dir := filepath.Join(arrayDir, DirName(1, 1))
	w, err := OpenWriter(fs, nil, config.Default(), sch, dir, schema.RowMajor, subarray, 1)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := w.Submit(WriteBatch{
		CellCount: 8,
		Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(vals)}},
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.RowMajor)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := decodeInt32s(res.Attrs["a"].Fixed)
	if len(got) != 16 {
		t.Fatalf("got %d cells, want 16", len(got))
	}
	for i := 0; i < 8; i++ {
		if got[i] != vals[i] {
			t.Errorf("cell %d = %d, want %d", i, got[i], vals[i])
		}
	}
	for i := 8; i < 16; i++ {
		if got[i] != math.MaxInt32 {
			t.Errorf("unwritten cell %d = %d, want the empty marker %d", i, got[i], math.MaxInt32)
		}
	}
}

func TestRowMajorDenseWriteAcrossBatches(t *testing.T) {
	arrayDir := t.TempDir()
	fs := vfs.NewLocal(nil)
	sch := dense4x4Schema(t)

	// Row-major input split across two submits; the writer stages until
	// Finalize, then permutes the whole subarray into global order.
	rowMajor := make([]int32, 16)
	for i := range rowMajor {
		rowMajor[i] = int32(i + 1)
	}
	dir := filepath.Join(arrayDir, DirName(1, 1))
	w, err := OpenWriter(fs, nil, config.Default(), sch, dir, schema.RowMajor, sch.Domain.Dimensions, 1)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	for _, half := range [][]int32{rowMajor[:10], rowMajor[10:]} {
		if err := w.Submit(WriteBatch{
			CellCount: len(half),
			Attrs:     map[string]AttrBuffer{"a": {Fixed: encodeInt32s(half)}},
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := openReadPlan(t, fs, sch, arrayDir, sch.Domain.Dimensions, schema.RowMajor)
	res, err := r.Submit(nil, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := decodeInt32s(res.Attrs["a"].Fixed)
	for i, want := range rowMajor {
		if got[i] != want {
			t.Errorf("cell %d = %d, want %d", i, got[i], want)
		}
	}
}
