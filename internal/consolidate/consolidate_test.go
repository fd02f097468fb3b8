package consolidate

import (
	"encoding/binary"
	"testing"

	"github.com/gridarray/engine/internal/config"
	"github.com/gridarray/engine/internal/fragment"
	"github.com/gridarray/engine/internal/query"
	"github.com/gridarray/engine/internal/schema"
	"github.com/gridarray/engine/internal/vfs"
)

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

func denseSchema(t *testing.T) *schema.Schema {
	t.Helper()
	dom := schema.Domain{Dimensions: []schema.Dimension{
		{Name: "x", Datatype: schema.Int32, Lo: 0, Hi: 3, TileExtent: 2},
		{Name: "y", Datatype: schema.Int32, Lo: 0, Hi: 1, TileExtent: 2},
	}}
	attrs := []schema.Attribute{
		{Name: "v", Datatype: schema.Int32, CellValNum: 1, Compressor: schema.CompressorNone},
	}
	s, err := schema.New(schema.Dense, dom, attrs, schema.RowMajor, schema.RowMajor, 0)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func writeDense(t *testing.T, fs vfs.VFS, cfg config.Config, sch *schema.Schema, dir string, vals []int32) {
	t.Helper()
	wq, err := query.NewWriteQuery(fs, nil, cfg, sch, dir, schema.RowMajor, sch.Domain.Dimensions, 1)
	if err != nil {
		t.Fatalf("NewWriteQuery: %v", err)
	}
	batch := fragment.WriteBatch{CellCount: len(vals), Attrs: map[string]fragment.AttrBuffer{
		"v": {Fixed: encodeInt32s(vals)},
	}}
	if _, err := wq.Submit(batch); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := wq.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestRunMergesOverwritesLatestWins(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.NewLocal(nil)
	cfg := config.Default()
	sch := denseSchema(t)

	// Fragment 1: all 8 cells set to their row-major index.
	base := make([]int32, 8)
	for i := range base {
		base[i] = int32(i)
	}
	writeDense(t, fs, cfg, sch, dir, base)

	// Fragment 2, written later, overwrites the same 8 cells with 100+i.
	overlay := make([]int32, 8)
	for i := range overlay {
		overlay[i] = int32(100 + i)
	}
	writeDense(t, fs, cfg, sch, dir, overlay)

	res, err := Run(fs, nil, cfg, sch, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NewFragmentDir == "" {
		t.Fatal("expected a new fragment to be produced")
	}
	if res.CellsWritten != 8 {
		t.Errorf("CellsWritten = %d, want 8", res.CellsWritten)
	}
	if len(res.RemovedFragments) != 2 {
		t.Errorf("RemovedFragments = %v, want 2 entries", res.RemovedFragments)
	}

	entries, err := fs.Ls(dir)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	// The consolidated fragment directory plus the array's __lock.tdb,
	// which Run's locking creates.
	if len(entries) != 2 {
		t.Fatalf("arrayDir has %d entries after consolidation, want 2 (one fragment plus %s): %v", len(entries), fragment.LockFileName, entries)
	}

	rq, err := query.NewReadQuery(fs, nil, cfg, sch, dir, sch.Domain.Dimensions, []string{"v"}, schema.RowMajor)
	if err != nil {
		t.Fatalf("NewReadQuery: %v", err)
	}
	out, st, err := rq.SubmitRead(nil, 0)
	if err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}
	if st != query.Complete {
		t.Fatalf("status = %v, want Complete", st)
	}
	got := decodeInt32s(out.Attrs["v"].Fixed)
	for i, want := range overlay {
		if got[i] != want {
			t.Errorf("cell %d = %d, want %d (latest-wins)", i, got[i], want)
		}
	}
}

func TestRunIsNoopBelowTwoFragments(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.NewLocal(nil)
	cfg := config.Default()
	sch := denseSchema(t)

	vals := make([]int32, 8)
	writeDense(t, fs, cfg, sch, dir, vals)

	res, err := Run(fs, nil, cfg, sch, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NewFragmentDir != "" {
		t.Errorf("expected no-op with a single fragment, got new fragment %q", res.NewFragmentDir)
	}

	entries, err := fs.Ls(dir)
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	// The untouched fragment plus the __lock.tdb that Run's shared lock
	// creates.
	if len(entries) != 2 {
		t.Errorf("single fragment should be left untouched, got %d entries, want 2 (one fragment plus %s): %v", len(entries), fragment.LockFileName, entries)
	}
}

func TestRunSparseDedupesAndSorts(t *testing.T) {
	dir := t.TempDir()
	fs := vfs.NewLocal(nil)
	cfg := config.Default()
	dom := schema.Domain{Dimensions: []schema.Dimension{
		{Name: "x", Datatype: schema.Int32, Lo: 0, Hi: 99},
	}}
	attrs := []schema.Attribute{
		{Name: "v", Datatype: schema.Int32, CellValNum: 1, Compressor: schema.CompressorNone},
	}
	sch, err := schema.New(schema.Sparse, dom, attrs, schema.RowMajor, schema.RowMajor, 4)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}

	write := func(coords []int64, vals []int32) {
		wq, err := query.NewWriteQuery(fs, nil, cfg, sch, dir, schema.Unordered, nil, 1)
		if err != nil {
			t.Fatalf("NewWriteQuery: %v", err)
		}
		batch := fragment.WriteBatch{
			Coords:    coords,
			CellCount: len(vals),
			Attrs:     map[string]fragment.AttrBuffer{"v": {Fixed: encodeInt32s(vals)}},
		}
		if _, err := wq.Submit(batch); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := wq.Finalize(); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
	}

	write([]int64{5, 3, 1}, []int32{50, 30, 10})
	write([]int64{3, 9}, []int32{300, 90}) // overwrites coordinate 3

	res, err := Run(fs, nil, cfg, sch, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CellsWritten != 4 {
		t.Errorf("CellsWritten = %d, want 4 (deduplicated)", res.CellsWritten)
	}

	rq, err := query.NewReadQuery(fs, nil, cfg, sch, dir, sch.Domain.Dimensions, []string{"v"}, schema.RowMajor)
	if err != nil {
		t.Fatalf("NewReadQuery: %v", err)
	}
	out, _, err := rq.SubmitRead(nil, 0)
	if err != nil {
		t.Fatalf("SubmitRead: %v", err)
	}
	want := map[int64]int32{1: 10, 3: 300, 5: 50, 9: 90}
	got := decodeInt32s(out.Attrs["v"].Fixed)
	if len(out.Coords) != len(got) {
		t.Fatalf("coords/values length mismatch: %d vs %d", len(out.Coords), len(got))
	}
	seen := map[int64]int32{}
	for i, c := range out.Coords {
		seen[c] = got[i]
	}
	for coord, v := range want {
		if seen[coord] != v {
			t.Errorf("coord %d = %d, want %d", coord, seen[coord], v)
		}
	}
}
